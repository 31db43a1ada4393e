package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckServerVersion(t *testing.T) {
	t.Run("same major is compatible", func(t *testing.T) {
		assert.NoError(t, CheckServerVersion("1.0.0"))
		assert.NoError(t, CheckServerVersion("1.9.2"))
	})

	t.Run("different major is incompatible", func(t *testing.T) {
		assert.Error(t, CheckServerVersion("2.0.0"))
		assert.Error(t, CheckServerVersion("0.9.0"))
	})

	t.Run("garbage version is an error", func(t *testing.T) {
		assert.Error(t, CheckServerVersion("latest"))
	})
}
