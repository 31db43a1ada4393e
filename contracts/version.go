package contracts

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// ProtocolVersion is the wire protocol version this client speaks. Servers
// announce theirs in the session-created payload.
const ProtocolVersion = "1.3.0"

// serverConstraint accepts any server on the same major version.
var serverConstraint = mustConstraint("^1")

func mustConstraint(c string) *semver.Constraints {
	parsed, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return parsed
}

// CheckServerVersion verifies that an announced server protocol version is
// compatible with this client. Incompatibility is advisory: callers log it
// rather than tearing the session down.
func CheckServerVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("contracts: invalid server protocol version %q: %w", version, err)
	}
	if !serverConstraint.Check(v) {
		return fmt.Errorf("contracts: server protocol version %s is incompatible with client %s", version, ProtocolVersion)
	}
	return nil
}
