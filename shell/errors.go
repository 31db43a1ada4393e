package shell

import "fmt"

// CommandError reports a command the remote side rejected or failed.
type CommandError struct {
	CommandID string
	Command   string
	Message   string
}

func (e *CommandError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("shell: command %s failed", e.CommandID)
	}
	return fmt.Sprintf("shell: command %s failed: %s", e.CommandID, e.Message)
}
