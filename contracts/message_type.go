package contracts

import "strings"

// MessageType is the closed vocabulary of tags carried in the envelope
// "type" field. The enum stays closed for exhaustiveness checking; payload
// shapes per type remain dynamic mappings.
type MessageType string

const (
	// Session lifecycle
	TypeSessionStart   MessageType = "session-start"
	TypeSessionCreated MessageType = "session-created"
	TypeSessionResume  MessageType = "session-resume"
	TypeSessionResumed MessageType = "session-resumed"
	TypeSessionAborted MessageType = "session-aborted"
	TypeSessionEnd     MessageType = "session-end"

	// Command / response streaming
	TypeCommand         MessageType = "command"
	TypeCommandAbort    MessageType = "command-abort"
	TypeStreamStart     MessageType = "stream-start"
	TypeStreamChunk     MessageType = "stream-chunk"
	TypeStreamEnd       MessageType = "stream-end"
	TypeCommandComplete MessageType = "command-complete"
	TypeCommandError    MessageType = "command-error"

	// Tool invocation
	TypeToolUse    MessageType = "tool-use"
	TypeToolResult MessageType = "tool-result"

	// Errors
	TypeError MessageType = "error"

	// Liveness probes
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"

	// Project operations
	TypeProjectList    MessageType = "project-list"
	TypeProjectState   MessageType = "project-state"
	TypeProjectCreate  MessageType = "project-create"
	TypeProjectDelete  MessageType = "project-delete"
	TypeProjectUpdated MessageType = "project-updated"

	// File operations
	TypeFileList    MessageType = "file-list"
	TypeFileRead    MessageType = "file-read"
	TypeFileWrite   MessageType = "file-write"
	TypeFileDelete  MessageType = "file-delete"
	TypeFileChanged MessageType = "file-changed"

	// Shell channel
	TypeShellInit    MessageType = "shell-init"
	TypeShellCommand MessageType = "shell-command"
	TypeShellOutput  MessageType = "shell-output"
	TypeShellError   MessageType = "shell-error"
	TypeShellExit    MessageType = "shell-exit"
	TypeShellResize  MessageType = "shell-resize"

	// TypeUnrecognized is the local sentinel for inbound tags outside the
	// closed vocabulary. It never appears on the wire; the original tag is
	// preserved in Envelope.RawType.
	TypeUnrecognized MessageType = "unrecognized"
)

var knownTypes = map[MessageType]struct{}{
	TypeSessionStart: {}, TypeSessionCreated: {}, TypeSessionResume: {},
	TypeSessionResumed: {}, TypeSessionAborted: {}, TypeSessionEnd: {},
	TypeCommand: {}, TypeCommandAbort: {}, TypeStreamStart: {},
	TypeStreamChunk: {}, TypeStreamEnd: {}, TypeCommandComplete: {},
	TypeCommandError: {}, TypeToolUse: {}, TypeToolResult: {},
	TypeError: {}, TypePing: {}, TypePong: {},
	TypeProjectList: {}, TypeProjectState: {}, TypeProjectCreate: {},
	TypeProjectDelete: {}, TypeProjectUpdated: {},
	TypeFileList: {}, TypeFileRead: {}, TypeFileWrite: {},
	TypeFileDelete: {}, TypeFileChanged: {},
	TypeShellInit: {}, TypeShellCommand: {}, TypeShellOutput: {},
	TypeShellError: {}, TypeShellExit: {}, TypeShellResize: {},
}

// ParseMessageType maps a wire tag onto the closed enum. ok is false for
// tags outside the vocabulary; callers surface those as TypeUnrecognized
// rather than failing.
func ParseMessageType(tag string) (MessageType, bool) {
	t := MessageType(tag)
	_, ok := knownTypes[t]
	return t, ok
}

// Known reports whether the type belongs to the closed vocabulary.
func (t MessageType) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// IsShell reports whether the type belongs to the shell channel vocabulary.
func (t MessageType) IsShell() bool {
	return strings.HasPrefix(string(t), "shell-")
}

func (t MessageType) String() string { return string(t) }
