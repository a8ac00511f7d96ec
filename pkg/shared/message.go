package shared

// MessageType identifies a websocket message.
type MessageType string

// Client to server.
const (
	MessageTypeRun    MessageType = "run"    // start a program: Content holds source, or Program names a stored one
	MessageTypeInput  MessageType = "input"  // answer to a prompt
	MessageTypeCancel MessageType = "cancel" // stop the running program
)

// Server to client.
const (
	MessageTypeOutput MessageType = "output" // one printed value
	MessageTypePrompt MessageType = "prompt" // the program waits for an integer
	MessageTypeError  MessageType = "error"  // formatted error report
	MessageTypeDone   MessageType = "done"   // run finished, successfully or not
	MessageTypeStatus MessageType = "status" // informational, e.g. "busy"
)

// Message is the JSON envelope exchanged over the websocket.
type Message struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content,omitempty"`

	// Run
	Program string `json:"program,omitempty"`

	// Prompt: the variable being read
	Variable string `json:"variable,omitempty"`

	// Error
	Line int    `json:"line,omitempty"`
	Kind string `json:"kind,omitempty"`

	// Done, Status
	RunID string `json:"runId,omitempty"`
}
