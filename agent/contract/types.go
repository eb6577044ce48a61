package contract

import "time"

// ToolRequest is what the conversational agent sends: a tool name from the
// closed catalog plus structured arguments.
type ToolRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult is the synchronous answer to a dispatch. Expected failures
// (slot taken, not found, state-machine violations) are carried in Error
// and Kind so the agent can react conversationally.
type ToolResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

// ToolCallRecord is one entry of a session's append-only history. Failed
// attempts are recorded with their kind; the audit trail reflects attempts,
// not just successes.
type ToolCallRecord struct {
	ID        string         `json:"id"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args,omitempty"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Kind      string         `json:"kind,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Event stream frame types.
const (
	EventToolCall      = "tool_call"
	EventSessionClosed = "session_closed"
	EventStatus        = "status"
)

// Event is one frame on a session's observer stream.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Payload   any    `json:"payload,omitempty"`
}
