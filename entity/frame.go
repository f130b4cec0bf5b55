package entity

// Realtime frame types.
const (
	FrameHistory       = "history"
	FrameNewMessage    = "new_message"
	FrameTyping        = "typing"
	FrameUserJoined    = "user_joined"
	FrameUserLeft      = "user_left"
	FrameAgentJoined   = "agent_joined"
	FrameSessionClosed = "session_closed"

	// sent by clients
	FrameMessage = "message"
)

// Frame is a JSON message carried by the human-chat realtime channel.
type Frame struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id,omitempty"`
	Message   *ChatMessage  `json:"message,omitempty"`
	Messages  []ChatMessage `json:"messages,omitempty"`
	// Status is the session status at the time a history frame was sent.
	Status   SessionStatus `json:"status,omitempty"`
	UserID   string        `json:"user_id,omitempty"`
	UserName string        `json:"user_name,omitempty"`
	IsTyping bool          `json:"is_typing,omitempty"`
	Text     string        `json:"text,omitempty"`
	Reason   string        `json:"reason,omitempty"`
}
