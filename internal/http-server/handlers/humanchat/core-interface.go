package humanchat

import "WidgetCS/entity"

type Core interface {
	RequestHumanChat(conversationID string) (*entity.HumanChatSession, error)
	SessionMessages(sessionID string) ([]entity.ChatMessage, error)
	CloseHumanChat(sessionID, reason string) (*entity.HumanChatSession, error)
	WaitingSessions() ([]entity.HumanChatSession, error)
	JoinHumanChat(sessionID, agentID, agentName string) (*entity.HumanChatSession, error)
}
