package models

import (
	"time"

	"gorm.io/datatypes"
)

type ConversationMessage struct {
	Role      string    `json:"role"` // user | assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AIConversationModel holds the chat history of one customer session.
type AIConversationModel struct {
	Base
	OrganizationID string                `json:"organization_id" gorm:"size:36;uniqueIndex:idx_conversation_session,priority:1"`
	SessionID      string                `json:"session_id"      gorm:"size:128;uniqueIndex:idx_conversation_session,priority:2"`
	Messages       []ConversationMessage `json:"messages"        gorm:"serializer:json;type:text"`
	Metadata       datatypes.JSONMap     `json:"metadata"`
}

func (AIConversationModel) TableName() string { return "ai_conversations" }
