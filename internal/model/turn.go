package model

import "time"

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message within a conversation. Turns are immutable once
// created and are only ever appended to a conversation's ordered list.
type Turn struct {
	Role      Role      `json:"role" bson:"role"`
	Content   string    `json:"content" bson:"content"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Conversation is one merchant-owned chat with the assistant. ThreadID
// correlates the conversation with the assistant service's own session; it is
// assigned on the first successful service call and never changes afterwards.
type Conversation struct {
	ID         string    `json:"id" bson:"_id"`
	MerchantID string    `json:"merchantId" bson:"merchantId"`
	ThreadID   string    `json:"threadId,omitempty" bson:"threadId,omitempty"`
	Title      string    `json:"title" bson:"title"`
	Turns      []Turn    `json:"messages" bson:"messages"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
}

// NewConversation builds a conversation seeded with the assistant welcome
// turn, matching what the console shows when a merchant opens the panel for
// the first time.
func NewConversation(id, merchantID, merchantName string, now time.Time) *Conversation {
	return &Conversation{
		ID:         id,
		MerchantID: merchantID,
		Title:      "New chat",
		Turns: []Turn{{
			Role:      RoleAssistant,
			Content:   WelcomeMessage(merchantName),
			CreatedAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// WelcomeMessage is the canned opener for a fresh conversation.
func WelcomeMessage(merchantName string) string {
	if merchantName != "" {
		return "Hi " + merchantName + "! I'm TapAI, your loyalty program assistant. I can help you create rewards, design campaigns, and optimize your loyalty strategy. What would you like help with?"
	}
	return "Hi! I'm TapAI, your loyalty program assistant. I can help you create rewards, design campaigns, and optimize your loyalty strategy. What would you like help with?"
}

// ApologyMessage is appended as a synthetic assistant turn when the assistant
// service call fails, so the user always gets a visible response.
const ApologyMessage = "Sorry, I encountered an error processing your request. Please try again."
