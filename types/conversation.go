package types

import "time"

// DefaultConversationTitle is used until a title has been generated.
const DefaultConversationTitle = "New Conversation"

// MessageRole tells user and assistant messages apart.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one conversation entry. User messages carry Content only;
// assistant messages carry the three stage outputs.
type Message struct {
	Role    MessageRole       `json:"role"`
	Content string            `json:"content,omitempty"`
	Stage1  []StageOneResult  `json:"stage1,omitempty"`
	Stage2  []StageTwoResult  `json:"stage2,omitempty"`
	Stage3  *StageThreeResult `json:"stage3,omitempty"`
}

// Conversation is the persisted conversation document.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
}

// Summary returns the list-view projection of c.
func (c *Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		ID:           c.ID,
		CreatedAt:    c.CreatedAt,
		Title:        c.Title,
		MessageCount: len(c.Messages),
	}
}

// ConversationSummary is the list-view projection of a conversation.
type ConversationSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
}

// UserProfile is the contact data captured before a visitor may use the council.
type UserProfile struct {
	Name        string `json:"name"`
	CountryCode string `json:"countryCode"`
	PhoneNumber string `json:"phoneNumber"`
	FullNumber  string `json:"fullNumber"`
}
