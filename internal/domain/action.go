package domain

import (
	"strings"
	"time"
)

// ActionEvent describe una interacción con un widget renderizado.
// Es efímero: nunca se persiste tal cual, solo el Message que produce.
type ActionEvent struct {
	Type          string         `json:"type"`
	Params        map[string]any `json:"params,omitempty"`
	LLMFriendly   string         `json:"llm_friendly_message"`
	HumanFriendly string         `json:"human_friendly_message"`
}

// Message convierte el evento en el mensaje user-role que entra al timeline.
// El texto para el modelo tiene prioridad; el texto humano es fallback.
func (a ActionEvent) Message(threadID, userID string) Message {
	content := strings.TrimSpace(a.LLMFriendly)
	if content == "" {
		content = strings.TrimSpace(a.HumanFriendly)
	}
	now := time.Now().UTC()
	return Message{
		ThreadID:  threadID,
		UserID:    userID,
		Role:      RoleUser,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
