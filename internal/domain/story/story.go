package story

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// GameMessage is one entry of the adventure transcript.
type GameMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Image     string    `json:"image,omitempty"` // path of the illustration on disk
	CreatedAt time.Time `json:"created_at"`
}

// Turn is what the story service returns for one step of the adventure.
type Turn struct {
	Story       string `json:"story"`
	ImagePrompt string `json:"image_prompt"`
}

// History renders messages as "role: content" lines for the story prompt.
func History(messages []GameMessage) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, string(m.Role)+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}
