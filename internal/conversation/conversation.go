// Package conversation defines the internal representation of a chat
// exchange, independent of any model family's wire format.
package conversation

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message in a conversation. Turns are ordered, newest
// last; the first turn of a fresh conversation always has RoleUser.
type Turn struct {
	Role    Role   `json:"role" dynamodbav:"role"`
	Content string `json:"content" dynamodbav:"content"`
}

// Tail returns the most recent max turns, dropping from the front. The
// returned slice aliases the input.
func Tail(turns []Turn, max int) []Turn {
	if len(turns) <= max {
		return turns
	}
	return turns[len(turns)-max:]
}
