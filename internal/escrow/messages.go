package escrow

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Message is one entry in the append-only communication log. Entries are
// never edited or deleted; internal messages are only rendered to
// supervisor/admin viewers.
type Message struct {
	ID        string    `json:"id"`
	SenderID  uint      `json:"sender_id"`
	Body      string    `json:"body"`
	Internal  bool      `json:"internal"`
	CreatedAt time.Time `json:"created_at"`
}

// AddMessage appends a message from actor to the ledger. The sender must be a
// party or an authorized supervisor/admin, and the body must be non-empty and
// at most 1000 characters — an over-long body is a hard validation error, not
// silently trimmed.
func (t *Transaction) AddMessage(actor Actor, body string, internal bool, now time.Time) (*Message, error) {
	if !t.isParty(actor.ID) && !t.canModerate(actor) {
		return nil, &ForbiddenError{ActorID: actor.ID, Op: "add a message"}
	}
	if body == "" {
		return nil, &ValidationError{Field: "message", Reason: "required"}
	}
	if utf8.RuneCountInString(body) > MaxMessageLen {
		return nil, &ValidationError{Field: "message", Reason: "must not exceed 1000 characters"}
	}
	msg := Message{
		ID:        uuid.NewString(),
		SenderID:  actor.ID,
		Body:      body,
		Internal:  internal,
		CreatedAt: now,
	}
	t.Messages = append(t.Messages, msg)
	return &t.Messages[len(t.Messages)-1], nil
}

// appendSystemMessage records the audit trail entry a transition leaves
// behind. It bypasses the sender check because the sender already passed the
// transition's own authorization.
func (t *Transaction) appendSystemMessage(senderID uint, body string, now time.Time) {
	t.Messages = append(t.Messages, Message{
		ID:        uuid.NewString(),
		SenderID:  senderID,
		Body:      body,
		Internal:  false,
		CreatedAt: now,
	})
}

// MessagesFor returns the ledger as visible to the given role: internal
// messages are included only for supervisor and admin viewers. The returned
// slice is a copy; the ledger itself stays append-only.
func (t *Transaction) MessagesFor(viewer Role) []Message {
	moderator := viewer == RoleSupervisor || viewer == RoleAdmin
	out := make([]Message, 0, len(t.Messages))
	for _, m := range t.Messages {
		if m.Internal && !moderator {
			continue
		}
		out = append(out, m)
	}
	return out
}
