// Package negotiation implements the price-bargaining engine behind the
// storefront chat widget.
package negotiation

import "time"

// Status describes the lifecycle state of a negotiation session.
type Status string

const (
	StatusActive    Status = "active"
	StatusAccepted  Status = "accepted"
	StatusAbandoned Status = "abandoned"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleShopper   Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in the negotiation transcript. ProposedPrice is
// set only on assistant messages that carry a number the shopper can accept
// with one click.
type Message struct {
	ID            string    `json:"id"`
	Role          Role      `json:"role"`
	Text          string    `json:"text"`
	Timestamp     time.Time `json:"timestamp"`
	ProposedPrice *float64  `json:"proposed_price,omitempty"`
}

// Session holds the full state of one negotiation over one product. It is a
// value type: Engine methods never mutate a Session in place, they return an
// updated copy and leave the caller to swap it in.
type Session struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	ProductName  string    `json:"product_name"`
	ListPrice    float64   `json:"list_price"`
	CurrentPrice float64   `json:"current_price"`
	Round        int       `json:"round"`
	Status       Status    `json:"status"`
	History      []Message `json:"history"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LastProposedPrice returns the price attached to the most recent assistant
// message, or the current anchor price when no assistant message carries one.
func (s Session) LastProposedPrice() float64 {
	for i := len(s.History) - 1; i >= 0; i-- {
		m := s.History[i]
		if m.Role == RoleAssistant && m.ProposedPrice != nil {
			return *m.ProposedPrice
		}
	}
	return s.CurrentPrice
}

// appendMessages copies the history before appending so an updated Session
// never shares backing storage with the one it was derived from.
func appendMessages(history []Message, msgs ...Message) []Message {
	out := make([]Message, 0, len(history)+len(msgs))
	out = append(out, history...)
	return append(out, msgs...)
}
