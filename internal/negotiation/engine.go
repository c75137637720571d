package negotiation

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrSessionNotActive is returned when a turn or an accept action is
	// applied to a session that is already accepted or abandoned.
	ErrSessionNotActive = errors.New("session is not active")

	// ErrInvalidListPrice is returned when a session is opened for a product
	// without a positive list price.
	ErrInvalidListPrice = errors.New("product list price must be positive")
)

// ProductInfo is the read-only slice of a catalog product the engine
// negotiates over.
type ProductInfo struct {
	ID        string
	Name      string
	ListPrice float64
}

// Engine applies the tiered counter-offer policy. It is stateless: all
// negotiation state lives in the Session values passed through it, so one
// Engine can serve any number of independent sessions.
type Engine struct {
	pick  PromptPicker
	now   func() time.Time
	newID func() string
}

// NewEngine creates an engine with randomized generic-turn phrasing.
func NewEngine() *Engine {
	return NewEngineWithPicker(randomPicker)
}

// NewEngineWithPicker creates an engine with a custom prompt picker.
func NewEngineWithPicker(pick PromptPicker) *Engine {
	return &Engine{
		pick:  pick,
		now:   time.Now,
		newID: newULID,
	}
}

func newULID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Now(), entropy).String()
}

// NewSession opens a negotiation for a product, seeded with an assistant
// greeting. The list price is the anchor every quoted discount is measured
// against for the life of the session.
func (e *Engine) NewSession(p ProductInfo) (Session, error) {
	if p.ListPrice <= 0 {
		return Session{}, fmt.Errorf("open session for product %q: %w", p.ID, ErrInvalidListPrice)
	}

	now := e.now()
	greeting := Message{
		ID:   e.newID(),
		Role: RoleAssistant,
		Text: fmt.Sprintf(
			"Hi there! The %s is listed at $%.2f. I have some wiggle room, so feel free to make me an offer.",
			p.Name, p.ListPrice,
		),
		Timestamp: now,
	}

	return Session{
		ID:           e.newID(),
		ProductID:    p.ID,
		ProductName:  p.Name,
		ListPrice:    p.ListPrice,
		CurrentPrice: p.ListPrice,
		Round:        0,
		Status:       StatusActive,
		History:      []Message{greeting},
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

type turnKind int

const (
	turnNumericOffer turnKind = iota
	turnBestPrice
	turnAccept
	turnPushback
	turnGeneric
)

// Keyword categories are checked in this order; the first match wins. Matching
// is plain case-insensitive substring search, so "nothing" triggers pushback
// via "no". That crudeness matches the widget's scope: it is a demo haggler,
// not an NLU system.
var (
	bestPriceKeywords = []string{"lowest", "best price", "discount"}
	acceptKeywords    = []string{"yes", "accept", "deal"}
	pushbackKeywords  = []string{"no", "too high", "expensive"}
)

func classify(text string) (turnKind, float64) {
	offer, ok := ParseOffer(text)
	if ok && !math.IsNaN(offer) && !math.IsInf(offer, 0) {
		return turnNumericOffer, offer
	}

	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, bestPriceKeywords):
		return turnBestPrice, 0
	case containsAny(lower, acceptKeywords):
		return turnAccept, 0
	case containsAny(lower, pushbackKeywords):
		return turnPushback, 0
	}
	return turnGeneric, 0
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// Advance runs one negotiation turn: classify the shopper's text, resolve the
// new anchor price per the policy table, and append both sides of the exchange
// to the transcript. The round counter moves only on turns that ran a price
// computation (numeric offer, best-price request, pushback).
func (e *Engine) Advance(s Session, text string) (Session, Message, error) {
	if s.Status != StatusActive {
		return s, Message{}, fmt.Errorf("advance session %s: %w", s.ID, ErrSessionNotActive)
	}

	kind, offer := classify(text)

	price := s.CurrentPrice
	countsAsRound := false
	var reply string
	var proposed *float64

	switch kind {
	case turnNumericOffer:
		price, reply, proposed = e.resolveOffer(s, offer)
		countsAsRound = true

	case turnBestPrice:
		price = round2(0.85 * s.ListPrice)
		reply = fmt.Sprintf(
			"For you, our best price is $%.2f. That's %d%% off the list price.",
			price, discountPct(s.ListPrice, price),
		)
		proposed = ptr(price)
		countsAsRound = true

	case turnAccept:
		reply = fmt.Sprintf(
			"Great, $%.2f it is. Hit the accept button and I'll apply it to your cart.",
			s.CurrentPrice,
		)
		proposed = ptr(s.CurrentPrice)

	case turnPushback:
		price = round2(0.95 * s.CurrentPrice)
		reply = fmt.Sprintf(
			"I hear you. Let me shave off a little more: $%.2f. Can we make a deal?",
			price,
		)
		proposed = ptr(price)
		countsAsRound = true

	default:
		reply = genericPrompts[e.pick(len(genericPrompts))]
	}

	now := e.now()
	shopperMsg := Message{
		ID:        e.newID(),
		Role:      RoleShopper,
		Text:      text,
		Timestamp: now,
	}
	assistantMsg := Message{
		ID:            e.newID(),
		Role:          RoleAssistant,
		Text:          reply,
		Timestamp:     now,
		ProposedPrice: proposed,
	}

	s.CurrentPrice = price
	s.History = appendMessages(s.History, shopperMsg, assistantMsg)
	if countsAsRound {
		s.Round++
	}
	s.UpdatedAt = now

	return s, assistantMsg, nil
}

// resolveOffer maps a numeric offer onto the four policy bands. Every counter
// is a fraction of the current anchor price, rounded to cents immediately, so
// repeated lowballing keeps compounding the discount with no floor.
func (e *Engine) resolveOffer(s Session, offer float64) (float64, string, *float64) {
	anchor := s.CurrentPrice

	var price float64
	var reply string
	switch {
	case offer >= 0.95*anchor:
		price = offer
		reply = fmt.Sprintf(
			"Deal! $%.2f works for me. Hit the accept button and it's yours.",
			offer,
		)
	case offer >= 0.85*anchor:
		price = round2(0.90 * anchor)
		reply = fmt.Sprintf(
			"Thanks for the offer! I can't quite do $%.2f, but how about $%.2f? That's %d%% off the list price.",
			offer, price, discountPct(s.ListPrice, price),
		)
	case offer >= 0.70*anchor:
		price = round2(0.85 * anchor)
		reply = fmt.Sprintf(
			"That's a bit low for me. I could come down to $%.2f, which is %d%% off the list price. What do you say?",
			price, discountPct(s.ListPrice, price),
		)
	default:
		price = round2(0.80 * anchor)
		reply = fmt.Sprintf(
			"$%.2f is below what I can offer. The best I can do is $%.2f.",
			offer, price,
		)
	}

	return price, reply, ptr(price)
}

// AcceptCurrentPrice applies the explicit accept action: the session freezes
// at the most recently proposed price and no further turns are valid.
func (e *Engine) AcceptCurrentPrice(s Session) (Session, error) {
	if s.Status != StatusActive {
		return s, fmt.Errorf("accept session %s: %w", s.ID, ErrSessionNotActive)
	}
	s.CurrentPrice = s.LastProposedPrice()
	s.Status = StatusAccepted
	s.UpdatedAt = e.now()
	return s, nil
}

// Abandon marks a session abandoned when the chat widget is closed. Closing a
// session that already left the active state is a no-op.
func (e *Engine) Abandon(s Session) Session {
	if s.Status == StatusActive {
		s.Status = StatusAbandoned
		s.UpdatedAt = e.now()
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// discountPct quotes how far below list price a proposal sits, rounded to the
// nearest whole percent.
func discountPct(listPrice, proposed float64) int {
	return int(math.Round(100 * (listPrice - proposed) / listPrice))
}

func ptr(v float64) *float64 {
	return &v
}
