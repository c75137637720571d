package negotiation

import "testing"

func TestLastProposedPrice_FallsBackToCurrentPrice(t *testing.T) {
	s := Session{
		CurrentPrice: 120,
		History: []Message{
			{Role: RoleAssistant, Text: "welcome"},
			{Role: RoleShopper, Text: "hi"},
		},
	}

	if got := s.LastProposedPrice(); got != 120 {
		t.Errorf("Expected fallback to current price 120, got %v", got)
	}
}

func TestLastProposedPrice_PicksMostRecentProposal(t *testing.T) {
	s := Session{
		CurrentPrice: 100,
		History: []Message{
			{Role: RoleAssistant, ProposedPrice: ptr(95)},
			{Role: RoleShopper, Text: "hmm"},
			{Role: RoleAssistant, ProposedPrice: ptr(90)},
			{Role: RoleAssistant, Text: "anything else?"},
		},
	}

	if got := s.LastProposedPrice(); got != 90 {
		t.Errorf("Expected most recent proposal 90, got %v", got)
	}
}
