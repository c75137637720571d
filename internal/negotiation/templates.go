package negotiation

import "math/rand"

// PromptPicker selects one of n prompt templates. Production wiring uses a
// random picker; tests inject a fixed one to pin output.
type PromptPicker func(n int) int

// genericPrompts are the clarifying questions asked when a shopper message
// contains neither a number nor a recognized keyword.
var genericPrompts = []string{
	"What price did you have in mind?",
	"Do you have a budget for this? I might be able to meet it.",
	"Make me an offer and let's see what I can do.",
	"What would it take to close this deal today?",
}

func randomPicker(n int) int {
	return rand.Intn(n)
}
