package usecase

import "strings"

// DefaultPersona is used when the operator configures no system prompt.
const DefaultPersona = "You are an assistant specialised in PC components and custom computer builds."

// BuildSystemPrompt assembles the system prompt every adapter sends through
// its system channel: the operator persona followed by fixed behavior rules.
func BuildSystemPrompt(persona string) string {
	persona = strings.TrimSpace(persona)
	if persona == "" {
		persona = DefaultPersona
	}
	return strings.Join([]string{
		"Role:",
		persona,
		"",
		"Behavior Rules:",
		behaviorRules(),
	}, "\n")
}

func behaviorRules() string {
	return strings.Join([]string{
		"1) Answer the latest user message; earlier turns are context only.",
		"2) Keep replies short but complete.",
		"3) Reply in the language the user writes in.",
		"4) When recommending parts, state the key specs and an approximate price range.",
		"5) If required information is unavailable, say so instead of guessing.",
	}, "\n")
}
