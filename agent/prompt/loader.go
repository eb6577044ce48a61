package prompt

import (
	_ "embed"
	"strings"
)

//go:embed template/narrator.txt
var narratorRaw string

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Narrator string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// Safe to call concurrently; the embed is compile-time.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Narrator: strings.TrimSpace(narratorRaw),
	}
}
