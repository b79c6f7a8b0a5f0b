package merger

import (
	"strconv"
	"strings"

	"Trendline/backend/go/internal/models"
)

// Prompt is the per-kind instruction set sent to the oracle.
// Template may reference {{prior}}, {{evidence}} and {{sentences}}.
type Prompt struct {
	System   string
	Template string
	Schema   *models.ResponseSchema
}

// SummarySchema asks for {"summary": "..."}.
var SummarySchema = &models.ResponseSchema{
	Name:       "summary",
	Properties: map[string]string{"summary": "string"},
	Required:   []string{"summary"},
}

// DefaultPrompt is used for kinds without a registered prompt.
var DefaultPrompt = Prompt{
	System: "You maintain a short running summary. Keep what is still relevant from the existing summary and fold in the new information.",
	Template: `Existing summary:
{{prior}}

New information:
{{evidence}}

Write an updated summary of at most {{sentences}} sentences.`,
	Schema: SummarySchema,
}

// Render substitutes the placeholders.
func (p Prompt) Render(prior, evidence string, sentences int) string {
	if strings.TrimSpace(prior) == "" {
		prior = "(none yet)"
	}
	return strings.NewReplacer(
		"{{prior}}", prior,
		"{{evidence}}", evidence,
		"{{sentences}}", strconv.Itoa(sentences),
	).Replace(p.Template)
}

// SystemFor fills {{name}} placeholders in System from the entity's profile.
// Unknown placeholders are left as they are.
func (p Prompt) SystemFor(profile map[string]string) string {
	if len(profile) == 0 {
		return p.System
	}
	pairs := make([]string, 0, len(profile)*2)
	for k, v := range profile {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(p.System)
}

// Policy is everything the merger needs to know about one entity kind.
type Policy struct {
	Prompt Prompt
	// RollupThreshold is the number of pending activity events that triggers a summary
	// rollup. 0 keeps the activity log append-only.
	RollupThreshold int
	// ActivityPrompt, when set, rolls activity into the separate activity summary with this
	// prompt and leaves the main summary to evidence merges.
	ActivityPrompt *Prompt
	// MaxSentences overrides Config.MaxSentences when positive.
	MaxSentences int
}
