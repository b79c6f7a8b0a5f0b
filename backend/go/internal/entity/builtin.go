package entity

import (
	"fmt"

	"Trendline/backend/go/internal/merger"
	"Trendline/backend/go/internal/models"
)

// GlobalActivityPrompt summarizes the cross-user activity log, one event at a time.
var GlobalActivityPrompt = merger.Prompt{
	System: "You are a user activity summarizer. Please summarize the user activity.",
	Template: `Here is a summary of user activity so far:

{{prior}}

Here is the latest user activity:

{{evidence}}

Write an updated summary as a single paragraph of plain prose (up to {{sentences}} sentences). Describe trends and patterns across users rather than listing individual events.`,
	Schema: merger.SummarySchema,
}

// GlobalDefinition is the fashion trend summary fed by news ingestion.
// It also keeps the cross-user activity log, which rolls into its own activity summary
// and never into the news summary.
func GlobalDefinition() Definition {
	return Definition{
		Kind: models.KindGlobal,
		Prompt: merger.Prompt{
			System: "You are a news summarizer. Summarize the news related to fashion trends and what to wear.",
			Template: `Here is a summary of fashion trends:

{{prior}}

Here are the latest news articles and their images related to fashion trends and what to wear:

{{evidence}}

Generate a new summary (up to {{sentences}} sentences) that keeps the existing trends and includes trends from the latest articles. Focus on what to wear, not on the articles themselves.`,
			Schema: merger.SummarySchema,
		},
		RollupThreshold: 1,
		ActivityPrompt:  &GlobalActivityPrompt,
		MaxSentences:    5,
	}
}

var userProfileDefaults = map[string]string{
	"gender":     "womenswear",
	"occupation": "computer programmer",
	"age":        "26",
}

// UserDefinition is the per-user preference summary built from interaction events.
func UserDefinition(rollupThreshold int) Definition {
	return Definition{
		Kind: models.KindUser,
		Init: initUser,
		Prompt: merger.Prompt{
			System: "You are a professional stylist for {{gender}}. Your client is a {{occupation}}, {{age}} years old, who has been asking you for recommendations and giving feedback.",
			Template: `Here is the previous summary of the client's requests and feedback:

{{prior}}

New activity:

{{evidence}}

Summarize the client's styling history in {{sentences}} sentences, describing their lifestyle, likes and dislikes, and anything a stylist should consider in the future.`,
			Schema: merger.SummarySchema,
		},
		RollupThreshold: rollupThreshold,
		MaxSentences:    3,
	}
}

func initUser(ref models.EntityRef, params map[string]string) (*models.EntityState, error) {
	st := models.NewEntityState(ref)
	st.Profile = make(map[string]string, len(userProfileDefaults))
	for k, v := range userProfileDefaults {
		st.Profile[k] = v
	}
	for k, v := range params {
		if _, ok := userProfileDefaults[k]; !ok {
			return nil, fmt.Errorf("%w: unknown user param %q", ErrBadParams, k)
		}
		if v != "" {
			st.Profile[k] = v
		}
	}
	return st, nil
}

// Builtins registers the global and user kinds.
func Builtins(rollupThreshold int) *Registry {
	r := NewRegistry()
	_ = r.Register(GlobalDefinition())
	_ = r.Register(UserDefinition(rollupThreshold))
	return r
}
