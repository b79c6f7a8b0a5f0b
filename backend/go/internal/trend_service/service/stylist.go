package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"Trendline/backend/go/internal/entity"
	"Trendline/backend/go/internal/llm"
	"Trendline/backend/go/internal/models"
	"Trendline/backend/go/pkg/logger"
)

var (
	ErrInvalidRequest = errors.New("invalid stylist request")
	ErrStylistFailed  = errors.New("stylist failed")
)

// maxItems bounds the short item names remembered from one recommendation.
const maxItems = 5

var outfitSchema = &models.ResponseSchema{
	Name: "recommendation",
	Properties: map[string]string{
		"shoes":               "string",
		"upper_body_garments": "string",
		"lower_body_garments": "string",
		"outerwear":           "string",
		"bags":                "string",
		"items":               "string",
	},
	Required: []string{"shoes", "upper_body_garments", "lower_body_garments", "outerwear", "bags", "items"},
}

var noteSchema = &models.ResponseSchema{
	Name:       "note",
	Properties: map[string]string{"note": "string"},
	Required:   []string{"note"},
}

// Outfit is one recommendation, one field per garment group.
type Outfit struct {
	Shoes     string `json:"shoes"`
	UpperBody string `json:"upper_body_garments"`
	LowerBody string `json:"lower_body_garments"`
	Outerwear string `json:"outerwear"`
	Bags      string `json:"bags"`
}

// Recommendation is the reply of Recommend.
type Recommendation struct {
	Outfit
	Query string               `json:"query"`
	Items []string             `json:"items"`
	Event models.ActivityEvent `json:"event"`
}

// Stylist serves recommendations and notes from a user's profile and summary.
// The oracle runs outside any store update: serving never changes the summary.
type Stylist struct {
	entities *entity.Service
	activity *ActivityService
	oracle   llm.LLM
	timeout  time.Duration
	logger   *logger.Logger
}

func NewStylist(entities *entity.Service, activity *ActivityService, oracle llm.LLM, timeout time.Duration, log *logger.Logger) *Stylist {
	return &Stylist{
		entities: entities,
		activity: activity,
		oracle:   oracle,
		timeout:  timeout,
		logger:   log.WithField("component", "stylist"),
	}
}

// Recommend asks the oracle what userID should wear to query, avoiding items already
// suggested for the same query. The suggested items are remembered and the query is
// recorded as the user's activity.
func (s *Stylist) Recommend(ctx context.Context, userID, query string) (*Recommendation, error) {
	userID, query = strings.TrimSpace(userID), strings.TrimSpace(query)
	if userID == "" || query == "" {
		return nil, fmt.Errorf("%w: user id and query are required", ErrInvalidRequest)
	}
	ref := models.EntityRef{Kind: models.KindUser, ID: userID}
	st, err := s.client(ctx, ref)
	if err != nil {
		return nil, err
	}

	gender := st.Profile["gender"]
	prompt := fmt.Sprintf("%s What %s apparel items should I buy to wear to %s?%s Make sure your suggestions are appropriate for the dress code. Be highly specific for each item, including colors, cuts, and styles. In items, list at most %d of the pieces you recommended, comma separated, each no more than 3 words long.",
		introduce(st), gender, query, avoid(st.Recommendations[models.RecommendationKey(query)]), maxItems)

	var reply struct {
		Outfit
		Items string `json:"items"`
	}
	if err := s.ask(ctx, stylistSystem(gender), prompt, outfitSchema, &reply); err != nil {
		return nil, err
	}
	rec := &Recommendation{Outfit: reply.Outfit, Query: query, Items: splitItems(reply.Items)}

	if _, err := s.entities.Dispatch(ctx, entity.Request{
		Op:             entity.OpMerge,
		Ref:            ref,
		Recommendation: &models.RecommendationRecord{Query: query, Items: rec.Items},
	}); err != nil {
		return nil, fmt.Errorf("remember recommendation: %w", err)
	}
	ev, err := s.activity.Submit(ctx, userID, "Asked what to wear to "+query)
	if err != nil {
		return nil, fmt.Errorf("record query: %w", err)
	}
	rec.Event = ev

	s.logger.WithPayload(map[string]interface{}{
		"user_id": userID,
		"query":   query,
		"items":   rec.Items,
	}).Info("recommendation served")
	return rec, nil
}

// Note explains in a few sentences why item suits userID for event.
func (s *Stylist) Note(ctx context.Context, userID, event, item string) (string, error) {
	userID, event, item = strings.TrimSpace(userID), strings.TrimSpace(event), strings.TrimSpace(item)
	if userID == "" || event == "" || item == "" {
		return "", fmt.Errorf("%w: user id, event and item are required", ErrInvalidRequest)
	}
	st, err := s.client(ctx, models.EntityRef{Kind: models.KindUser, ID: userID})
	if err != nil {
		return "", err
	}
	prompt := fmt.Sprintf("%s For `%s`, you recommended the following item for me to buy: %s. Please write a short 2-3 sentence note for why I should buy this item, referencing only my occupation and preferences if they are relevant to the event. If you don't have enough information, describe why this item is in style or why it's a good fit for the event.",
		introduce(st), event, item)

	var reply struct {
		Note string `json:"note"`
	}
	if err := s.ask(ctx, stylistSystem(st.Profile["gender"]), prompt, noteSchema, &reply); err != nil {
		return "", err
	}
	note := strings.TrimSpace(reply.Note)
	if note == "" {
		return "", fmt.Errorf("%w: %w", ErrStylistFailed, llm.ErrEmptyResponse)
	}
	return note, nil
}

// client returns the user's state, creating it with default params on first use.
func (s *Stylist) client(ctx context.Context, ref models.EntityRef) (*models.EntityState, error) {
	resp, err := s.entities.Dispatch(ctx, entity.Request{Op: entity.OpInit, Ref: ref})
	if err != nil {
		return nil, err
	}
	return resp.State, nil
}

func (s *Stylist) ask(ctx context.Context, system, prompt string, schema *models.ResponseSchema, out interface{}) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	raw, err := llm.Complete(ctx, s.oracle, system, prompt, schema)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStylistFailed, err)
	}
	if err := llm.DecodeJSON(raw, out); err != nil {
		return fmt.Errorf("%w: malformed oracle response: %v", ErrStylistFailed, err)
	}
	return nil
}

func stylistSystem(gender string) string {
	return fmt.Sprintf("You are a professional stylist for %s.", gender)
}

func introduce(st *models.EntityState) string {
	intro := fmt.Sprintf("I am your client, a %s and %s years old.", st.Profile["occupation"], st.Profile["age"])
	if text := strings.TrimSpace(st.Summary.Text); text != "" {
		intro += " Here's a summary of my previous searches, which you can use to figure out my lifestyle and potential wardrobe preferences: " + text
	}
	return intro
}

func avoid(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return " Avoid recommending the following: " + strings.Join(items, ", ") + "."
}

func splitItems(s string) []string {
	var out []string
	for _, it := range strings.Split(s, ",") {
		if it = strings.TrimSpace(it); it != "" && len(out) < maxItems {
			out = append(out, it)
		}
	}
	return out
}
