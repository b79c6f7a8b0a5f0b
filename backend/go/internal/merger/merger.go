// Package merger folds new evidence into an entity's summary through the oracle.
//
// The oracle call runs inside the store's serialized update, so two merges for the same
// entity never start from the same prior summary. New ids are filtered twice: once by the
// caller through the ledger, and again inside the update against the freshly read state.
package merger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"Trendline/backend/go/internal/ledger"
	"Trendline/backend/go/internal/llm"
	"Trendline/backend/go/internal/metrics"
	"Trendline/backend/go/internal/models"
	"Trendline/backend/go/internal/state"
	"Trendline/backend/go/pkg/logger"
)

// ErrMergeFailed means the oracle call failed or returned something unusable.
// The stored summary is untouched and the merge can be retried.
var ErrMergeFailed = errors.New("merge failed")

// Archiver receives evidence after it has been committed. Failures are logged only.
type Archiver interface {
	Archive(ctx context.Context, ref models.EntityRef, items []models.EvidenceItem) error
}

// Config holds merge policy.
type Config struct {
	MaxSentences     int
	MaxImages        int
	MaxEvidenceChars int
	OracleTimeout    time.Duration
	// AcceptPlainText allows a non-JSON oracle reply to be used verbatim as the summary.
	AcceptPlainText bool
	Policies        map[models.EntityKind]Policy
}

// Merger implements Merge and MergeActivity.
type Merger struct {
	store    state.Store
	oracle   llm.LLM
	cfg      Config
	logger   *logger.Logger
	archiver Archiver
	now      func() time.Time
}

// Option configures a Merger.
type Option func(*Merger)

// WithArchiver hands committed evidence to a.
func WithArchiver(a Archiver) Option {
	return func(m *Merger) { m.archiver = a }
}

// WithClock replaces the time source used for updated_at.
func WithClock(now func() time.Time) Option {
	return func(m *Merger) { m.now = now }
}

// New creates a Merger.
func New(store state.Store, oracle llm.LLM, cfg Config, log *logger.Logger, opts ...Option) *Merger {
	if cfg.MaxSentences <= 0 {
		cfg.MaxSentences = 5
	}
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = 8
	}
	if cfg.MaxEvidenceChars <= 0 {
		cfg.MaxEvidenceChars = 6000
	}
	m := &Merger{
		store:  store,
		oracle: oracle,
		cfg:    cfg,
		logger: log.WithField("component", "merger"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Merger) policy(kind models.EntityKind) Policy {
	if p, ok := m.cfg.Policies[kind]; ok {
		return p
	}
	return Policy{Prompt: DefaultPrompt}
}

// Merge folds evidence that ref has not seen yet into its summary and returns the resulting summary.
// With nothing new to merge it returns the current summary without calling the oracle.
func (m *Merger) Merge(ctx context.Context, ref models.EntityRef, evidence []models.EvidenceItem) (models.Summary, error) {
	candidates := ledger.Filter(nil, evidence)
	if len(candidates) == 0 {
		metrics.Merges.WithLabelValues(string(ref.Kind), metrics.ResultNoop).Inc()
		return m.current(ctx, ref)
	}

	var merged []models.EvidenceItem
	st, err := m.store.Update(ctx, ref, func(cur *models.EntityState) (*models.EntityState, error) {
		merged = nil
		fresh := ledger.Filter(cur.Summary.ContributingIDs, candidates)
		if len(fresh) == 0 {
			return nil, state.ErrNoChange
		}
		pol := m.policy(ref.Kind)
		text, err := m.fold(ctx, pol.Prompt, m.sentences(pol), cur.Profile, cur.Summary.Text, fresh)
		if err != nil {
			return nil, err
		}
		cur.Summary = m.advance(cur.Summary, text, fresh)
		merged = fresh
		return cur, nil
	})
	if err != nil {
		return models.Summary{}, m.fail(ref, err)
	}

	if len(merged) == 0 {
		metrics.Merges.WithLabelValues(string(ref.Kind), metrics.ResultNoop).Inc()
		return st.Summary, nil
	}
	metrics.Merges.WithLabelValues(string(ref.Kind), metrics.ResultOK).Inc()
	m.logger.WithPayload(map[string]interface{}{
		"entity":      ref.Key(),
		"merged":      len(merged),
		"contributed": len(st.Summary.ContributingIDs),
	}).Info("summary merged")
	m.archive(ctx, ref, merged)
	return st.Summary, nil
}

// MergeActivity appends ev to ref's activity log. When the kind's rollup threshold is reached,
// the pending events are folded into the summary in the same update, or into the activity
// summary when the kind has an activity prompt. A redelivered event (same id) is a no-op.
func (m *Merger) MergeActivity(ctx context.Context, ref models.EntityRef, ev models.ActivityEvent) (*models.EntityState, error) {
	pol := m.policy(ref.Kind)
	rolled := 0
	st, err := m.store.Update(ctx, ref, func(cur *models.EntityState) (*models.EntityState, error) {
		rolled = 0
		for _, existing := range cur.Activity {
			if existing.ID == ev.ID {
				return nil, state.ErrNoChange
			}
		}
		cur.Activity = append(cur.Activity, ev)

		target := &cur.Summary
		prompt := pol.Prompt
		if pol.ActivityPrompt != nil {
			if cur.ActivitySummary == nil {
				cur.ActivitySummary = &models.Summary{ContributingIDs: []string{}}
			}
			target = cur.ActivitySummary
			prompt = *pol.ActivityPrompt
		}
		pending := cur.PendingActivity(*target)
		if pol.RollupThreshold <= 0 || len(pending) < pol.RollupThreshold {
			return cur, nil
		}
		items := activityEvidence(pending)
		text, err := m.fold(ctx, prompt, m.sentences(pol), cur.Profile, target.Text, items)
		if err != nil {
			return nil, err
		}
		*target = m.advance(*target, text, items)
		rolled = len(items)
		return cur, nil
	})
	if err != nil {
		return nil, m.fail(ref, err)
	}
	if rolled > 0 {
		metrics.Merges.WithLabelValues(string(ref.Kind), metrics.ResultOK).Inc()
		m.logger.WithPayload(map[string]interface{}{
			"entity":   ref.Key(),
			"rolled":   rolled,
			"separate": pol.ActivityPrompt != nil,
		}).Info("activity rolled into summary")
	}
	return st, nil
}

func (m *Merger) current(ctx context.Context, ref models.EntityRef) (models.Summary, error) {
	st, err := m.store.Read(ctx, ref)
	if errors.Is(err, state.ErrNotFound) {
		return models.Summary{ContributingIDs: []string{}}, nil
	}
	if err != nil {
		return models.Summary{}, err
	}
	return st.Summary, nil
}

func (m *Merger) advance(prev models.Summary, text string, items []models.EvidenceItem) models.Summary {
	next := prev.Clone()
	next.Text = text
	for _, it := range items {
		next.ContributingIDs = append(next.ContributingIDs, it.ID)
	}
	next.UpdatedAt = m.now().UTC()
	return next
}

func (m *Merger) fail(ref models.EntityRef, err error) error {
	metrics.Merges.WithLabelValues(string(ref.Kind), metrics.ResultError).Inc()
	if errors.Is(err, ErrMergeFailed) {
		m.logger.WithErr("oracle_error", err).WithField("entity", ref.Key()).Warn("merge failed, summary unchanged")
		return err
	}
	return fmt.Errorf("update %s: %w", ref, err)
}

func (m *Merger) sentences(pol Policy) int {
	if pol.MaxSentences > 0 {
		return pol.MaxSentences
	}
	return m.cfg.MaxSentences
}

// fold asks the oracle for a new summary. Every failure is wrapped in ErrMergeFailed.
func (m *Merger) fold(ctx context.Context, prompt Prompt, sentences int, profile map[string]string, prior string, items []models.EvidenceItem) (string, error) {
	if m.cfg.OracleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.OracleTimeout)
		defer cancel()
	}

	user := prompt.Render(prior, m.renderEvidence(items), sentences)
	raw, err := llm.Complete(ctx, m.oracle, prompt.SystemFor(profile), user, prompt.Schema, m.images(items)...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMergeFailed, err)
	}
	text, err := m.parse(raw, prompt.Schema)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMergeFailed, err)
	}
	return text, nil
}

func (m *Merger) renderEvidence(items []models.EvidenceItem) string {
	var sb strings.Builder
	for i, it := range items {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if it.Title != "" {
			sb.WriteString(it.Title)
			sb.WriteString("\n")
		}
		text := it.Text
		if len(text) > m.cfg.MaxEvidenceChars {
			text = text[:m.cfg.MaxEvidenceChars]
		}
		sb.WriteString(text)
	}
	return sb.String()
}

func (m *Merger) images(items []models.EvidenceItem) []string {
	var out []string
	for _, it := range items {
		if it.Validated && it.MediaURL != "" && len(out) < m.cfg.MaxImages {
			out = append(out, it.MediaURL)
		}
	}
	return out
}

func (m *Merger) parse(raw string, schema *models.ResponseSchema) (string, error) {
	if schema == nil {
		return raw, nil
	}
	var reply struct {
		Summary *string `json:"summary"`
	}
	if err := llm.DecodeJSON(raw, &reply); err != nil || reply.Summary == nil {
		if m.cfg.AcceptPlainText {
			return raw, nil
		}
		return "", fmt.Errorf("malformed oracle response: %q", truncate(raw, 120))
	}
	text := strings.TrimSpace(*reply.Summary)
	if text == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

func (m *Merger) archive(ctx context.Context, ref models.EntityRef, items []models.EvidenceItem) {
	if m.archiver == nil {
		return
	}
	if err := m.archiver.Archive(ctx, ref, items); err != nil {
		m.logger.WithErr("archive_error", err).WithField("entity", ref.Key()).Warn("archiving merged evidence failed")
	}
}

func activityEvidence(events []models.ActivityEvent) []models.EvidenceItem {
	out := make([]models.EvidenceItem, len(events))
	for i, ev := range events {
		out[i] = models.EvidenceItem{
			ID:          ev.ID,
			Text:        ev.Description,
			PublishedAt: ev.Timestamp.Format(time.RFC3339),
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
