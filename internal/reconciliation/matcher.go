package reconciliation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/frahmantamala/payment-reconciliation/internal/intent"
)

type MatchDecision string

const (
	DecisionMatched MatchDecision = "matched"
	DecisionNoMatch MatchDecision = "no_match"
)

// MatchResult is a pure decision; the matcher never mutates state. The
// orchestrator is the only component that acts on it.
type MatchResult struct {
	Decision   MatchDecision
	Intent     *intent.PaymentIntent
	Candidates int
}

type Matcher struct {
	repo   intent.RepositoryAPI
	window time.Duration
	logger *slog.Logger
}

func NewMatcher(repo intent.RepositoryAPI, window time.Duration, logger *slog.Logger) *Matcher {
	return &Matcher{
		repo:   repo,
		window: window,
		logger: logger,
	}
}

// Match resolves a notification to at most one pending intent. Candidates are
// the pending intents with the same amount and currency created inside the
// window ending at receivedAt. A notification note that names a candidate's
// intent token wins outright; otherwise the oldest candidate is selected.
// The FIFO tie-break assumes the earliest payer finished paying first; it is
// a heuristic, and ambiguous matches are logged so operators can audit them.
func (m *Matcher) Match(ctx context.Context, amountCents int64, currency, supporterNote string, receivedAt time.Time) (MatchResult, error) {
	windowStart := receivedAt.Add(-m.window)

	records, err := m.repo.FindCandidates(ctx, amountCents, currency, windowStart, receivedAt)
	if err != nil {
		return MatchResult{}, err
	}

	if len(records) == 0 {
		m.logger.Warn("no pending intent for notification",
			"amount_cents", amountCents,
			"currency", currency,
			"window_start", windowStart,
			"received_at", receivedAt)
		return MatchResult{Decision: DecisionNoMatch}, nil
	}

	candidates := make([]*intent.PaymentIntent, 0, len(records))
	for _, record := range records {
		candidates = append(candidates, intent.FromDataModel(record))
	}

	if hinted := matchByNoteHint(candidates, supporterNote); hinted != nil {
		m.logger.Info("matched intent via note token",
			"intent_id", hinted.IntentID,
			"candidates", len(candidates))
		return MatchResult{Decision: DecisionMatched, Intent: hinted, Candidates: len(candidates)}, nil
	}

	selected := candidates[0]
	if len(candidates) > 1 {
		m.logger.Warn("ambiguous match resolved by FIFO tie-break",
			"intent_id", selected.IntentID,
			"candidates", len(candidates),
			"amount_cents", amountCents,
			"currency", currency)
	}

	return MatchResult{Decision: DecisionMatched, Intent: selected, Candidates: len(candidates)}, nil
}

// matchByNoteHint returns the candidate whose intent token appears in the
// supporter note, or nil when the note names none of them.
func matchByNoteHint(candidates []*intent.PaymentIntent, supporterNote string) *intent.PaymentIntent {
	if supporterNote == "" {
		return nil
	}
	note := strings.ToUpper(supporterNote)
	for _, candidate := range candidates {
		if strings.Contains(note, strings.ToUpper(candidate.IntentID)) {
			return candidate
		}
	}
	return nil
}
