package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/scanworks/reportbroker/internal/core/domain"
	"github.com/scanworks/reportbroker/internal/core/ports"
)

type MatchEngine struct {
	repo       ports.DocumentRepository
	scorer     ports.SimilarityScorer
	thresholds domain.MatchThresholds
}

func NewMatchEngine(
	repo ports.DocumentRepository,
	scorer ports.SimilarityScorer,
	thresholds domain.MatchThresholds,
) *MatchEngine {
	if thresholds.Partial <= 0 {
		thresholds = domain.DefaultMatchThresholds()
	}
	if thresholds.MaxSuggestions <= 0 {
		thresholds.MaxSuggestions = domain.DefaultMatchThresholds().MaxSuggestions
	}
	return &MatchEngine{
		repo:       repo,
		scorer:     scorer,
		thresholds: thresholds,
	}
}

// Preview classifies each filename against every eligible document,
// regardless of which report slot it would fill. Used by the
// confirm-before-commit step.
func (e *MatchEngine) Preview(ctx context.Context, filenames []string) ([]domain.MatchPreview, error) {
	docs, err := e.repo.ListEligible(ctx, domain.ReportUnknown)
	if err != nil {
		return nil, fmt.Errorf("list eligible documents: %w", err)
	}
	return e.previewAgainst(filenames, docs), nil
}

// MatchOne classifies a single filename against the documents still
// lacking the given report slot, reading live queue state.
func (e *MatchEngine) MatchOne(ctx context.Context, filename string, missing domain.ReportType) (*domain.MatchPreview, error) {
	docs, err := e.repo.ListEligible(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("list eligible documents: %w", err)
	}
	previews := e.previewAgainst([]string{filename}, docs)
	return &previews[0], nil
}

// previewAgainst is the pure matching core: one preview per input
// filename, in input order.
func (e *MatchEngine) previewAgainst(filenames []string, docs []domain.Document) []domain.MatchPreview {
	previews := make([]domain.MatchPreview, 0, len(filenames))
	for _, name := range filenames {
		previews = append(previews, e.classify(name, docs))
	}
	return previews
}

func (e *MatchEngine) classify(filename string, docs []domain.Document) domain.MatchPreview {
	key := domain.NormalizeFilename(filename)
	preview := domain.MatchPreview{
		FileName:      filename,
		NormalizedKey: key,
		Status:        domain.MatchNone,
		Suggestions:   []domain.MatchCandidate{},
	}
	if len(docs) == 0 {
		return preview
	}

	var exact []domain.MatchCandidate
	var scored []domain.MatchCandidate
	for i := range docs {
		doc := &docs[i]
		if doc.NormalizedKey == key && key != "" {
			exact = append(exact, domain.MatchCandidate{Document: doc, Confidence: 100})
			continue
		}
		if s := e.scorer.Score(key, doc.NormalizedKey); s > 0 {
			scored = append(scored, domain.MatchCandidate{Document: doc, Confidence: s})
		}
	}

	sortCandidates(scored)

	if len(exact) > 0 {
		// Duplicate filenames: the earliest upload wins, the rest stay
		// visible as suggestions.
		sort.SliceStable(exact, func(i, j int) bool {
			return exact[i].Document.CreatedAt.Before(exact[j].Document.CreatedAt)
		})
		winner := exact[0]
		preview.Status = domain.MatchExact
		preview.MatchedDocument = &winner
		preview.Suggestions = e.capSuggestions(append(exact[1:], scored...))
		return preview
	}

	preview.Suggestions = e.capSuggestions(scored)
	if len(scored) == 0 {
		return preview
	}

	top := scored[0]
	switch {
	case top.Confidence >= e.thresholds.Partial:
		preview.Status = domain.MatchPartial
		preview.MatchedDocument = &top
	case top.Confidence >= e.thresholds.None:
		// Ambiguous tier: suggestions only, a human picks.
		preview.Status = domain.MatchPartial
	default:
		preview.Status = domain.MatchNone
	}
	return preview
}

func sortCandidates(candidates []domain.MatchCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].Document.CreatedAt.Before(candidates[j].Document.CreatedAt)
	})
}

func (e *MatchEngine) capSuggestions(candidates []domain.MatchCandidate) []domain.MatchCandidate {
	if candidates == nil {
		return []domain.MatchCandidate{}
	}
	if len(candidates) > e.thresholds.MaxSuggestions {
		candidates = candidates[:e.thresholds.MaxSuggestions]
	}
	return candidates
}
