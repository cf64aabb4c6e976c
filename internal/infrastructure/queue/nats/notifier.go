package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/scanworks/reportbroker/internal/core/domain"
	"github.com/scanworks/reportbroker/internal/infrastructure/resilience"
)

// Notifier publishes completion and needs-review events for the
// downstream notification system. Callers treat failures as
// fire-and-forget; nothing rolls back on a lost event.
type Notifier struct {
	conn             *nats.Conn
	completedSubject string
	reviewSubject    string
	executor         *resilience.Executor
}

func NewNotifier(conn *nats.Conn, completedSubject, reviewSubject string, executor *resilience.Executor) *Notifier {
	return &Notifier{
		conn:             conn,
		completedSubject: completedSubject,
		reviewSubject:    reviewSubject,
		executor:         executor,
	}
}

type completedEvent struct {
	DocumentID           string    `json:"document_id"`
	OriginalFilename     string    `json:"original_filename"`
	ScanType             string    `json:"scan_type"`
	SimilarityPercentage *float64  `json:"similarity_percentage,omitempty"`
	AIPercentage         *float64  `json:"ai_percentage,omitempty"`
	CompletedAt          time.Time `json:"completed_at"`
}

type needsReviewEvent struct {
	ReportID     string    `json:"report_id"`
	BatchID      string    `json:"batch_id"`
	FileName     string    `json:"file_name"`
	DetectedType string    `json:"detected_type,omitempty"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}

func (n *Notifier) DocumentCompleted(ctx context.Context, doc *domain.Document) error {
	return n.publish(ctx, n.completedSubject, completedEvent{
		DocumentID:           doc.ID,
		OriginalFilename:     doc.OriginalFilename,
		ScanType:             string(doc.ScanType),
		SimilarityPercentage: doc.SimilarityPercentage,
		AIPercentage:         doc.AIPercentage,
		CompletedAt:          time.Now().UTC(),
	})
}

func (n *Notifier) ReportNeedsReview(ctx context.Context, rep *domain.UnmatchedReport) error {
	return n.publish(ctx, n.reviewSubject, needsReviewEvent{
		ReportID:     rep.ID,
		BatchID:      rep.BatchID,
		FileName:     rep.FileName,
		DetectedType: string(rep.DetectedType),
		Reason:       rep.Reason,
		CreatedAt:    rep.CreatedAt,
	})
}

func (n *Notifier) publish(ctx context.Context, subject string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	call := func(_ context.Context) error {
		if err := n.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if n.executor != nil {
		err = n.executor.Execute(ctx, "nats.publish_event", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}
