package archive

//go:generate mockgen -source=sink.go -destination=mock_sink.go -package=archive

import (
	"context"
	"fmt"
)

type ArchiveRequest struct {
	SubmissionID string `json:"submission_id"`
	Content      string `json:"content"`
	UserSummary  string `json:"user_summary"`
	Category     string `json:"category"`
	Sequence     int64  `json:"sequence"`
	Channel      string `json:"channel"`
}

// ObjectKey is where the raw content of a submission is stored.
func (r ArchiveRequest) ObjectKey() string {
	return fmt.Sprintf("submissions/%s/%d.json", r.Category, r.Sequence)
}

type ArchiveResult struct {
	OK           bool
	ReferenceURL string
}

// Sink stores raw submission content outside the ledger.
type Sink interface {
	Archive(ctx context.Context, req ArchiveRequest) (ArchiveResult, error)
}

// DiscardSink is used when no object store is configured.
type DiscardSink struct{}

func (DiscardSink) Archive(context.Context, ArchiveRequest) (ArchiveResult, error) {
	return ArchiveResult{}, nil
}
