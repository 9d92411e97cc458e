package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/minio/minio-go/v7"
)

type MinioSink struct {
	client *minio.Client
	bucket string
}

func NewMinioSink(client *minio.Client, bucket string) *MinioSink {
	return &MinioSink{client: client, bucket: bucket}
}

type archivedDocument struct {
	SubmissionID string          `json:"submission_id"`
	User         string          `json:"user"`
	Category     string          `json:"category"`
	Sequence     int64           `json:"sequence"`
	Channel      string          `json:"channel"`
	Content      json.RawMessage `json:"content"`
}

func (s *MinioSink) Archive(ctx context.Context, req ArchiveRequest) (ArchiveResult, error) {
	content := json.RawMessage(req.Content)
	if !json.Valid(content) {
		quoted, _ := json.Marshal(req.Content)
		content = quoted
	}

	body, err := json.Marshal(archivedDocument{
		SubmissionID: req.SubmissionID,
		User:         req.UserSummary,
		Category:     req.Category,
		Sequence:     req.Sequence,
		Channel:      req.Channel,
		Content:      content,
	})
	if err != nil {
		return ArchiveResult{}, err
	}

	key := req.ObjectKey()
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"submission-id": req.SubmissionID,
			"channel":       req.Channel,
		},
	})
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("put %s: %w", key, err)
	}

	return ArchiveResult{
		OK:           true,
		ReferenceURL: fmt.Sprintf("%s/%s/%s", s.client.EndpointURL().String(), info.Bucket, info.Key),
	}, nil
}
