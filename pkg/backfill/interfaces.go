package backfill

import (
	"context"

	"zsxqsync/pkg/models"
	"zsxqsync/pkg/topic"
	"zsxqsync/pkg/zsxq"
)

// PageFetcher returns one page of a group's feed
type PageFetcher interface {
	FetchPage(ctx context.Context, groupID string, cursor zsxq.Cursor) (*zsxq.Page, error)
}

// Translator materializes a raw topic. ok is false for entries that are not
// persisted.
type Translator interface {
	Translate(ctx context.Context, src models.Source, raw zsxq.Topic) (*models.Topic, bool, error)
	Stats() topic.Stats
}

// Sink receives the topics of one group in discovery order
type Sink interface {
	Has(topicID int64) bool
	Append(ctx context.Context, t *models.Topic) (bool, error)
	Flush() error
}
