package notify

import (
	"context"
	"fmt"

	"github.com/dwitter/apiserver/types"
)

// ObjectWriter is the part of storage.Storage the archive sink needs.
type ObjectWriter interface {
	PutJSON(ctx context.Context, key string, value any) error
}

// ArchiveSink writes each event as one JSON object, partitioned by day.
type ArchiveSink struct {
	writer ObjectWriter
}

func NewArchiveSink(writer ObjectWriter) *ArchiveSink {
	return &ArchiveSink{writer: writer}
}

func (s *ArchiveSink) Name() string { return "archive" }

func (s *ArchiveSink) Deliver(ctx context.Context, event types.Event) error {
	return s.writer.PutJSON(ctx, ArchiveKey(event), event)
}

// ArchiveKey returns events/<name>/<yyyy-mm-dd>/<id>.json in UTC.
func ArchiveKey(event types.Event) string {
	return fmt.Sprintf("events/%s/%s/%s.json",
		event.Name, event.OccurredAt.UTC().Format("2006-01-02"), event.ID)
}
