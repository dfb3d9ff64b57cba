package jobs

import (
	"context"

	"github.com/phuslu/log"

	"github.com/cloo-solutions/copilot/internal/domain"
)

// DefaultAuditBatchSize bounds one flush write.
const DefaultAuditBatchSize = 100

// AuditWriter persists a batch of audit records.
type AuditWriter interface {
	CreateBatch(ctx context.Context, recs []*domain.AuditRecord) error
}

// AuditArchiver copies a batch of audit records to long-term storage.
type AuditArchiver interface {
	Archive(ctx context.Context, recs []*domain.AuditRecord) (string, error)
}

// AuditFlusher drains the audit queue into Postgres and, when configured, the
// archive. Write failures are logged and the batch is dropped; they never
// reach the request path.
type AuditFlusher struct {
	queue     <-chan *domain.AuditRecord
	store     AuditWriter
	archive   AuditArchiver
	batchSize int
}

// NewAuditFlusher creates a flusher. archive may be nil.
func NewAuditFlusher(queue <-chan *domain.AuditRecord, store AuditWriter, archive AuditArchiver, batchSize int) *AuditFlusher {
	if batchSize <= 0 {
		batchSize = DefaultAuditBatchSize
	}
	return &AuditFlusher{
		queue:     queue,
		store:     store,
		archive:   archive,
		batchSize: batchSize,
	}
}

// ProcessJobs writes every record currently queued, in batches. It implements
// JobProcessor and always returns nil.
func (f *AuditFlusher) ProcessJobs(ctx context.Context) error {
	for {
		batch := f.take()
		if len(batch) == 0 {
			return nil
		}
		f.write(ctx, batch)
		if len(batch) < f.batchSize {
			return nil
		}
	}
}

// take reads up to batchSize records without blocking.
func (f *AuditFlusher) take() []*domain.AuditRecord {
	var batch []*domain.AuditRecord
	for len(batch) < f.batchSize {
		select {
		case rec, ok := <-f.queue:
			if !ok {
				return batch
			}
			batch = append(batch, rec)
		default:
			return batch
		}
	}
	return batch
}

func (f *AuditFlusher) write(ctx context.Context, batch []*domain.AuditRecord) {
	if err := f.store.CreateBatch(ctx, batch); err != nil {
		log.Error().Err(err).Int("records", len(batch)).Msg("failed to write audit batch")
	} else {
		log.Debug().Int("records", len(batch)).Msg("audit batch written")
	}

	if f.archive == nil {
		return
	}
	key, err := f.archive.Archive(ctx, batch)
	if err != nil {
		log.Error().Err(err).Int("records", len(batch)).Msg("failed to archive audit batch")
		return
	}
	log.Debug().Str("key", key).Int("records", len(batch)).Msg("audit batch archived")
}
