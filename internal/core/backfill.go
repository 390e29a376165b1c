package core

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/opsline/quell/internal/store"
)

// DefaultBatchSize is the number of audit rows committed per transaction
// during a backfill.
const DefaultBatchSize = 500

// BackfillResult reports how a replay of the audit trail went. Processed
// covers every row seen, including the skipped ones.
type BackfillResult struct {
	Processed  int
	Cleaned    int
	Duplicates int
	Skipped    int
}

// Backfill reclassifies the whole audit trail: the vector index is wiped
// and rebuilt in incident order, one relational transaction per batch.
// Rows whose embedding fails are skipped, not degraded, since the audit
// row is already durable and the next backfill can retry them.
//
// Must not run concurrently with live ingestion: it resets index state
// that live requests search.
func (e *Engine) Backfill(ctx context.Context, batchSize int) (*BackfillResult, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	if err := e.Index.Reset(ctx); err != nil {
		return nil, fmt.Errorf("failed to reset vector index: %w", err)
	}

	total, err := e.Store.AuditCount(ctx)
	if err != nil {
		return nil, err
	}
	log.Printf("backfill: %d audit rows", total)

	res := &BackfillResult{}
	for offset := 0; offset < total; offset += batchSize {
		err := e.Store.WithTx(ctx, func(tx store.Store) error {
			rows, err := tx.AuditBatch(ctx, batchSize, offset)
			if err != nil {
				return err
			}
			for _, rec := range rows {
				res.Processed++

				// Replay the audit insert; a no-op for rows already
				// present, which keeps historical rows re-runnable.
				if err := tx.InsertAudit(ctx, rec); err != nil {
					return err
				}

				vec, err := e.embed(ctx, rec)
				if err != nil || len(vec) == 0 {
					if err != nil {
						log.Printf("backfill: embedding failed for incident %s, skipping: %v", rec.IncidentID, err)
					}
					res.Skipped++
					continue
				}

				if match := e.topMatch(ctx, vec); match != nil && match.Similarity >= e.Threshold {
					if err := tx.InsertDuplicate(ctx, match.IncidentID, rec); err != nil {
						return err
					}
					res.Duplicates++
					continue
				}

				err = tx.InsertCleaned(ctx, rec)
				if errors.Is(err, store.ErrConflict) {
					// Cleaned by an earlier run. Re-index its vector so
					// later rows still match against it, but do not count
					// it again.
					if err := e.Index.Store(ctx, vec, entryFor(rec)); err != nil {
						log.Printf("backfill: vector store failed for incident %s: %v", rec.IncidentID, err)
					}
					continue
				}
				if err != nil {
					return err
				}
				if err := e.Index.Store(ctx, vec, entryFor(rec)); err != nil {
					log.Printf("backfill: vector store failed for incident %s: %v", rec.IncidentID, err)
				}
				res.Cleaned++
			}
			return nil
		})
		if err != nil {
			return res, err
		}
		log.Printf("backfill: processed %d/%d | cleaned: %d | duplicates: %d | skipped: %d",
			res.Processed, total, res.Cleaned, res.Duplicates, res.Skipped)
	}

	return res, nil
}
