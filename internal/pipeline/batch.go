package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchWorkers is the worker count used when none is given.
const DefaultBatchWorkers = 4

// BatchStatus summarizes one batch item.
type BatchStatus string

const (
	BatchSuccess BatchStatus = "success"
	BatchWarning BatchStatus = "warning"
	BatchError   BatchStatus = "error"
)

// BatchItem is the outcome for one document of a batch.
type BatchItem struct {
	Index  int
	Name   string
	Result *Result
	Err    error
	Status BatchStatus
}

// Status classifies a processed document: warning when the report has
// errors or a fallback other than disabled enrichment was taken.
func Status(result *Result, err error) BatchStatus {
	switch {
	case err != nil || result == nil:
		return BatchError
	case !result.Report.Valid,
		result.Outcome.OCRPlaceholder,
		result.Outcome.EnrichmentPath == PathHeuristicsOnly,
		result.Outcome.PersistenceError != "":
		return BatchWarning
	}
	return BatchSuccess
}

// ProcessBatch processes docs with a bounded number of workers. A failed
// document never stops the batch. Items keep the order of docs; progress,
// when set, is called once per finished item and never concurrently.
func (p *Processor) ProcessBatch(ctx context.Context, docs []Document, workers int, progress func(done, total int, item BatchItem)) []BatchItem {
	if workers <= 0 {
		workers = DefaultBatchWorkers
	}

	items := make([]BatchItem, len(docs))
	var (
		mu   sync.Mutex
		done int
	)

	var g errgroup.Group
	g.SetLimit(workers)
	for i, doc := range docs {
		g.Go(func() error {
			item := BatchItem{Index: i, Name: doc.Name}
			if err := ctx.Err(); err != nil {
				item.Err = err
			} else {
				item.Result, item.Err = p.Process(ctx, doc)
			}
			item.Status = Status(item.Result, item.Err)
			items[i] = item

			mu.Lock()
			defer mu.Unlock()
			done++
			if progress != nil {
				progress(done, len(docs), item)
			}
			return nil
		})
	}
	_ = g.Wait()

	succeeded, warnings, failed := 0, 0, 0
	for _, item := range items {
		switch item.Status {
		case BatchSuccess:
			succeeded++
		case BatchWarning:
			warnings++
		default:
			failed++
		}
	}
	p.log.Info().
		Int("total", len(docs)).
		Int("workers", workers).
		Int("success", succeeded).
		Int("warnings", warnings).
		Int("errors", failed).
		Msg("Batch processing completed")

	return items
}
