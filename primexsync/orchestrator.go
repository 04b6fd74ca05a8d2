package primexsync

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/catalog_sync/models"
)

// RunResult is what the one-shot trigger entry points hand back.
type RunResult struct {
	SessionId string     `json:"sessionId"`
	Stats     BatchStats `json:"stats"`
	Zeroed    int        `json:"zeroed"`
}

// RunCatalogSync executes a full catalog synchronization in one call:
// lock, fetch, chunked upsert, orphan sweep, ledger bookkeeping. The
// step protocol covers datasets too large for a single request cycle;
// this path serves manual triggers and small catalogs.
func (e *Engine) RunCatalogSync(ctx context.Context, triggeredBy string) (*RunResult, error) {
	if err := e.locks.Acquire(ctx, models.SyncTypeCatalog, e.settings.LockTTL); err != nil {
		return nil, err
	}
	defer e.locks.Release(ctx, models.SyncTypeCatalog)

	rows, err := e.gateway.FetchCatalog(ctx)
	if err != nil {
		return nil, err
	}

	sessionId := NewSessionId()
	run := e.beginRun(ctx, models.SyncTypeCatalog, sessionId, triggeredBy, len(rows), false)
	var runId uint
	if run != nil {
		runId = run.ID
	}

	var stats BatchStats
	attrMemo := make(map[string]int)
	for offset := 0; offset < len(rows); offset += e.settings.BatchSize {
		end := offset + e.settings.BatchSize
		if end > len(rows) {
			end = len(rows)
		}
		stats.Add(e.processCatalogBatch(ctx, runId, sessionId, rows[offset:end], attrMemo))
		e.writeProgress(models.SyncTypeCatalog, end, len(rows), fmt.Sprintf("processed %d of %d", end, len(rows)))
	}

	zeroed, sweepErr := e.sweepOrphans(ctx, sessionId)
	e.finishRun(ctx, run, stats, zeroed, sweepErr != nil)
	e.writeProgress(models.SyncTypeCatalog, 0, 0, "done")
	if sweepErr != nil {
		return nil, sweepErr
	}

	return &RunResult{SessionId: sessionId, Stats: stats, Zeroed: zeroed}, nil
}

// RunStockSync executes a full stock/price synchronization, optionally
// limited to the given skus. The orphan sweep only runs on an
// unfiltered sync: a filtered run never saw the rest of the catalog,
// so zeroing it would be wrong.
func (e *Engine) RunStockSync(ctx context.Context, triggeredBy string, skus []string) (*RunResult, error) {
	if err := e.locks.Acquire(ctx, models.SyncTypeStock, e.settings.LockTTL); err != nil {
		return nil, err
	}
	defer e.locks.Release(ctx, models.SyncTypeStock)

	rows, err := e.gateway.FetchStock(ctx, skus)
	if err != nil {
		return nil, err
	}

	sessionId := NewSessionId()
	run := e.beginRun(ctx, models.SyncTypeStock, sessionId, triggeredBy, len(rows), len(skus) > 0)
	var runId uint
	if run != nil {
		runId = run.ID
	}

	var stats BatchStats
	for offset := 0; offset < len(rows); offset += e.settings.BatchSize {
		end := offset + e.settings.BatchSize
		if end > len(rows) {
			end = len(rows)
		}
		stats.Add(e.processStockBatch(ctx, runId, sessionId, rows[offset:end]))
		e.writeProgress(models.SyncTypeStock, end, len(rows), fmt.Sprintf("processed %d of %d", end, len(rows)))
	}

	zeroed := 0
	var sweepErr error
	if len(skus) == 0 {
		zeroed, sweepErr = e.sweepOrphans(ctx, sessionId)
	}
	e.finishRun(ctx, run, stats, zeroed, sweepErr != nil)
	e.writeProgress(models.SyncTypeStock, 0, 0, "done")
	if sweepErr != nil {
		return nil, sweepErr
	}

	return &RunResult{SessionId: sessionId, Stats: stats, Zeroed: zeroed}, nil
}

// RunCodeSync executes a discount code synchronization in the given
// mode. Codes are never zeroed by a sweep; the remote's deleted flag
// is the only retirement signal.
func (e *Engine) RunCodeSync(ctx context.Context, triggeredBy string, mode CodeSyncMode) (*CodeStats, error) {
	if err := e.locks.Acquire(ctx, models.SyncTypeCode, e.settings.LockTTL); err != nil {
		return nil, err
	}
	defer e.locks.Release(ctx, models.SyncTypeCode)

	rows, err := e.gateway.FetchDiscountCards(ctx)
	if err != nil {
		return nil, err
	}

	sessionId := NewSessionId()
	run := e.beginRun(ctx, models.SyncTypeCode, sessionId, triggeredBy, len(rows), false)
	var runId uint
	if run != nil {
		runId = run.ID
	}

	var stats BatchStats
	for offset := 0; offset < len(rows); offset += e.settings.BatchSize {
		end := offset + e.settings.BatchSize
		if end > len(rows) {
			end = len(rows)
		}
		stats.Add(e.processCodeBatch(ctx, runId, mode, sessionId, rows[offset:end]))
		e.writeProgress(models.SyncTypeCode, end, len(rows), fmt.Sprintf("processed %d of %d", end, len(rows)))
	}

	e.finishRun(ctx, run, stats, 0, false)
	e.writeProgress(models.SyncTypeCode, 0, 0, "done")

	return &CodeStats{
		Created:     stats.Created,
		Updated:     stats.Updated,
		TotalRemote: len(rows),
	}, nil
}

func (e *Engine) ImportNewCodes(ctx context.Context, triggeredBy string) (*CodeStats, error) {
	return e.RunCodeSync(ctx, triggeredBy, CodeModeImportNew)
}

func (e *Engine) UpdateExistingCodes(ctx context.Context, triggeredBy string) (*CodeStats, error) {
	return e.RunCodeSync(ctx, triggeredBy, CodeModeUpdateExisting)
}

func (e *Engine) FullSyncCodes(ctx context.Context, triggeredBy string) (*CodeStats, error) {
	return e.RunCodeSync(ctx, triggeredBy, CodeModeFullSync)
}

func (e *Engine) ForceImportCodes(ctx context.Context, triggeredBy string) (*CodeStats, error) {
	return e.RunCodeSync(ctx, triggeredBy, CodeModeForceImport)
}

// RefreshItem re-pulls stock and price for a single sku without taking
// the sync lock. It may race a concurrent full sync; both apply the
// same remote truth, so the race is harmless.
func (e *Engine) RefreshItem(ctx context.Context, sku string) (*BatchStats, error) {
	if sku == "" {
		return nil, fmt.Errorf("%w: empty sku", ErrInvalidStep)
	}
	rows, err := e.gateway.FetchStock(ctx, []string{sku})
	if err != nil {
		return nil, err
	}
	stats := e.processStockBatch(ctx, 0, "", rows)
	return &stats, nil
}
