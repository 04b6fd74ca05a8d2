package primexsync

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/catalog_sync/config"
	"github.com/mmdatafocus/catalog_sync/models"
	"github.com/mmdatafocus/catalog_sync/utils"
)

const (
	datasetKeyPrefix = "primexsync:dataset:"
	activeKeyPrefix  = "primexsync:active:"
	lastRunKeyPrefix = "primexsync:lastrun:"
)

// Step drives the client-side chunked protocol: init once, process
// repeatedly with the previous nextOffset, cleanup exactly once. The
// engine keeps no in-process state between calls; everything a later
// step needs lives in Redis or MySQL, so any instance behind a load
// balancer can serve any step of a session.
func (e *Engine) Step(ctx context.Context, req StepRequest) (*StepResponse, error) {
	switch req.SyncType {
	case models.SyncTypeCatalog, models.SyncTypeStock, models.SyncTypeCode:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSyncType, req.SyncType)
	}

	switch req.Step {
	case StepInit:
		return e.stepInit(ctx, req)
	case StepProcess:
		return e.stepProcess(ctx, req)
	case StepCleanup:
		return e.stepCleanup(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStep, req.Step)
	}
}

// stepInit acquires the sync-type lock, fetches the full remote
// dataset once and caches it under a fresh session id. The lock is
// released again on any failure past acquisition so a bad init never
// wedges the type until TTL expiry.
func (e *Engine) stepInit(ctx context.Context, req StepRequest) (*StepResponse, error) {
	if err := e.locks.Acquire(ctx, req.SyncType, e.settings.LockTTL); err != nil {
		return nil, err
	}

	ds, err := e.fetchDataset(ctx, req)
	if err != nil {
		e.locks.Release(ctx, req.SyncType)
		return nil, err
	}

	sessionId := NewSessionId()
	if err := config.SetRedisObject(datasetKeyPrefix+sessionId, ds, e.settings.DatasetTTL); err != nil {
		e.locks.Release(ctx, req.SyncType)
		return nil, err
	}
	if err := config.SetRedisValue(activeKeyPrefix+req.SyncType, sessionId, e.settings.DatasetTTL); err != nil {
		e.locks.Release(ctx, req.SyncType)
		return nil, err
	}

	filtered := req.SyncType == models.SyncTypeStock && len(req.Skus) > 0
	e.beginRun(ctx, req.SyncType, sessionId, models.SyncTriggeredStep, ds.Total, filtered)
	e.writeProgress(req.SyncType, 0, ds.Total, "initialized")

	syncLogger().WithFields(logrus.Fields{
		"module":   "primexsync",
		"syncType": req.SyncType,
		"session":  sessionId,
		"total":    ds.Total,
	}).Info("sync session initialized")

	return &StepResponse{
		SessionId: sessionId,
		Total:     ds.Total,
		Message:   "initialized",
	}, nil
}

// stepProcess slices [offset, offset+batchSize) out of the cached
// dataset and runs the matching batch processor. A cache miss (TTL
// expiry, Redis restart) is repaired by transparently re-fetching.
func (e *Engine) stepProcess(ctx context.Context, req StepRequest) (*StepResponse, error) {
	if req.SessionId == "" {
		return nil, fmt.Errorf("%w: process requires a session id", ErrInvalidStep)
	}
	if req.Offset < 0 {
		return nil, fmt.Errorf("%w: negative offset", ErrInvalidStep)
	}

	ds, err := e.loadDataset(ctx, req)
	if err != nil {
		return nil, err
	}

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = e.settings.BatchSize
	}

	if req.Offset >= ds.Total {
		return &StepResponse{
			SessionId:  req.SessionId,
			Total:      ds.Total,
			NextOffset: ds.Total,
			Done:       true,
			Message:    "dataset exhausted",
		}, nil
	}

	end := req.Offset + batchSize
	if end > ds.Total {
		end = ds.Total
	}

	run, err := models.FindSyncRunBySession(ctx, config.GetDB(), req.SessionId)
	if err != nil {
		return nil, err
	}
	var runId uint
	if run != nil {
		runId = run.ID
	}

	var stats BatchStats
	switch ds.SyncType {
	case models.SyncTypeCatalog:
		// The term memo spans one request cycle: duplicates inside a
		// batch collapse, and a cross-call memo would have to live in
		// Redis next to the dataset.
		attrMemo := make(map[string]int)
		stats = e.processCatalogBatch(ctx, runId, req.SessionId, ds.CatalogRows[req.Offset:end], attrMemo)
	case models.SyncTypeStock:
		stats = e.processStockBatch(ctx, runId, req.SessionId, ds.StockRows[req.Offset:end])
	case models.SyncTypeCode:
		mode, ok := ParseCodeSyncMode(ds.Mode)
		if !ok {
			mode = CodeModeFullSync
		}
		stats = e.processCodeBatch(ctx, runId, mode, req.SessionId, ds.CardRows[req.Offset:end])
	}

	if run != nil {
		var agg BatchStats
		if len(run.StatsJSON) > 0 {
			_ = utils.UnmarshalFromJSON(run.StatsJSON, &agg)
		}
		agg.Add(stats)
		if raw, marshalErr := utils.MarshalToJSON(agg); marshalErr == nil {
			run.StatsJSON = []byte(raw)
		}
		run.RecordsSynced += stats.Created + stats.Updated
		run.ErrorCount += stats.Errors
		if err := config.GetDB().WithContext(ctx).Save(run).Error; err != nil {
			config.LogError(syncLogger(), "primexsync", "stepProcess", "update run counters", req.SessionId, err)
		}
	}

	e.writeProgress(ds.SyncType, end, ds.Total, fmt.Sprintf("processed %d of %d", end, ds.Total))

	return &StepResponse{
		SessionId:  req.SessionId,
		Total:      ds.Total,
		NextOffset: end,
		Stats:      stats,
		Done:       end >= ds.Total,
		Message:    "batch processed",
	}, nil
}

// stepCleanup runs the orphan sweep, closes the run ledger row and
// tears the session state down. The lock release is unconditional:
// whatever happens in the sweep, the next run must not be blocked
// until TTL expiry. Calling cleanup twice is harmless — the second
// sweep finds nothing left to zero.
func (e *Engine) stepCleanup(ctx context.Context, req StepRequest) (*StepResponse, error) {
	if req.SessionId == "" {
		return nil, fmt.Errorf("%w: cleanup requires a session id", ErrInvalidStep)
	}
	defer func() {
		_ = config.RemoveRedisKey(datasetKeyPrefix+req.SessionId, activeKeyPrefix+req.SyncType)
		e.locks.Release(ctx, req.SyncType)
	}()

	run, err := models.FindSyncRunBySession(ctx, config.GetDB(), req.SessionId)
	if err != nil {
		config.LogError(syncLogger(), "primexsync", "stepCleanup", "load run row", req.SessionId, err)
	}

	// A sku-filtered stock session never saw the rest of the catalog;
	// sweeping it would zero every item outside the filter. The ledger
	// row carries the flag; the cached dataset is the fallback when
	// the row is missing.
	filtered := false
	if run != nil {
		filtered = run.Filtered
	} else {
		var ds *cachedDataset
		if ok, cacheErr := config.GetRedisObject(datasetKeyPrefix+req.SessionId, &ds); cacheErr == nil && ok && ds != nil {
			filtered = len(ds.Skus) > 0
		}
	}

	zeroed := 0
	var sweepErr error
	if (req.SyncType == models.SyncTypeCatalog || req.SyncType == models.SyncTypeStock) && !filtered {
		zeroed, sweepErr = e.sweepOrphans(ctx, req.SessionId)
	}

	if run != nil {
		var agg BatchStats
		if len(run.StatsJSON) > 0 {
			_ = utils.UnmarshalFromJSON(run.StatsJSON, &agg)
		} else {
			agg = BatchStats{Updated: run.RecordsSynced, Errors: run.ErrorCount, Total: run.TotalItems}
		}
		e.finishRun(ctx, run, agg, zeroed, sweepErr != nil)
	}

	_ = config.SetRedisValue(lastRunKeyPrefix+req.SyncType, time.Now().Format(time.RFC3339), 0)

	if sweepErr != nil {
		return nil, sweepErr
	}

	e.writeProgress(req.SyncType, 0, 0, "done")

	return &StepResponse{
		SessionId: req.SessionId,
		Zeroed:    zeroed,
		Done:      true,
		Message:   "cleanup complete",
	}, nil
}

// fetchDataset pulls the full remote dataset for a sync type. The one
// fetch at init is the only remote traffic of a whole session.
func (e *Engine) fetchDataset(ctx context.Context, req StepRequest) (cachedDataset, error) {
	ds := cachedDataset{SyncType: req.SyncType, Mode: req.Mode, Skus: req.Skus}
	switch req.SyncType {
	case models.SyncTypeCatalog:
		rows, err := e.gateway.FetchCatalog(ctx)
		if err != nil {
			return cachedDataset{}, err
		}
		ds.CatalogRows = rows
		ds.Total = len(rows)
	case models.SyncTypeStock:
		rows, err := e.gateway.FetchStock(ctx, req.Skus)
		if err != nil {
			return cachedDataset{}, err
		}
		ds.StockRows = rows
		ds.Total = len(rows)
	case models.SyncTypeCode:
		rows, err := e.gateway.FetchDiscountCards(ctx)
		if err != nil {
			return cachedDataset{}, err
		}
		ds.CardRows = rows
		ds.Total = len(rows)
	}
	return ds, nil
}

// loadDataset reads the cached dataset for a session, re-fetching and
// re-caching when the entry expired mid-protocol.
func (e *Engine) loadDataset(ctx context.Context, req StepRequest) (cachedDataset, error) {
	var ds *cachedDataset
	exists, err := config.GetRedisObject(datasetKeyPrefix+req.SessionId, &ds)
	if err != nil {
		return cachedDataset{}, err
	}
	if exists && ds != nil {
		return *ds, nil
	}

	syncLogger().WithFields(logrus.Fields{
		"module":  "primexsync",
		"session": req.SessionId,
	}).Warn("dataset cache expired; re-fetching from remote")

	fresh, err := e.fetchDataset(ctx, req)
	if err != nil {
		return cachedDataset{}, err
	}
	if err := config.SetRedisObject(datasetKeyPrefix+req.SessionId, fresh, e.settings.DatasetTTL); err != nil {
		return cachedDataset{}, err
	}
	return fresh, nil
}
