package primexsync

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/catalog_sync/config"
	"github.com/mmdatafocus/catalog_sync/models"
	"github.com/mmdatafocus/catalog_sync/utils"
)

func NewSessionId() string {
	return uuid.NewString()
}

// sweepOrphans walks the whole catalog table (not filtered by managed)
// and zeroes every item the just-finished session did not stamp. This
// is what makes a run absolute: anything the remote stopped reporting
// reaches zero availability no matter what earlier syncs did.
//
// Items already at zero only get their managed flag repaired and are
// not counted, which is also why running the sweep twice for the same
// session converges instead of double-counting.
func (e *Engine) sweepOrphans(ctx context.Context, sessionId string) (int, error) {
	db := config.GetDB()
	logger := syncLogger()
	zeroed := 0
	lastId := 0

	// Rows that errored during this session were reported by the
	// remote; they carry no session stamp but zeroing them would lose
	// live stock. They stay untouched and are revisited next run.
	erroredSkus, err := sessionErroredSkus(ctx, sessionId)
	if err != nil {
		return 0, err
	}

	for {
		query := db.WithContext(ctx).
			Where("id > ?", lastId).
			Where("last_sync_session_id IS NULL OR last_sync_session_id <> ?", sessionId)
		if len(erroredSkus) > 0 {
			query = query.Where("sku NOT IN ?", erroredSkus)
		}
		var items []models.CatalogItem
		err := query.
			Order("id").
			Limit(e.settings.SweepBatchSize).
			Find(&items).Error
		if err != nil {
			return zeroed, err
		}
		if len(items) == 0 {
			break
		}

		touched := make([]int, 0, len(items))
		for i := range items {
			item := &items[i]

			if item.StockQty == 0 {
				// Fix-and-continue: repair the flag, skip the audit,
				// leave the count alone.
				if item.Managed == nil || !*item.Managed {
					item.Managed = utils.NewTrue()
					if err := db.WithContext(ctx).Save(item).Error; err != nil {
						config.LogError(logger, "primexsync", "sweepOrphans", "repair managed flag", item.Sku, err)
					}
					touched = append(touched, item.ID)
				}
				continue
			}

			prior := item.StockQty
			item.StockQty = 0
			item.StockStatus = models.StockStatusOutOfStock
			item.WarehousesJSON = models.EncodeWarehouses(nil)
			item.Managed = utils.NewTrue()
			if err := db.WithContext(ctx).Save(item).Error; err != nil {
				config.LogError(logger, "primexsync", "sweepOrphans", "zero orphan", item.Sku, err)
				continue
			}
			if err := models.SaveAudit(ctx, db, "catalog_item", item.ID, "stock_qty", "sweep",
				strconv.Itoa(prior), "0", "zeroed by orphan sweep: sku "+item.Sku+" absent from remote dataset"); err != nil {
				config.LogError(logger, "primexsync", "sweepOrphans", "audit orphan", item.Sku, err)
			}
			touched = append(touched, item.ID)
			zeroed++
		}

		if err := utils.RemoveRedisItems[models.CatalogItem](touched); err != nil {
			config.LogError(logger, "primexsync", "sweepOrphans", "flush item cache", len(touched), err)
		}

		lastId = items[len(items)-1].ID
		if len(items) < e.settings.SweepBatchSize {
			break
		}
	}

	logger.WithFields(logrus.Fields{
		"module":  "primexsync",
		"session": sessionId,
		"zeroed":  zeroed,
	}).Info("orphan sweep finished")

	return zeroed, nil
}

// sessionErroredSkus returns the catalog-item keys that hit a row
// error during the given session, per the run's error ledger.
func sessionErroredSkus(ctx context.Context, sessionId string) ([]string, error) {
	db := config.GetDB()
	run, err := models.FindSyncRunBySession(ctx, db, sessionId)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, nil
	}
	var skus []string
	err = db.WithContext(ctx).
		Model(&models.SyncRowError{}).
		Where("sync_run_id = ? AND entity_type = ? AND external_key <> ''", run.ID, "catalog_item").
		Distinct().
		Pluck("external_key", &skus).Error
	if err != nil {
		return nil, err
	}
	return skus, nil
}

// beginRun opens the persisted run ledger row for a session.
func (e *Engine) beginRun(ctx context.Context, syncType string, sessionId string, triggeredBy string, total int, filtered bool) *models.SyncRun {
	now := time.Now()
	run := &models.SyncRun{
		SyncType:    syncType,
		SessionId:   sessionId,
		Status:      models.SyncRunStatusRunning,
		TriggeredBy: triggeredBy,
		TotalItems:  total,
		Filtered:    filtered,
		StartedAt:   &now,
	}
	if err := config.GetDB().WithContext(ctx).Create(run).Error; err != nil {
		config.LogError(syncLogger(), "primexsync", "beginRun", "create run row", sessionId, err)
		return nil
	}
	return run
}

// finishRun closes the ledger row. Status degrades to partial when row
// errors were counted, failed when the run aborted.
func (e *Engine) finishRun(ctx context.Context, run *models.SyncRun, stats BatchStats, zeroed int, failed bool) {
	if run == nil {
		return
	}
	now := time.Now()
	run.Status = models.SyncRunStatusSuccess
	if failed {
		run.Status = models.SyncRunStatusFailed
	} else if stats.Errors > 0 {
		run.Status = models.SyncRunStatusPartial
	}
	run.RecordsSynced = stats.Created + stats.Updated
	run.ErrorCount = stats.Errors
	run.ZeroedCount = zeroed
	run.FinishedAt = &now
	if run.StartedAt != nil {
		run.DurationMs = now.Sub(*run.StartedAt).Milliseconds()
	}
	if raw, err := utils.MarshalToJSON(stats); err == nil {
		run.StatsJSON = []byte(raw)
	}
	if err := config.GetDB().WithContext(ctx).Save(run).Error; err != nil {
		config.LogError(syncLogger(), "primexsync", "finishRun", "save run row", run.SessionId, err)
	}
}
