package primexsync

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/catalog_sync/config"
	"github.com/mmdatafocus/catalog_sync/models"
	"github.com/mmdatafocus/catalog_sync/utils"
)

// processCatalogBatch upserts one slice of catalog rows. A row failure
// is counted and the batch keeps going; nothing here aborts the run.
// attrMemo caches resolved attribute term ids across batches of the
// same run so a 10k-row catalog does not re-query every shared term.
func (e *Engine) processCatalogBatch(ctx context.Context, runId uint, sessionId string, rows []CatalogRow, attrMemo map[string]int) BatchStats {
	db := config.GetDB()
	logger := syncLogger()
	var stats BatchStats

	for _, row := range rows {
		stats.Total++

		if row.Sku == "" {
			stats.Errors++
			e.recordRowError(ctx, runId, "catalog_item", "", "empty_sku", "catalog row has no sku", row, false)
			continue
		}

		if row.Branch != "" {
			if _, hidden := e.settings.locationDisplay(row.Branch); hidden {
				// Rows pinned to a hidden branch never reach the local
				// catalog. Branchless rows are always kept.
				stats.Skipped++
				continue
			}
		}

		item, err := models.FindCatalogItemBySku(ctx, db, row.Sku)
		if err != nil {
			stats.Errors++
			e.recordRowError(ctx, runId, "catalog_item", row.Sku, "lookup_failed", err.Error(), row, true)
			continue
		}

		created := false
		if item == nil {
			item = &models.CatalogItem{Sku: row.Sku}
			created = true
		}

		name := row.Name
		if name == "" {
			name = "Primex Item " + row.Sku
		}
		item.Name = name
		if row.Active {
			item.Active = utils.NewTrue()
		} else {
			item.Active = utils.NewFalse()
		}
		item.Managed = utils.NewTrue()
		item.LastSyncSessionId = sessionId

		attrs, err := e.resolveAttributes(ctx, row, attrMemo)
		if err != nil {
			stats.Errors++
			e.recordRowError(ctx, runId, "catalog_item", row.Sku, "attribute_failed", err.Error(), row, true)
			continue
		}
		item.AttributesJSON = models.EncodeAttributes(attrs)

		if err := db.WithContext(ctx).Save(item).Error; err != nil {
			stats.Errors++
			e.recordRowError(ctx, runId, "catalog_item", row.Sku, "persist_failed", err.Error(), row, true)
			continue
		}

		if created {
			stats.Created++
		} else {
			stats.Updated++
			_ = utils.RemoveRedisItem[models.CatalogItem](item.ID)
		}
	}

	logger.WithFields(logrus.Fields{
		"module":  "primexsync",
		"session": sessionId,
		"created": stats.Created,
		"updated": stats.Updated,
		"skipped": stats.Skipped,
		"errors":  stats.Errors,
	}).Info("catalog batch processed")

	return stats
}

// resolveAttributes rebuilds the item's full attribute list from the
// configured field mappings, in mapping order. Absent or empty fields
// are simply not added; attributes outside the mapping are never
// touched because the whole list is replaced each sync.
func (e *Engine) resolveAttributes(ctx context.Context, row CatalogRow, attrMemo map[string]int) ([]models.ItemAttribute, error) {
	db := config.GetDB()
	var attrs []models.ItemAttribute
	for _, mapping := range e.settings.FieldMappings {
		value := row.Fields[mapping.Field]
		if value == "" {
			continue
		}
		memoKey := mapping.Attribute + "\x00" + value
		if _, ok := attrMemo[memoKey]; !ok {
			termId, err := models.ResolveAttributeTerm(ctx, db, mapping.Attribute, value)
			if err != nil {
				return nil, fmt.Errorf("resolve attribute %s=%s: %w", mapping.Attribute, value, err)
			}
			attrMemo[memoKey] = termId
		}
		attrs = append(attrs, models.ItemAttribute{Attribute: mapping.Attribute, Value: value})
	}
	return attrs, nil
}

// recordRowError persists one isolated row failure. Runs without a
// ledger row (single-item refresh) only log.
func (e *Engine) recordRowError(ctx context.Context, runId uint, entityType string, externalKey string, code string, message string, payload any, retryable bool) {
	logger := syncLogger()
	logger.WithFields(logrus.Fields{
		"module":     "primexsync",
		"entityType": entityType,
		"key":        externalKey,
		"code":       code,
	}).Warn(message)

	if runId == 0 {
		return
	}
	raw, _ := utils.MarshalToJSON(payload)
	if err := models.CreateSyncRowError(ctx, config.GetDB(), runId, entityType, externalKey, code, message, []byte(raw), retryable); err != nil {
		config.LogError(logger, "primexsync", "recordRowError", "persist row error", externalKey, err)
	}
}
