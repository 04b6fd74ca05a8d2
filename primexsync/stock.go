package primexsync

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/catalog_sync/config"
	"github.com/mmdatafocus/catalog_sync/models"
	"github.com/mmdatafocus/catalog_sync/utils"
)

const missingSkuSampleCap = 10

// processStockBatch applies one slice of stock/price rows. Unknown
// skus are skipped, never created: only the catalog sync may introduce
// items. sessionId may be empty for a lock-free single-item refresh,
// in which case the session stamp is left alone.
func (e *Engine) processStockBatch(ctx context.Context, runId uint, sessionId string, rows []StockRow) BatchStats {
	db := config.GetDB()
	logger := syncLogger()
	var stats BatchStats
	var missingSkus []string

	for _, row := range rows {
		stats.Total++

		if row.Sku == "" {
			stats.Errors++
			e.recordRowError(ctx, runId, "catalog_item", "", "empty_sku", "stock row has no sku", row, false)
			continue
		}

		item, err := models.FindCatalogItemBySku(ctx, db, row.Sku)
		if err != nil {
			stats.Errors++
			e.recordRowError(ctx, runId, "catalog_item", row.Sku, "lookup_failed", err.Error(), row, true)
			continue
		}
		if item == nil {
			stats.Skipped++
			missingSkus = append(missingSkus, row.Sku)
			continue
		}

		if err := e.applyStockRow(ctx, item, row, sessionId); err != nil {
			stats.Errors++
			e.recordRowError(ctx, runId, "catalog_item", row.Sku, "persist_failed", err.Error(), row, true)
			continue
		}
		stats.Updated++
		_ = utils.RemoveRedisItem[models.CatalogItem](item.ID)
	}

	if len(missingSkus) > 0 {
		e.reportMissingSkus(ctx, runId, sessionId, missingSkus)
	}

	logger.WithFields(logrus.Fields{
		"module":  "primexsync",
		"session": sessionId,
		"updated": stats.Updated,
		"skipped": stats.Skipped,
		"errors":  stats.Errors,
	}).Info("stock batch processed")

	return stats
}

// applyStockRow mutates and persists one known item from a stock row,
// then writes the per-field audit trail and reconciles branch terms.
func (e *Engine) applyStockRow(ctx context.Context, item *models.CatalogItem, row StockRow, sessionId string) error {
	db := config.GetDB()

	oldRegular := item.RegularPrice
	oldSale := item.SalePrice
	oldQty := item.StockQty
	oldBreakdown := models.DecodeWarehouses(item.WarehousesJSON)

	// Zero or unparseable prices never clobber an existing price.
	if parsed, err := utils.ParseDecimal(row.Price); err == nil && parsed.GreaterThan(decimal.Zero) {
		item.RegularPrice = parsed
	}

	// Sale price must undercut the (possibly just updated) regular
	// price; anything else clears it.
	item.SalePrice = decimal.NullDecimal{}
	if parsed, err := utils.ParseDecimal(row.SalePrice); err == nil &&
		parsed.GreaterThan(decimal.Zero) && parsed.LessThan(item.RegularPrice) {
		item.SalePrice = decimal.NewNullDecimal(parsed)
	}

	// The remote's own aggregate quantity is ignored; the denylist-
	// filtered warehouse sum is the only authority.
	filtered, totalQty := e.filterWarehouses(row.Warehouses)
	item.StockQty = totalQty
	if totalQty > 0 {
		item.StockStatus = models.StockStatusInStock
	} else {
		item.StockStatus = models.StockStatusOutOfStock
	}
	item.WarehousesJSON = models.EncodeWarehouses(filtered)
	item.Managed = utils.NewTrue()
	if sessionId != "" {
		item.LastSyncSessionId = sessionId
	}

	if err := db.WithContext(ctx).Save(item).Error; err != nil {
		return err
	}

	e.auditStockChanges(ctx, item, oldRegular, oldSale, oldQty, oldBreakdown, filtered)

	targets := e.branchTargets(filtered)
	current, err := models.BranchTermNames(ctx, db, item)
	if err != nil {
		return err
	}
	if !utils.AreStringSlicesEqual(targets, current) {
		if err := models.ReplaceBranchTerms(ctx, db, item, targets); err != nil {
			return err
		}
	}
	return nil
}

// filterWarehouses drops denylisted locations and returns the kept
// breakdown plus its quantity sum.
func (e *Engine) filterWarehouses(rows []WarehouseRow) ([]models.WarehouseStock, int) {
	filtered := make([]models.WarehouseStock, 0, len(rows))
	total := 0
	for _, wh := range rows {
		location := strings.TrimSpace(wh.Location)
		if location == "" || e.settings.isExcludedWarehouse(location) {
			continue
		}
		qty := 0
		if n, err := wh.Qty.Int64(); err == nil {
			qty = int(n)
		}
		filtered = append(filtered, models.WarehouseStock{Location: location, Qty: qty})
		total += qty
	}
	return filtered, total
}

// branchTargets computes the distinct display names for locations with
// available stock, skipping hidden ones. Hidden locations still count
// toward the quantity sum; they are only invisible as terms.
func (e *Engine) branchTargets(filtered []models.WarehouseStock) []string {
	var names []string
	for _, wh := range filtered {
		if wh.Qty <= 0 {
			continue
		}
		name, hidden := e.settings.locationDisplay(wh.Location)
		if hidden {
			continue
		}
		names = append(names, name)
	}
	return utils.UniqueSlice(names)
}

func (e *Engine) auditStockChanges(ctx context.Context, item *models.CatalogItem, oldRegular decimal.Decimal, oldSale decimal.NullDecimal, oldQty int, oldBreakdown []models.WarehouseStock, newBreakdown []models.WarehouseStock) {
	db := config.GetDB()
	logger := syncLogger()

	if !oldRegular.Equal(item.RegularPrice) {
		if err := models.SaveAudit(ctx, db, "catalog_item", item.ID, "regular_price", "update",
			oldRegular.String(), item.RegularPrice.String(), "price updated from remote"); err != nil {
			config.LogError(logger, "primexsync", "auditStockChanges", "audit regular price", item.Sku, err)
		}
	}
	if nullDecimalString(oldSale) != nullDecimalString(item.SalePrice) {
		if err := models.SaveAudit(ctx, db, "catalog_item", item.ID, "sale_price", "update",
			nullDecimalString(oldSale), nullDecimalString(item.SalePrice), "sale price updated from remote"); err != nil {
			config.LogError(logger, "primexsync", "auditStockChanges", "audit sale price", item.Sku, err)
		}
	}
	if oldQty != item.StockQty {
		if err := models.SaveAudit(ctx, db, "catalog_item", item.ID, "stock_qty", "update",
			fmt.Sprint(oldQty), fmt.Sprint(item.StockQty), warehouseDiffMessage(oldBreakdown, newBreakdown)); err != nil {
			config.LogError(logger, "primexsync", "auditStockChanges", "audit stock qty", item.Sku, err)
		}
	}
}

// warehouseDiffMessage summarizes per-location quantity movement for
// the stock audit entry, e.g. "Yangon: 5 -> 3; Mandalay: 0 -> 4".
func warehouseDiffMessage(oldRows []models.WarehouseStock, newRows []models.WarehouseStock) string {
	oldByLoc := make(map[string]int, len(oldRows))
	for _, wh := range oldRows {
		oldByLoc[wh.Location] = wh.Qty
	}

	var parts []string
	seen := make(map[string]struct{}, len(newRows))
	for _, wh := range newRows {
		seen[wh.Location] = struct{}{}
		if prev := oldByLoc[wh.Location]; prev != wh.Qty {
			parts = append(parts, fmt.Sprintf("%s: %d -> %d", wh.Location, prev, wh.Qty))
		}
	}
	for _, wh := range oldRows {
		if _, ok := seen[wh.Location]; !ok && wh.Qty != 0 {
			parts = append(parts, fmt.Sprintf("%s: %d -> 0", wh.Location, wh.Qty))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "; ")
}

func nullDecimalString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

// reportMissingSkus folds all not-found skus of a batch into a single
// capped-sample log line and one summary ledger row.
func (e *Engine) reportMissingSkus(ctx context.Context, runId uint, sessionId string, skus []string) {
	logger := syncLogger()
	sample := skus
	if len(sample) > missingSkuSampleCap {
		sample = sample[:missingSkuSampleCap]
	}
	logger.WithFields(logrus.Fields{
		"module":  "primexsync",
		"session": sessionId,
		"count":   len(skus),
		"sample":  strings.Join(sample, ","),
	}).Warn("stock rows skipped for unknown skus")

	if runId == 0 {
		return
	}
	message := fmt.Sprintf("%d stock rows skipped for unknown skus (sample: %s)", len(skus), strings.Join(sample, ", "))
	if err := models.CreateSyncRowError(ctx, config.GetDB(), runId, "catalog_item", "", "unknown_sku", message, nil, false); err != nil {
		config.LogError(logger, "primexsync", "reportMissingSkus", "persist summary", sessionId, err)
	}
}
