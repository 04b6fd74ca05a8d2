package primexsync

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/catalog_sync/config"
	"github.com/mmdatafocus/catalog_sync/models"
	"github.com/mmdatafocus/catalog_sync/utils"
)

// normalizeCode derives the local unique code from a raw external card
// code: uppercased, alphanumerics only.
func normalizeCode(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(raw)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// codeModeAllows is the single point where the four entry modes
// diverge. Everything else in the code sync shares one upsert path.
func codeModeAllows(mode CodeSyncMode, exists bool) bool {
	switch mode {
	case CodeModeImportNew:
		return !exists
	case CodeModeUpdateExisting:
		return exists
	case CodeModeFullSync, CodeModeForceImport:
		return true
	default:
		return false
	}
}

// processCodeBatch upserts one slice of discount card rows. Remote is
// the sole authority: every synced field overwrites the local value,
// including manual local edits.
func (e *Engine) processCodeBatch(ctx context.Context, runId uint, mode CodeSyncMode, sessionId string, rows []CardRow) BatchStats {
	db := config.GetDB()
	logger := syncLogger()
	var stats BatchStats

	for _, row := range rows {
		stats.Total++

		code := normalizeCode(row.CardCode)
		if code == "" {
			stats.Errors++
			e.recordRowError(ctx, runId, "discount_code", row.ID, "empty_code", "card row has no usable code", row, false)
			continue
		}

		existing, err := models.FindDiscountCodeByCode(ctx, db, code)
		if err != nil {
			stats.Errors++
			e.recordRowError(ctx, runId, "discount_code", code, "lookup_failed", err.Error(), row, true)
			continue
		}

		if !codeModeAllows(mode, existing != nil) {
			stats.Skipped++
			continue
		}

		created := existing == nil
		dc := existing
		if dc == nil {
			dc = &models.DiscountCode{Code: code}
		}

		dc.ExternalId = row.ID
		dc.HolderName = row.HolderName
		dc.Mobile = utils.NormalizePhoneNumber(row.Mobile, e.settings.PhoneRegion)
		dc.DateOfBirth = row.DateOfBirth
		if percent, err := row.Percent.Int64(); err == nil {
			dc.PercentAmount = int(percent)
		} else {
			dc.PercentAmount = 0
		}
		if row.Deleted {
			dc.Deleted = utils.NewTrue()
		} else {
			dc.Deleted = utils.NewFalse()
		}
		dc.Managed = utils.NewTrue()

		phones := make([]string, 0, len(row.AllowedPhones))
		for _, p := range row.AllowedPhones {
			if normalized := utils.NormalizePhoneNumber(p, e.settings.PhoneRegion); normalized != "" {
				phones = append(phones, normalized)
			}
		}
		dc.AllowedPhonesJSON = models.EncodeAllowedPhones(utils.UniqueSlice(phones))

		if err := db.WithContext(ctx).Save(dc).Error; err != nil {
			stats.Errors++
			e.recordRowError(ctx, runId, "discount_code", code, "persist_failed", err.Error(), row, true)
			continue
		}

		if created {
			stats.Created++
		} else {
			stats.Updated++
			_ = utils.RemoveRedisItem[models.DiscountCode](dc.ID)
		}
	}

	logger.WithFields(logrus.Fields{
		"module":  "primexsync",
		"session": sessionId,
		"mode":    string(mode),
		"created": stats.Created,
		"updated": stats.Updated,
		"skipped": stats.Skipped,
		"errors":  stats.Errors,
	}).Info("code batch processed")

	return stats
}
