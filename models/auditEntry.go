package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// AuditEntry is one immutable row of the change ledger. Entries are
// append-only; nothing in the codebase updates or deletes them.
type AuditEntry struct {
	ID         int       `gorm:"primary_key" json:"id"`
	EntityType string    `gorm:"index;size:50;not null" json:"entity_type"`
	EntityId   int       `gorm:"index;not null" json:"entity_id"`
	Field      string    `gorm:"size:100" json:"field"`
	ChangeType string    `gorm:"size:10;not null" json:"change_type"`
	OldValue   string    `gorm:"type:text" json:"old_value"`
	NewValue   string    `gorm:"type:text" json:"new_value"`
	Message    string    `gorm:"type:text" json:"message"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func SaveAudit(ctx context.Context, db *gorm.DB, entityType string, entityId int, field string, changeType string, oldValue string, newValue string, message string) error {
	entry := AuditEntry{
		EntityType: entityType,
		EntityId:   entityId,
		Field:      field,
		ChangeType: changeType,
		OldValue:   oldValue,
		NewValue:   newValue,
		Message:    message,
	}
	return db.WithContext(ctx).Create(&entry).Error
}

// SearchAuditEntries filters the ledger by optional date range and
// free-text search over field/old/new/message, newest first.
func SearchAuditEntries(ctx context.Context, db *gorm.DB, from *time.Time, to *time.Time, search string, limit int, offset int) ([]*AuditEntry, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	dbCtx := db.WithContext(ctx).Model(&AuditEntry{})
	if from != nil {
		dbCtx = dbCtx.Where("created_at >= ?", *from)
	}
	if to != nil {
		dbCtx = dbCtx.Where("created_at < ?", *to)
	}
	if search != "" {
		like := "%" + search + "%"
		dbCtx = dbCtx.Where(
			"field LIKE ? OR old_value LIKE ? OR new_value LIKE ? OR message LIKE ?",
			like, like, like, like,
		)
	}

	var total int64
	if err := dbCtx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []*AuditEntry
	err := dbCtx.Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
