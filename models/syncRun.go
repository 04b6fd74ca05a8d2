package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	SyncTypeCatalog = "catalog"
	SyncTypeStock   = "stock"
	SyncTypeCode    = "code"
)

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredStep   = "step"
	SyncTriggeredSystem = "system"
)

// SyncRun is the persisted ledger of one synchronization run. The
// ephemeral session state (dataset cache, progress, lock) lives in
// Redis; this row is what survives for history and retry decisions.
type SyncRun struct {
	ID          uint   `gorm:"primary_key" json:"id"`
	SyncType    string `gorm:"index;size:20;not null" json:"sync_type"`
	SessionId   string `gorm:"index;size:64;not null" json:"session_id"`
	Status      string `gorm:"size:20;not null" json:"status"`
	TriggeredBy string `gorm:"size:20" json:"triggered_by"`
	// Filtered marks a sku-filtered stock session. Filtered sessions
	// never saw the rest of the catalog, so the orphan sweep skips them.
	Filtered      bool       `gorm:"default:false" json:"filtered"`
	StatsJSON     []byte     `gorm:"type:json" json:"stats"`
	TotalItems    int        `json:"total_items"`
	RecordsSynced int        `json:"records_synced"`
	ErrorCount    int        `json:"error_count"`
	ZeroedCount   int        `json:"zeroed_count"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	DurationMs    int64      `json:"duration_ms"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SyncRowError records one isolated row failure inside a run. Row
// errors never abort a batch; they are kept for inspection and
// revisited naturally on the next run.
type SyncRowError struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	SyncRunId   uint      `gorm:"index;not null" json:"sync_run_id"`
	EntityType  string    `gorm:"size:50" json:"entity_type"`
	ExternalKey string    `gorm:"size:128" json:"external_key"`
	ErrorCode   string    `gorm:"size:64" json:"error_code"`
	Message     string    `gorm:"type:text" json:"message"`
	PayloadJSON []byte    `gorm:"type:json" json:"payload"`
	Retryable   bool      `gorm:"default:false" json:"retryable"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func CreateSyncRowError(ctx context.Context, db *gorm.DB, runId uint, entityType string, externalKey string, code string, message string, payload []byte, retryable bool) error {
	errRec := SyncRowError{
		SyncRunId:   runId,
		EntityType:  entityType,
		ExternalKey: externalKey,
		ErrorCode:   code,
		Message:     message,
		PayloadJSON: payload,
		Retryable:   retryable,
	}
	return db.WithContext(ctx).Create(&errRec).Error
}

// FindSyncRunBySession returns nil without error when no run exists
// for the session id.
func FindSyncRunBySession(ctx context.Context, db *gorm.DB, sessionId string) (*SyncRun, error) {
	var run SyncRun
	err := db.WithContext(ctx).Where("session_id = ?", sessionId).Take(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func GetSyncRuns(ctx context.Context, db *gorm.DB, syncType string, limit int) ([]*SyncRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	dbCtx := db.WithContext(ctx)
	if syncType != "" {
		dbCtx = dbCtx.Where("sync_type = ?", syncType)
	}
	var runs []*SyncRun
	if err := dbCtx.Order("id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func GetSyncRunErrors(ctx context.Context, db *gorm.DB, runId uint, limit int) ([]*SyncRowError, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []*SyncRowError
	err := db.WithContext(ctx).
		Where("sync_run_id = ?", runId).
		Order("id").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
