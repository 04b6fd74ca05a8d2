package primexsync

import "encoding/json"

// CatalogRow is one decoded catalog record from the Primex backend.
// Fields carries the raw remote columns so the configured
// field-to-attribute mapping can pick out what it needs.
type CatalogRow struct {
	Sku    string            `json:"sku"`
	Name   string            `json:"name"`
	Active bool              `json:"active"`
	Branch string            `json:"branch"`
	Fields map[string]string `json:"fields"`
}

// WarehouseRow is a nested per-location quantity inside a stock row.
type WarehouseRow struct {
	Location string      `json:"location"`
	Qty      json.Number `json:"qty"`
}

// StockRow is one decoded stock/price record. Qty is the remote's own
// aggregate and is ignored on purpose: the authoritative quantity is
// always recomputed from the warehouse sub-rows.
type StockRow struct {
	Sku        string         `json:"sku"`
	Price      string         `json:"price"`
	SalePrice  string         `json:"sale_price"`
	Qty        json.Number    `json:"qty"`
	Warehouses []WarehouseRow `json:"warehouses"`
}

// CardRow is one decoded discount card record.
type CardRow struct {
	ID            string      `json:"id"`
	CardCode      string      `json:"card_code"`
	HolderName    string      `json:"holder_name"`
	Mobile        string      `json:"mobile"`
	DateOfBirth   string      `json:"date_of_birth"`
	Percent       json.Number `json:"percent"`
	Deleted       bool        `json:"deleted"`
	AllowedPhones []string    `json:"allowed_phones"`
}

type BatchStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
	Total   int `json:"total"`
}

func (s *BatchStats) Add(other BatchStats) {
	s.Created += other.Created
	s.Updated += other.Updated
	s.Skipped += other.Skipped
	s.Errors += other.Errors
	s.Total += other.Total
}

type CodeStats struct {
	Created     int `json:"created"`
	Updated     int `json:"updated"`
	TotalRemote int `json:"totalRemote"`
}

// CodeSyncMode selects which discount codes a run touches. The four
// modes share one upsert path and differ only by predicate.
type CodeSyncMode string

const (
	CodeModeImportNew      CodeSyncMode = "import_new"
	CodeModeUpdateExisting CodeSyncMode = "update_existing"
	CodeModeFullSync       CodeSyncMode = "full_sync"
	CodeModeForceImport    CodeSyncMode = "force_import"
)

func ParseCodeSyncMode(raw string) (CodeSyncMode, bool) {
	switch CodeSyncMode(raw) {
	case CodeModeImportNew, CodeModeUpdateExisting, CodeModeFullSync, CodeModeForceImport:
		return CodeSyncMode(raw), true
	default:
		return "", false
	}
}

const (
	StepInit    = "init"
	StepProcess = "process"
	StepCleanup = "cleanup"
)

// StepRequest drives the client-side step protocol. One request/
// response cycle per step; the caller carries nextOffset forward.
type StepRequest struct {
	Step      string   `json:"step" binding:"required"`
	SyncType  string   `json:"syncType" binding:"required"`
	Mode      string   `json:"mode"`
	SessionId string   `json:"sessionId"`
	Offset    int      `json:"offset"`
	BatchSize int      `json:"batchSize"`
	Skus      []string `json:"skus"`
}

type StepResponse struct {
	SessionId  string     `json:"sessionId"`
	Total      int        `json:"total"`
	NextOffset int        `json:"nextOffset"`
	Stats      BatchStats `json:"stats"`
	Zeroed     int        `json:"zeroed"`
	Done       bool       `json:"done"`
	Message    string     `json:"message"`
}

// Progress is the advisory slot polled by external callers. It lives
// in Redis with a short TTL and carries no correctness weight.
type Progress struct {
	Current    int    `json:"current"`
	Total      int    `json:"total"`
	Percent    int    `json:"percent"`
	StatusText string `json:"statusText"`
}

// cachedDataset is the full remote dataset fetched once at init and
// sliced by every subsequent process call.
type cachedDataset struct {
	SyncType    string       `json:"sync_type"`
	Mode        string       `json:"mode"`
	Total       int          `json:"total"`
	Skus        []string     `json:"skus,omitempty"`
	CatalogRows []CatalogRow `json:"catalog_rows,omitempty"`
	StockRows   []StockRow   `json:"stock_rows,omitempty"`
	CardRows    []CardRow    `json:"card_rows,omitempty"`
}
