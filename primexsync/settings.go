package primexsync

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/catalog_sync/utils"
)

// FieldMapping declares which raw remote field feeds which attribute.
// Order matters: the item's attribute list is rebuilt in mapping order
// on every catalog batch.
type FieldMapping struct {
	Field     string `json:"field"`
	Attribute string `json:"attribute"`
}

// LocationSetting controls how a warehouse location shows up as a
// branch term. Hidden locations still count toward stock quantity;
// they are only dropped from term assignment.
type LocationSetting struct {
	Alias  string `json:"alias"`
	Hidden bool   `json:"hidden"`
}

// Settings carries every tunable of the sync engine. Constructed once
// (LoadSettings) and passed in explicitly so tests can vary them
// without touching process env.
type Settings struct {
	LockTTL            time.Duration
	BatchSize          int
	SweepBatchSize     int
	DatasetTTL         time.Duration
	ProgressTTL        time.Duration
	ExcludedWarehouses []string
	FieldMappings      []FieldMapping
	Locations          map[string]LocationSetting
	PhoneRegion        string
}

func DefaultSettings() Settings {
	return Settings{
		LockTTL:        10 * time.Minute,
		BatchSize:      50,
		SweepBatchSize: 200,
		DatasetTTL:     30 * time.Minute,
		ProgressTTL:    5 * time.Minute,
		PhoneRegion:    utils.CountryCode,
	}
}

// LoadSettings builds Settings from env with sane defaults.
//
//	PRIMEX_LOCK_TTL_SECONDS, PRIMEX_BATCH_SIZE, PRIMEX_SWEEP_BATCH_SIZE,
//	PRIMEX_DATASET_TTL_SECONDS, PRIMEX_PROGRESS_TTL_SECONDS,
//	PRIMEX_EXCLUDED_WAREHOUSES (csv),
//	PRIMEX_FIELD_MAPPINGS (JSON array of {field, attribute}),
//	PRIMEX_LOCATION_SETTINGS (JSON object location -> {alias, hidden}),
//	PRIMEX_PHONE_REGION
func LoadSettings() Settings {
	s := DefaultSettings()

	if v := utils.IntFromEnv("PRIMEX_LOCK_TTL_SECONDS", 0); v > 0 {
		s.LockTTL = time.Duration(v) * time.Second
	}
	if v := utils.IntFromEnv("PRIMEX_BATCH_SIZE", 0); v > 0 {
		s.BatchSize = v
	}
	if v := utils.IntFromEnv("PRIMEX_SWEEP_BATCH_SIZE", 0); v > 0 {
		s.SweepBatchSize = v
	}
	if v := utils.IntFromEnv("PRIMEX_DATASET_TTL_SECONDS", 0); v > 0 {
		s.DatasetTTL = time.Duration(v) * time.Second
	}
	if v := utils.IntFromEnv("PRIMEX_PROGRESS_TTL_SECONDS", 0); v > 0 {
		s.ProgressTTL = time.Duration(v) * time.Second
	}

	s.ExcludedWarehouses = utils.SplitAndTrim(os.Getenv("PRIMEX_EXCLUDED_WAREHOUSES"))

	if raw := strings.TrimSpace(os.Getenv("PRIMEX_FIELD_MAPPINGS")); raw != "" {
		var mappings []FieldMapping
		if err := json.Unmarshal([]byte(raw), &mappings); err == nil {
			s.FieldMappings = mappings
		}
	}
	if raw := strings.TrimSpace(os.Getenv("PRIMEX_LOCATION_SETTINGS")); raw != "" {
		var locations map[string]LocationSetting
		if err := json.Unmarshal([]byte(raw), &locations); err == nil {
			s.Locations = locations
		}
	}
	if v := strings.TrimSpace(os.Getenv("PRIMEX_PHONE_REGION")); v != "" {
		s.PhoneRegion = v
	}

	return s
}

func (s Settings) isExcludedWarehouse(location string) bool {
	for _, excluded := range s.ExcludedWarehouses {
		if strings.EqualFold(strings.TrimSpace(location), excluded) {
			return true
		}
	}
	return false
}

// locationDisplay resolves the branch-term display name for a
// location and whether it is hidden from assignment.
func (s Settings) locationDisplay(location string) (string, bool) {
	cfg, ok := s.Locations[location]
	if !ok {
		return location, false
	}
	name := strings.TrimSpace(cfg.Alias)
	if name == "" {
		name = location
	}
	return name, cfg.Hidden
}
