package primexsync

import (
	"github.com/mmdatafocus/catalog_sync/config"
)

const progressKeyPrefix = "primexsync:progress:"

// writeProgress publishes the advisory progress slot for one sync
// type. Best effort: a write failure never disturbs the run.
func (e *Engine) writeProgress(syncType string, current int, total int, statusText string) {
	percent := 0
	if total > 0 {
		percent = current * 100 / total
		if percent > 100 {
			percent = 100
		}
	}
	p := Progress{
		Current:    current,
		Total:      total,
		Percent:    percent,
		StatusText: statusText,
	}
	_ = config.SetRedisObject(progressKeyPrefix+syncType, p, e.settings.ProgressTTL)
}

// LastRunAt returns the RFC3339 completion time of the most recent
// cleanup for a sync type, empty when none has finished yet.
func LastRunAt(syncType string) (string, error) {
	val, ok, err := config.GetRedisValue(lastRunKeyPrefix + syncType)
	if err != nil || !ok {
		return "", err
	}
	return val, nil
}

// GetProgress returns nil when no slot exists or it has expired.
func GetProgress(syncType string) (*Progress, error) {
	var p *Progress
	exists, err := config.GetRedisObject(progressKeyPrefix+syncType, &p)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return p, nil
}
