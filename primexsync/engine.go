package primexsync

import (
	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/catalog_sync/config"
)

// Engine ties the remote gateway, the lock manager and the tunables
// together. It holds no DB handle of its own; the global connection is
// resolved lazily per call so the service can come up before MySQL is
// reachable.
type Engine struct {
	gateway  RemoteGateway
	locks    *LockManager
	settings Settings
}

func NewEngine(gateway RemoteGateway, locks *LockManager, settings Settings) *Engine {
	return &Engine{
		gateway:  gateway,
		locks:    locks,
		settings: settings,
	}
}

func syncLogger() *logrus.Logger {
	return config.GetLogger()
}
