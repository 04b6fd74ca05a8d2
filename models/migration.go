package models

import (
	"log"

	"github.com/mmdatafocus/catalog_sync/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&CatalogItem{}, &BranchTerm{}, &AttributeTerm{},
		&DiscountCode{},
		&SyncRun{}, &SyncRowError{},
		&AuditEntry{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
