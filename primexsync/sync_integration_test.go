package primexsync_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/mmdatafocus/catalog_sync/config"
	"github.com/mmdatafocus/catalog_sync/models"
	"github.com/mmdatafocus/catalog_sync/primexsync"
	"github.com/mmdatafocus/catalog_sync/utils"
)

// fakeGateway serves canned datasets so the tests exercise the engine
// against real MySQL/Redis without a Primex backend.
type fakeGateway struct {
	catalog []primexsync.CatalogRow
	stock   []primexsync.StockRow
	cards   []primexsync.CardRow
	err     error
}

func (g *fakeGateway) FetchCatalog(ctx context.Context) ([]primexsync.CatalogRow, error) {
	return g.catalog, g.err
}

func (g *fakeGateway) FetchStock(ctx context.Context, skus []string) ([]primexsync.StockRow, error) {
	if g.err != nil {
		return nil, g.err
	}
	if len(skus) == 0 {
		return g.stock, nil
	}
	want := make(map[string]bool, len(skus))
	for _, sku := range skus {
		want[sku] = true
	}
	var out []primexsync.StockRow
	for _, row := range g.stock {
		if want[row.Sku] {
			out = append(out, row)
		}
	}
	return out, nil
}

func (g *fakeGateway) FetchDiscountCards(ctx context.Context) ([]primexsync.CardRow, error) {
	return g.cards, g.err
}

func setupIntegration(t *testing.T) {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "catalog_sync_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()
}

func stockRow(sku, price string, warehouses ...primexsync.WarehouseRow) primexsync.StockRow {
	return primexsync.StockRow{Sku: sku, Price: price, Warehouses: warehouses}
}

func wh(location string, qty int) primexsync.WarehouseRow {
	return primexsync.WarehouseRow{Location: location, Qty: json.Number(fmt.Sprint(qty))}
}

func TestStepProtocolEndToEnd(t *testing.T) {
	setupIntegration(t)
	ctx := context.Background()

	gw := &fakeGateway{}
	for i := 0; i < 120; i++ {
		gw.catalog = append(gw.catalog, primexsync.CatalogRow{
			Sku:    fmt.Sprintf("PX-%03d", i),
			Name:   fmt.Sprintf("Item %03d", i),
			Active: true,
		})
	}

	settings := primexsync.DefaultSettings()
	settings.BatchSize = 50
	engine := primexsync.NewEngine(gw, primexsync.NewLockManager(), settings)

	initResp, err := engine.Step(ctx, primexsync.StepRequest{Step: primexsync.StepInit, SyncType: models.SyncTypeCatalog})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if initResp.Total != 120 {
		t.Fatalf("init total = %d, want 120", initResp.Total)
	}

	offsets := []int{}
	offset := 0
	var created, updated, rowErrors int
	for {
		resp, err := engine.Step(ctx, primexsync.StepRequest{
			Step:      primexsync.StepProcess,
			SyncType:  models.SyncTypeCatalog,
			SessionId: initResp.SessionId,
			Offset:    offset,
			BatchSize: 50,
		})
		if err != nil {
			t.Fatalf("process offset %d: %v", offset, err)
		}
		offsets = append(offsets, offset)
		created += resp.Stats.Created
		updated += resp.Stats.Updated
		rowErrors += resp.Stats.Errors
		offset = resp.NextOffset
		if resp.Done {
			break
		}
	}

	if len(offsets) != 3 || offsets[0] != 0 || offsets[1] != 50 || offsets[2] != 100 {
		t.Fatalf("offsets = %v, want [0 50 100]", offsets)
	}
	if created+updated != 120 || rowErrors != 0 {
		t.Fatalf("created+updated = %d errors = %d, want 120 / 0", created+updated, rowErrors)
	}

	// Calling process past the end reports completion, processes nothing.
	past, err := engine.Step(ctx, primexsync.StepRequest{
		Step: primexsync.StepProcess, SyncType: models.SyncTypeCatalog,
		SessionId: initResp.SessionId, Offset: 120, BatchSize: 50,
	})
	if err != nil {
		t.Fatalf("process past end: %v", err)
	}
	if !past.Done || past.NextOffset != 120 || past.Stats.Total != 0 {
		t.Fatalf("past-end response = %+v", past)
	}

	cleanup, err := engine.Step(ctx, primexsync.StepRequest{
		Step: primexsync.StepCleanup, SyncType: models.SyncTypeCatalog, SessionId: initResp.SessionId,
	})
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if cleanup.Zeroed != 0 {
		t.Fatalf("cleanup zeroed = %d, want 0 on a fresh table", cleanup.Zeroed)
	}

	run, err := models.FindSyncRunBySession(ctx, config.GetDB(), initResp.SessionId)
	if err != nil || run == nil {
		t.Fatalf("run ledger row missing: %v", err)
	}
	if run.Status != models.SyncRunStatusSuccess || run.RecordsSynced != 120 {
		t.Fatalf("run = status %s synced %d, want success / 120", run.Status, run.RecordsSynced)
	}

	// Stats accumulate across process calls: a first run of a fresh
	// table is all creates, never reported as updates.
	var agg primexsync.BatchStats
	if err := json.Unmarshal(run.StatsJSON, &agg); err != nil {
		t.Fatalf("decode run stats: %v", err)
	}
	if agg.Created != 120 || agg.Updated != 0 || agg.Errors != 0 {
		t.Fatalf("run stats = %+v, want 120 created / 0 updated", agg)
	}

	if lastRun, err := primexsync.LastRunAt(models.SyncTypeCatalog); err != nil || lastRun == "" {
		t.Fatalf("last-run marker = %q, %v", lastRun, err)
	}

	// cleanup is idempotent: the second call zeroes nothing new and the
	// lock is already gone.
	again, err := engine.Step(ctx, primexsync.StepRequest{
		Step: primexsync.StepCleanup, SyncType: models.SyncTypeCatalog, SessionId: initResp.SessionId,
	})
	if err != nil {
		t.Fatalf("second cleanup: %v", err)
	}
	if again.Zeroed != 0 {
		t.Fatalf("second cleanup zeroed = %d, want 0", again.Zeroed)
	}
}

func TestOrphanConvergenceAndStockRules(t *testing.T) {
	setupIntegration(t)
	ctx := context.Background()

	gw := &fakeGateway{
		catalog: []primexsync.CatalogRow{
			{Sku: "KEEP-1", Name: "Kept Item", Active: true},
			{Sku: "GONE-1", Name: "Orphan Item", Active: true},
		},
		stock: []primexsync.StockRow{
			stockRow("KEEP-1", "12,50", wh("Loc1", 3), wh("ExcludedLoc", 100)),
			stockRow("GONE-1", "9.00", wh("Loc1", 5)),
		},
	}
	settings := primexsync.DefaultSettings()
	settings.ExcludedWarehouses = []string{"ExcludedLoc"}
	engine := primexsync.NewEngine(gw, primexsync.NewLockManager(), settings)

	if _, err := engine.RunCatalogSync(ctx, models.SyncTriggeredManual); err != nil {
		t.Fatalf("catalog sync: %v", err)
	}
	if _, err := engine.RunStockSync(ctx, models.SyncTriggeredManual, nil); err != nil {
		t.Fatalf("stock sync: %v", err)
	}

	db := config.GetDB()
	keep, err := models.FindCatalogItemBySku(ctx, db, "KEEP-1")
	if err != nil || keep == nil {
		t.Fatalf("KEEP-1 missing: %v", err)
	}
	if keep.StockQty != 3 {
		t.Fatalf("KEEP-1 qty = %d, want 3 (excluded warehouse must not count)", keep.StockQty)
	}
	if keep.RegularPrice.String() != "12.5" {
		t.Fatalf("KEEP-1 price = %s, want 12.5 (comma decimal)", keep.RegularPrice)
	}
	if keep.StockStatus != models.StockStatusInStock {
		t.Fatalf("KEEP-1 status = %s", keep.StockStatus)
	}
	terms, err := models.BranchTermNames(ctx, db, keep)
	if err != nil {
		t.Fatalf("branch terms: %v", err)
	}
	if len(terms) != 1 || terms[0] != "Loc1" {
		t.Fatalf("KEEP-1 terms = %v, want [Loc1]", terms)
	}

	// The id-keyed read path serves through the item cache and maps a
	// missing id onto the shared not-found error.
	cached, err := models.GetCatalogItem(ctx, db, keep.ID)
	if err != nil || cached == nil || cached.Sku != "KEEP-1" {
		t.Fatalf("GetCatalogItem(%d) = %+v, %v", keep.ID, cached, err)
	}
	if _, err := models.GetCatalogItem(ctx, db, keep.ID+100000); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("GetCatalogItem missing id err = %v, want ErrorRecordNotFound", err)
	}

	// Zero and empty prices never clobber an existing price; identical
	// data is idempotent.
	gw.stock = []primexsync.StockRow{
		stockRow("KEEP-1", "", wh("Loc1", 3), wh("ExcludedLoc", 100)),
	}
	gw.catalog = gw.catalog[:1]
	if _, err := engine.RunStockSync(ctx, models.SyncTriggeredManual, nil); err != nil {
		t.Fatalf("second stock sync: %v", err)
	}

	keep, _ = models.FindCatalogItemBySku(ctx, db, "KEEP-1")
	if keep.RegularPrice.String() != "12.5" {
		t.Fatalf("empty price overwrote regular price: %s", keep.RegularPrice)
	}

	// GONE-1 was absent from the second stock session: orphan sweep
	// zeroes it and records the prior quantity.
	gone, _ := models.FindCatalogItemBySku(ctx, db, "GONE-1")
	if gone == nil {
		t.Fatalf("GONE-1 was hard-deleted; sweep must only zero")
	}
	if gone.StockQty != 0 || gone.StockStatus != models.StockStatusOutOfStock {
		t.Fatalf("GONE-1 = qty %d status %s, want 0 / out_of_stock", gone.StockQty, gone.StockStatus)
	}
	if gone.Managed == nil || !*gone.Managed {
		t.Fatalf("GONE-1 managed flag not repaired")
	}

	entries, _, err := models.SearchAuditEntries(ctx, db, nil, nil, "orphan sweep", 10, 0)
	if err != nil {
		t.Fatalf("audit search: %v", err)
	}
	found := false
	for _, entry := range entries {
		if entry.EntityId == gone.ID && entry.OldValue == "5" && entry.NewValue == "0" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no sweep audit entry with old=5 new=0 for GONE-1; got %d entries", len(entries))
	}
}

func TestLockExclusivityAndExpiry(t *testing.T) {
	setupIntegration(t)
	ctx := context.Background()

	locks := primexsync.NewLockManager()
	if err := locks.Acquire(ctx, models.SyncTypeStock, 2*time.Second); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := locks.Acquire(ctx, models.SyncTypeStock, 2*time.Second); !errors.Is(err, primexsync.ErrLockHeld) {
		t.Fatalf("second acquire err = %v, want ErrLockHeld", err)
	}

	// A trigger entry point surfaces the same failure before fetching.
	engine := primexsync.NewEngine(&fakeGateway{}, locks, primexsync.DefaultSettings())
	if _, err := engine.RunStockSync(ctx, models.SyncTriggeredManual, nil); !errors.Is(err, primexsync.ErrLockHeld) {
		t.Fatalf("RunStockSync err = %v, want ErrLockHeld", err)
	}

	time.Sleep(2500 * time.Millisecond)
	if err := locks.Acquire(ctx, models.SyncTypeStock, 2*time.Second); err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	locks.Release(ctx, models.SyncTypeStock)
}

func TestDiscountCodeRemotePrecedence(t *testing.T) {
	setupIntegration(t)
	ctx := context.Background()

	gw := &fakeGateway{
		cards: []primexsync.CardRow{
			{ID: "ext-1", CardCode: "px-100", HolderName: "Aye Aye", Percent: json.Number("10")},
		},
	}
	engine := primexsync.NewEngine(gw, primexsync.NewLockManager(), primexsync.DefaultSettings())

	stats, err := engine.ImportNewCodes(ctx, models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("import new: %v", err)
	}
	if stats.Created != 1 || stats.TotalRemote != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	db := config.GetDB()
	dc, err := models.FindDiscountCodeByCode(ctx, db, "PX100")
	if err != nil || dc == nil {
		t.Fatalf("PX100 missing: %v", err)
	}

	// Simulate a local manual edit, then a remote change.
	dc.PercentAmount = 50
	if err := db.WithContext(ctx).Save(dc).Error; err != nil {
		t.Fatalf("manual edit: %v", err)
	}
	gw.cards[0].Percent = json.Number("15")

	if _, err := engine.UpdateExistingCodes(ctx, models.SyncTriggeredManual); err != nil {
		t.Fatalf("update existing: %v", err)
	}
	dc, _ = models.FindDiscountCodeByCode(ctx, db, "PX100")
	if dc.PercentAmount != 15 {
		t.Fatalf("percent = %d, want remote value 15 over local edit", dc.PercentAmount)
	}

	// import-new skips existing codes entirely.
	gw.cards[0].Percent = json.Number("40")
	if _, err := engine.ImportNewCodes(ctx, models.SyncTriggeredManual); err != nil {
		t.Fatalf("import new again: %v", err)
	}
	dc, _ = models.FindDiscountCodeByCode(ctx, db, "PX100")
	if dc.PercentAmount != 15 {
		t.Fatalf("import-new touched an existing code: percent = %d", dc.PercentAmount)
	}
}

// seedCatalogItem inserts an item row directly, bypassing the sync
// path, so tests can shape the table before a sweep.
func seedCatalogItem(ctx context.Context, t *testing.T, sku string, qty int, sessionId string) *models.CatalogItem {
	t.Helper()
	status := models.StockStatusOutOfStock
	if qty > 0 {
		status = models.StockStatusInStock
	}
	item := &models.CatalogItem{
		Sku:               sku,
		Name:              "Seed " + sku,
		StockQty:          qty,
		StockStatus:       status,
		LastSyncSessionId: sessionId,
	}
	if err := config.GetDB().WithContext(ctx).Create(item).Error; err != nil {
		t.Fatalf("seed %s: %v", sku, err)
	}
	return item
}

func TestSweepSkipsRowsThatErroredThisSession(t *testing.T) {
	setupIntegration(t)
	ctx := context.Background()
	db := config.GetDB()

	sessionId := primexsync.NewSessionId()
	seedCatalogItem(ctx, t, "OK-1", 2, sessionId)
	errored := seedCatalogItem(ctx, t, "ERR-1", 5, "older-session")
	seedCatalogItem(ctx, t, "GONE-1", 4, "older-session")

	now := time.Now()
	run := &models.SyncRun{
		SyncType:    models.SyncTypeStock,
		SessionId:   sessionId,
		Status:      models.SyncRunStatusRunning,
		TriggeredBy: models.SyncTriggeredStep,
		TotalItems:  3,
		StartedAt:   &now,
	}
	if err := db.WithContext(ctx).Create(run).Error; err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := models.CreateSyncRowError(ctx, db, run.ID, "catalog_item", "ERR-1", "persist_failed", "simulated row failure", nil, true); err != nil {
		t.Fatalf("create row error: %v", err)
	}

	engine := primexsync.NewEngine(&fakeGateway{}, primexsync.NewLockManager(), primexsync.DefaultSettings())
	resp, err := engine.Step(ctx, primexsync.StepRequest{
		Step: primexsync.StepCleanup, SyncType: models.SyncTypeStock, SessionId: sessionId,
	})
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	// Only GONE-1 qualifies: OK-1 carries the session stamp and ERR-1
	// failed during the session, so zeroing it would discard live stock.
	if resp.Zeroed != 1 {
		t.Fatalf("zeroed = %d, want 1", resp.Zeroed)
	}
	after, _ := models.FindCatalogItemBySku(ctx, db, "ERR-1")
	if after == nil || after.StockQty != 5 || after.StockStatus != models.StockStatusInStock {
		t.Fatalf("ERR-1 after sweep = %+v, want untouched qty 5", after)
	}
	gone, _ := models.FindCatalogItemBySku(ctx, db, "GONE-1")
	if gone == nil || gone.StockQty != 0 {
		t.Fatalf("GONE-1 not zeroed: %+v", gone)
	}
	ok, _ := models.FindCatalogItemBySku(ctx, db, "OK-1")
	if ok == nil || ok.StockQty != 2 {
		t.Fatalf("OK-1 not preserved: %+v", ok)
	}

	entries, _, err := models.SearchAuditEntries(ctx, db, nil, nil, "orphan sweep", 10, 0)
	if err != nil {
		t.Fatalf("audit search: %v", err)
	}
	for _, entry := range entries {
		if entry.EntityId == errored.ID {
			t.Fatalf("sweep audited ERR-1: %+v", entry)
		}
	}
}

func TestFilteredStockStepSessionSkipsSweep(t *testing.T) {
	setupIntegration(t)
	ctx := context.Background()
	db := config.GetDB()

	gw := &fakeGateway{
		catalog: []primexsync.CatalogRow{
			{Sku: "FIL-A", Name: "Filtered A", Active: true},
			{Sku: "FIL-B", Name: "Filtered B", Active: true},
		},
		stock: []primexsync.StockRow{
			stockRow("FIL-A", "5.00", wh("Loc1", 2)),
			stockRow("FIL-B", "5.00", wh("Loc1", 7)),
		},
	}
	engine := primexsync.NewEngine(gw, primexsync.NewLockManager(), primexsync.DefaultSettings())
	if _, err := engine.RunCatalogSync(ctx, models.SyncTriggeredManual); err != nil {
		t.Fatalf("catalog sync: %v", err)
	}
	if _, err := engine.RunStockSync(ctx, models.SyncTriggeredManual, nil); err != nil {
		t.Fatalf("stock sync: %v", err)
	}

	// A step session scoped to FIL-A never sees FIL-B; its cleanup must
	// not treat the rest of the catalog as orphaned.
	initResp, err := engine.Step(ctx, primexsync.StepRequest{
		Step: primexsync.StepInit, SyncType: models.SyncTypeStock, Skus: []string{"FIL-A"},
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if initResp.Total != 1 {
		t.Fatalf("init total = %d, want 1", initResp.Total)
	}
	if _, err := engine.Step(ctx, primexsync.StepRequest{
		Step: primexsync.StepProcess, SyncType: models.SyncTypeStock,
		SessionId: initResp.SessionId, Offset: 0, BatchSize: 50,
	}); err != nil {
		t.Fatalf("process: %v", err)
	}
	cleanup, err := engine.Step(ctx, primexsync.StepRequest{
		Step: primexsync.StepCleanup, SyncType: models.SyncTypeStock, SessionId: initResp.SessionId,
	})
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	if cleanup.Zeroed != 0 {
		t.Fatalf("filtered cleanup zeroed = %d, want 0", cleanup.Zeroed)
	}
	other, _ := models.FindCatalogItemBySku(ctx, db, "FIL-B")
	if other == nil || other.StockQty != 7 {
		t.Fatalf("FIL-B after filtered session = %+v, want qty 7", other)
	}
	run, err := models.FindSyncRunBySession(ctx, db, initResp.SessionId)
	if err != nil || run == nil {
		t.Fatalf("run ledger row missing: %v", err)
	}
	if !run.Filtered {
		t.Fatalf("run.Filtered = false, want true for a sku-scoped session")
	}
}

func TestIdenticalStockSyncPerformsNoBranchTermWrites(t *testing.T) {
	setupIntegration(t)
	ctx := context.Background()
	db := config.GetDB()

	gw := &fakeGateway{
		catalog: []primexsync.CatalogRow{
			{Sku: "TRM-1", Name: "Term Item", Active: true},
		},
		stock: []primexsync.StockRow{
			stockRow("TRM-1", "8.00", wh("Yangon", 4)),
		},
	}
	engine := primexsync.NewEngine(gw, primexsync.NewLockManager(), primexsync.DefaultSettings())
	if _, err := engine.RunCatalogSync(ctx, models.SyncTriggeredManual); err != nil {
		t.Fatalf("catalog sync: %v", err)
	}
	if _, err := engine.RunStockSync(ctx, models.SyncTriggeredManual, nil); err != nil {
		t.Fatalf("first stock sync: %v", err)
	}

	var linkWrites int
	count := func(tx *gorm.DB) {
		if tx.Statement != nil && tx.Statement.Table == "catalog_items_link_branch_terms" {
			linkWrites++
		}
	}
	if err := db.Callback().Create().After("gorm:create").Register("count_link_creates", count); err != nil {
		t.Fatalf("register create callback: %v", err)
	}
	if err := db.Callback().Delete().After("gorm:delete").Register("count_link_deletes", count); err != nil {
		t.Fatalf("register delete callback: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Callback().Create().Remove("count_link_creates")
		_ = db.Callback().Delete().Remove("count_link_deletes")
	})

	// Identical remote data: the assignment is diffed as a set and the
	// join table is left alone.
	if _, err := engine.RunStockSync(ctx, models.SyncTriggeredManual, nil); err != nil {
		t.Fatalf("second stock sync: %v", err)
	}
	if linkWrites != 0 {
		t.Fatalf("identical sync performed %d branch-term writes, want 0", linkWrites)
	}

	// A changed warehouse set does get written through.
	gw.stock = []primexsync.StockRow{
		stockRow("TRM-1", "8.00", wh("Mandalay", 4)),
	}
	if _, err := engine.RunStockSync(ctx, models.SyncTriggeredManual, nil); err != nil {
		t.Fatalf("third stock sync: %v", err)
	}
	if linkWrites == 0 {
		t.Fatalf("changed warehouse set produced no branch-term writes")
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("catalog-sync-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("catalog-sync-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=catalog_sync_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
