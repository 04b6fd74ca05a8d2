package primexsync

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mmdatafocus/catalog_sync/config"
	"github.com/mmdatafocus/catalog_sync/models"
	"github.com/mmdatafocus/catalog_sync/utils"
)

// Handler exposes the sync engine over HTTP. Routes are thin: bind,
// dispatch, map the error taxonomy onto status codes.
type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	sync := api.Group("/sync")
	{
		sync.POST("/step", h.Step)
		sync.POST("/catalog", h.TriggerCatalogSync)
		sync.POST("/stock", h.TriggerStockSync)
		sync.POST("/codes/:mode", h.TriggerCodeSync)
		sync.POST("/items/:sku/refresh", h.RefreshItem)
		sync.GET("/items/:sku", h.GetItem)
		sync.GET("/codes/:code", h.GetCode)
		sync.GET("/runs", h.ListRuns)
		sync.GET("/runs/:id", h.GetRun)
		sync.GET("/progress/:type", h.GetProgress)
	}
	api.GET("/audit", h.SearchAudit)
}

func respondSyncError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrLockHeld):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidStep), errors.Is(err, ErrUnknownSyncType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrRemoteUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		correlationId, _ := utils.GetCorrelationIdFromContext(c)
		config.LogError(syncLogger(), "primexsync", "respondSyncError", "unhandled sync error", correlationId, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *Handler) Step(c *gin.Context) {
	var req StepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := h.engine.Step(c, req)
	if err != nil {
		respondSyncError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) TriggerCatalogSync(c *gin.Context) {
	result, err := h.engine.RunCatalogSync(c, models.SyncTriggeredManual)
	if err != nil {
		respondSyncError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type stockSyncRequest struct {
	Skus []string `json:"skus"`
}

func (h *Handler) TriggerStockSync(c *gin.Context) {
	var req stockSyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	result, err := h.engine.RunStockSync(c, models.SyncTriggeredManual, req.Skus)
	if err != nil {
		respondSyncError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) TriggerCodeSync(c *gin.Context) {
	mode, ok := ParseCodeSyncMode(c.Param("mode"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown code sync mode: " + c.Param("mode")})
		return
	}
	stats, err := h.engine.RunCodeSync(c, models.SyncTriggeredManual, mode)
	if err != nil {
		respondSyncError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) RefreshItem(c *gin.Context) {
	sku := c.Param("sku")
	if sku == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sku is required"})
		return
	}
	stats, err := h.engine.RefreshItem(c, sku)
	if err != nil {
		respondSyncError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetItem serves a decoded item view. The sku resolves to an internal
// id with a narrow query; the full row comes through the item cache.
func (h *Handler) GetItem(c *gin.Context) {
	db := config.GetDB()
	var ref struct{ ID int }
	err := db.WithContext(c).
		Model(&models.CatalogItem{}).
		Select("id").
		Where("sku = ?", c.Param("sku")).
		Take(&ref).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondSyncError(c, utils.ErrorRecordNotFound)
			return
		}
		respondSyncError(c, err)
		return
	}

	item, err := models.GetCatalogItem(c, db, ref.ID)
	if err != nil {
		respondSyncError(c, err)
		return
	}
	terms, err := models.BranchTermNames(c, db, item)
	if err != nil {
		respondSyncError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"item":        item,
		"attributes":  models.DecodeAttributes(item.AttributesJSON),
		"warehouses":  models.DecodeWarehouses(item.WarehousesJSON),
		"branchTerms": terms,
	})
}

func (h *Handler) GetCode(c *gin.Context) {
	code := normalizeCode(c.Param("code"))
	dc, err := models.FindDiscountCodeByCode(c, config.GetDB(), code)
	if err != nil {
		respondSyncError(c, err)
		return
	}
	if dc == nil {
		respondSyncError(c, utils.ErrorRecordNotFound)
		return
	}
	mobileValid := dc.Mobile == "" || utils.ValidatePhoneNumber(dc.Mobile, h.engine.settings.PhoneRegion) == nil
	c.JSON(http.StatusOK, gin.H{
		"code":          dc,
		"allowedPhones": models.DecodeAllowedPhones(dc.AllowedPhonesJSON),
		"mobileValid":   mobileValid,
	})
}

func (h *Handler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	runs, err := models.GetSyncRuns(c, config.GetDB(), c.Query("type"), limit)
	if err != nil {
		respondSyncError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *Handler) GetRun(c *gin.Context) {
	runId, err := strconv.Atoi(c.Param("id"))
	if err != nil || runId <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	var run models.SyncRun
	if err := config.GetDB().WithContext(c).Take(&run, runId).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	rowErrors, err := models.GetSyncRunErrors(c, config.GetDB(), run.ID, utils.IntFromEnv("SYNC_RUN_ERROR_LIMIT", 100))
	if err != nil {
		respondSyncError(c, err)
		return
	}
	var stats BatchStats
	if len(run.StatsJSON) > 0 {
		_ = utils.UnmarshalFromJSON(run.StatsJSON, &stats)
	}
	c.JSON(http.StatusOK, gin.H{"run": run, "stats": stats, "rowErrors": rowErrors})
}

func (h *Handler) GetProgress(c *gin.Context) {
	progress, err := GetProgress(c.Param("type"))
	if err != nil {
		respondSyncError(c, err)
		return
	}
	lastRunAt, err := LastRunAt(c.Param("type"))
	if err != nil {
		respondSyncError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": progress, "lastRunAt": lastRunAt})
}

func (h *Handler) SearchAudit(c *gin.Context) {
	var from, to *time.Time
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
			return
		}
		from = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp"})
			return
		}
		to = &t
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	entries, total, err := models.SearchAuditEntries(c, config.GetDB(), from, to, c.Query("search"), limit, offset)
	if err != nil {
		respondSyncError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "total": total})
}
