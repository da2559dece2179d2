package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"postpilot/internal/compliance"
	"postpilot/internal/platform"
	"postpilot/internal/scheduler"
	"postpilot/internal/store"
	logx "postpilot/pkg/logx"
)

// listLimitMax caps logs/metrics listing; requests outside [1,500] are clamped.
const (
	listLimitDefault = 100
	listLimitMax     = 500
)

type Handler struct {
	store    store.Store
	engine   *scheduler.Engine
	checker  *compliance.Checker
	registry *platform.Registry
	log      logx.Logger
}

func NewHandler(st store.Store, eng *scheduler.Engine, checker *compliance.Checker, reg *platform.Registry, log logx.Logger) *Handler {
	return &Handler{store: st, engine: eng, checker: checker, registry: reg, log: log}
}

func (h *Handler) Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) ListPlatforms(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"platforms": h.registry.Names()})
}

type addAccountRequest struct {
	Platform  string `json:"platform"`
	Nickname  string `json:"nickname"`
	AIEnabled bool   `json:"aiEnabled"`
}

func (h *Handler) AddAccount(ctx *gin.Context) {
	var req addAccountRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Platform) == "" || strings.TrimSpace(req.Nickname) == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "platform and nickname required"})
		return
	}
	acc, err := h.store.AddAccount(ctx.Request.Context(), store.Account{
		Platform:  strings.TrimSpace(req.Platform),
		Nickname:  strings.TrimSpace(req.Nickname),
		AIEnabled: req.AIEnabled,
	})
	if err != nil {
		h.serverError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, acc)
}

func (h *Handler) ListAccounts(ctx *gin.Context) {
	accounts, err := h.store.ListAccounts(ctx.Request.Context())
	if err != nil {
		h.serverError(ctx, err)
		return
	}
	if accounts == nil {
		accounts = []store.Account{}
	}
	ctx.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) SetAccountStatus(ctx *gin.Context) {
	id := ctx.Param("id")
	var req setStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	status := store.AccountStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if status != store.AccountActive && status != store.AccountDisabled {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "status must be active or disabled"})
		return
	}
	if err := h.store.SetAccountStatus(ctx.Request.Context(), id, status); err != nil {
		h.storeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"id": id, "status": status})
}

func (h *Handler) DeleteAccount(ctx *gin.Context) {
	if err := h.store.DeleteAccount(ctx.Request.Context(), ctx.Param("id")); err != nil {
		h.storeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"deleted": true})
}

type createScheduleRequest struct {
	AccountID      string     `json:"accountId"`
	ContentType    string     `json:"contentType"`
	ContentAssetID string     `json:"contentAssetId,omitempty"`
	PublishAt      *time.Time `json:"publishAt,omitempty"`
}

func (h *Handler) CreateSchedule(ctx *gin.Context) {
	var req createScheduleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.AccountID) == "" || strings.TrimSpace(req.ContentType) == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "accountId and contentType required"})
		return
	}
	t := store.PublishTask{
		AccountID:      strings.TrimSpace(req.AccountID),
		ContentType:    strings.TrimSpace(req.ContentType),
		ContentAssetID: strings.TrimSpace(req.ContentAssetID),
	}
	if req.PublishAt != nil {
		t.PublishAt = *req.PublishAt
	}
	task, err := h.store.CreateTask(ctx.Request.Context(), t)
	if err != nil {
		h.serverError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, task)
}

func (h *Handler) ListSchedules(ctx *gin.Context) {
	tasks, err := h.store.ListTasks(ctx.Request.Context())
	if err != nil {
		h.serverError(ctx, err)
		return
	}
	if tasks == nil {
		tasks = []store.PublishTask{}
	}
	ctx.JSON(http.StatusOK, gin.H{"schedules": tasks})
}

func (h *Handler) GetSchedule(ctx *gin.Context) {
	task, err := h.store.GetTask(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		h.storeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, task)
}

func (h *Handler) CancelSchedule(ctx *gin.Context) {
	task, err := h.engine.Cancel(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		h.storeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, task)
}

func (h *Handler) RetrySchedule(ctx *gin.Context) {
	task, err := h.engine.Retry(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		h.storeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, task)
}

func (h *Handler) ExecuteSchedule(ctx *gin.Context) {
	task, err := h.engine.ExecuteNow(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		h.storeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, task)
}

func (h *Handler) ListLogs(ctx *gin.Context) {
	logs, err := h.store.ListTaskLogs(ctx.Request.Context(), clampLimit(ctx.Query("limit")))
	if err != nil {
		h.serverError(ctx, err)
		return
	}
	if logs == nil {
		logs = []store.TaskLog{}
	}
	ctx.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (h *Handler) ListMetrics(ctx *gin.Context) {
	metrics, err := h.store.ListPublishMetrics(ctx.Request.Context(), clampLimit(ctx.Query("limit")))
	if err != nil {
		h.serverError(ctx, err)
		return
	}
	if metrics == nil {
		metrics = []store.PublishMetric{}
	}
	ctx.JSON(http.StatusOK, gin.H{"metrics": metrics})
}

type importHotspotsRequest struct {
	Mode  string         `json:"mode"`
	Items []store.Hotspot `json:"items"`
}

func (h *Handler) ImportHotspots(ctx *gin.Context) {
	var req importHotspotsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	mode := store.ImportMode(strings.ToLower(strings.TrimSpace(req.Mode)))
	if mode != store.ImportMerge && mode != store.ImportReplace {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "mode must be merge or replace"})
		return
	}
	if err := h.store.ImportHotspots(ctx.Request.Context(), req.Items, mode); err != nil {
		h.serverError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"imported": len(req.Items), "mode": mode})
}

func (h *Handler) ListHotspots(ctx *gin.Context) {
	hotspots, err := h.store.ListHotspots(ctx.Request.Context())
	if err != nil {
		h.serverError(ctx, err)
		return
	}
	if hotspots == nil {
		hotspots = []store.Hotspot{}
	}
	ctx.JSON(http.StatusOK, gin.H{"hotspots": hotspots})
}

func (h *Handler) ImportAsset(ctx *gin.Context) {
	var asset store.ContentAsset
	if err := ctx.ShouldBindJSON(&asset); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(asset.Type) == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "type required"})
		return
	}
	saved, err := h.store.PutContentAsset(ctx.Request.Context(), asset)
	if err != nil {
		h.serverError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, saved)
}

func (h *Handler) ListAssets(ctx *gin.Context) {
	assets, err := h.store.ListContentAssets(ctx.Request.Context())
	if err != nil {
		h.serverError(ctx, err)
		return
	}
	if assets == nil {
		assets = []store.ContentAsset{}
	}
	ctx.JSON(http.StatusOK, gin.H{"assets": assets})
}

func (h *Handler) GetSensitiveWords(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"words": h.checker.Words()})
}

type setWordsRequest struct {
	Words []string `json:"words"`
}

func (h *Handler) SetSensitiveWords(ctx *gin.Context) {
	var req setWordsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	h.checker.SetWords(req.Words)
	ctx.JSON(http.StatusOK, gin.H{"words": h.checker.Words()})
}

func (h *Handler) storeError(ctx *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	h.serverError(ctx, err)
}

func (h *Handler) serverError(ctx *gin.Context, err error) {
	if !h.log.IsZero() {
		h.log.Warn("request failed", logx.String("path", ctx.FullPath()), logx.Err(err))
	}
	ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func clampLimit(raw string) int {
	limit := listLimitDefault
	if raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > listLimitMax {
		limit = listLimitMax
	}
	return limit
}
