package handler

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"alphafeed/internal/middleware"
	"alphafeed/internal/models"
	"alphafeed/internal/repository"
	"alphafeed/internal/service"
)

const switchPrefix = "feature."

type SettingsHandler struct {
	Repo     repository.Repository
	Settings *service.SystemSettingsService
	Sealer   *service.SettingsSealer
}

func (h *SettingsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/settings")
	g.GET("", h.list)
	g.GET("/switches", h.listSwitches)
	g.PUT("/switches/:name", h.putSwitch)
	g.GET("/:key", h.get)
	g.PUT("/:key", h.put)
}

// @Summary List settings
// @Tags settings
// @Param prefix query string false "key prefix"
// @Success 200 {object} map[string]any
// @Router /api/v1/settings [get]
func (h *SettingsHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 200)
	offset := intQuery(c, "offset", 0)
	params := repository.ListSystemSettingsParams{
		Limit:   limit,
		Offset:  offset,
		Prefix:  strQueryPtr(c, "prefix"),
		OrderBy: "key",
		Asc:     boolPtr(true),
	}
	items, err := h.Repo.ListSystemSettings(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountSystemSettings(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	for i := range items {
		mask(&items[i])
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Get one setting
// @Tags settings
// @Param key path string true "setting key"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/v1/settings/{key} [get]
func (h *SettingsHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	key := strings.TrimSpace(c.Param("key"))
	item, err := h.Repo.GetSystemSettingByKey(c.Request.Context(), key)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "setting not found", nil)
		return
	}
	mask(item)
	Ok(c, item, nil)
}

type putSettingRequest struct {
	Value       any    `json:"value"`
	Description string `json:"description"`
}

// @Summary Write one setting
// @Description Feature switches only accept booleans.
// @Tags settings
// @Accept json
// @Param key path string true "setting key"
// @Param body body putSettingRequest true "value"
// @Success 200 {object} map[string]any
// @Router /api/v1/settings/{key} [put]
func (h *SettingsHandler) put(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	key := strings.TrimSpace(c.Param("key"))
	var req putSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil || key == "" {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if service.IsFeatureSwitch(key) {
		if _, ok := req.Value.(bool); !ok {
			Error(c, http.StatusBadRequest, "switch value must be a boolean", nil)
			return
		}
	}
	raw, err := json.Marshal(req.Value)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid value", nil)
		return
	}
	raw, err = h.Sealer.Seal(key, raw)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: strings.TrimSpace(req.Description),
		UpdatedAt:   time.Now().UTC(),
	}
	if claims, ok := middleware.ClaimsFrom(c); ok {
		item.UpdatedBy = claims.Subject
	}
	if err := h.Repo.UpsertSystemSetting(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	next, _ := h.Repo.GetSystemSettingByKey(c.Request.Context(), key)
	if next != nil {
		mask(next)
	}
	Ok(c, next, nil)
}

// mask hides sensitive values; sealed or not, they never leave the service.
func mask(item *models.SystemSetting) {
	if service.IsSensitiveSetting(item.Key) && len(item.Value) > 0 {
		item.Value = datatypes.JSON(service.MaskedValue)
	}
}

type switchView struct {
	Name    string `json:"name"`
	Key     string `json:"key"`
	Enabled bool   `json:"enabled"`
}

// @Summary List feature switches
// @Tags settings
// @Success 200 {object} map[string]any
// @Router /api/v1/settings/switches [get]
func (h *SettingsHandler) listSwitches(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	defaults := service.DefaultFeatureSwitches()
	out := make([]switchView, 0, len(defaults))
	for key, def := range defaults {
		out = append(out, switchView{
			Name:    strings.TrimPrefix(key, switchPrefix),
			Key:     key,
			Enabled: h.Settings.IsEnabled(c.Request.Context(), key, def),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	Ok(c, out, nil)
}

type putSwitchRequest struct {
	Enabled *bool `json:"enabled"`
}

// @Summary Toggle a feature switch
// @Tags settings
// @Accept json
// @Param name path string true "switch name without the feature. prefix"
// @Param body body putSwitchRequest true "enabled flag"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/v1/settings/switches/{name} [put]
func (h *SettingsHandler) putSwitch(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	name := strings.TrimPrefix(strings.TrimSpace(c.Param("name")), switchPrefix)
	key := switchPrefix + name
	if !service.IsFeatureSwitch(key) {
		Error(c, http.StatusNotFound, "unknown switch", nil)
		return
	}
	var req putSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		Error(c, http.StatusBadRequest, "enabled required", nil)
		return
	}
	if err := h.Settings.SetEnabled(c.Request.Context(), key, *req.Enabled); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, switchView{Name: name, Key: key, Enabled: *req.Enabled}, nil)
}
