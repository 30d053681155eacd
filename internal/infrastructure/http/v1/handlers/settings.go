package handlers

import (
	"github.com/gin-gonic/gin"

	"carmen/internal/domain/costing"
	"carmen/internal/domain/costing/settings"
	"carmen/internal/infrastructure/http/v1/dto"
)

// SettingsHandler handles HTTP requests for inventory settings.
type SettingsHandler struct {
	*BaseHandler
	service *settings.Service
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(base *BaseHandler, service *settings.Service) *SettingsHandler {
	return &SettingsHandler{BaseHandler: base, service: service}
}

// Get handles GET /settings/:scopeId
func (h *SettingsHandler) Get(c *gin.Context) {
	st, err := h.service.GetSettings(c.Request.Context(), c.Param("scopeId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSettings(st))
}

// Set handles PUT /settings/:scopeId
func (h *SettingsHandler) Set(c *gin.Context) {
	var req dto.SetCostingMethodRequest
	if !h.BindJSON(c, &req) {
		return
	}
	method, err := costing.ParseMethod(req.CostingMethod)
	if err != nil {
		h.Error(c, err)
		return
	}

	st, err := h.service.SetCostingMethod(c.Request.Context(), c.Param("scopeId"), method)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSettings(st))
}

// History handles GET /settings/:scopeId/history
func (h *SettingsHandler) History(c *gin.Context) {
	versions, err := h.service.History(c.Request.Context(), c.Param("scopeId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	items := make([]dto.SettingsResponse, 0, len(versions))
	for _, v := range versions {
		items = append(items, dto.FromSettings(v))
	}
	h.OK(c, dto.NewListResponse(items))
}
