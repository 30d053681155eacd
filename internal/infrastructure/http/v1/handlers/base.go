package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"carmen/internal/core/apperror"
	"carmen/internal/core/period"
	"carmen/internal/core/types"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct {
	loc *time.Location
	now func() time.Time
}

// NewBaseHandler creates a base handler that reads date-only parameters in loc.
func NewBaseHandler(loc *time.Location) *BaseHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &BaseHandler{loc: loc, now: time.Now}
}

// BindJSON binds and validates JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// BindQuery binds and validates query parameters.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid query parameters").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// Error registers err on the Gin context and aborts the request.
// The JSON response is produced by middleware.ErrorHandler.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ParseDate parses a date parameter; empty means now.
func (h *BaseHandler) ParseDate(field, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return h.now(), nil
	}
	t, err := period.ParseDate(value, h.loc)
	if err != nil {
		return time.Time{}, apperror.NewValidation("invalid "+field).WithDetail(field, value)
	}
	return t, nil
}

// ParseQuantity parses a decimal quantity; empty yields def.
func (h *BaseHandler) ParseQuantity(field, value string, def types.Quantity) (types.Quantity, error) {
	if strings.TrimSpace(value) == "" {
		return def, nil
	}
	q, err := types.ParseQuantity(value)
	if err != nil {
		return types.Quantity{}, apperror.NewValidation("invalid "+field).WithDetail(field, value)
	}
	return q, nil
}

// ParseMoney parses a decimal amount.
func (h *BaseHandler) ParseMoney(field, value string) (types.Money, error) {
	m, err := types.ParseMoney(value)
	if err != nil {
		return types.Money{}, apperror.NewValidation("invalid "+field).WithDetail(field, value)
	}
	return m, nil
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Created sends 201 response with data.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}
