package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carmen/internal/core/apperror"
	"carmen/internal/core/entity"
	"carmen/internal/core/id"
	"carmen/internal/core/types"
	"carmen/internal/domain/registers/cost"
	"carmen/internal/infrastructure/http/v1/dto"
)

// RegisterHandler handles HTTP requests for the cost register.
type RegisterHandler struct {
	*BaseHandler
	service *cost.Service
}

// NewRegisterHandler creates a new cost register handler.
func NewRegisterHandler(base *BaseHandler, service *cost.Service) *RegisterHandler {
	return &RegisterHandler{BaseHandler: base, service: service}
}

// PostReceipt handles POST /register/receipts
func (h *RegisterHandler) PostReceipt(c *gin.Context) {
	var req dto.PostReceiptRequest
	if !h.BindJSON(c, &req) {
		return
	}
	recorderID, err := parseRecorderID(req.RecorderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	date, err := h.ParseDate("date", req.Date)
	if err != nil {
		h.Error(c, err)
		return
	}
	qty, err := h.ParseQuantity("quantity", req.Quantity, types.Zero())
	if err != nil {
		h.Error(c, err)
		return
	}
	unitCost, err := h.ParseMoney("unitCost", req.UnitCost)
	if err != nil {
		h.Error(c, err)
		return
	}

	m, err := h.service.PostReceipt(c.Request.Context(), cost.ReceiptInput{
		RecorderID: recorderID,
		ItemID:     req.ItemID,
		LocationID: req.LocationID,
		Date:       date,
		Quantity:   qty,
		UnitCost:   unitCost,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromMovement(m))
}

// PostIssue handles POST /register/issues
func (h *RegisterHandler) PostIssue(c *gin.Context) {
	var req dto.PostIssueRequest
	if !h.BindJSON(c, &req) {
		return
	}
	recorderID, err := parseRecorderID(req.RecorderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	date, err := h.ParseDate("date", req.Date)
	if err != nil {
		h.Error(c, err)
		return
	}
	qty, err := h.ParseQuantity("quantity", req.Quantity, types.Zero())
	if err != nil {
		h.Error(c, err)
		return
	}

	m, err := h.service.PostIssue(c.Request.Context(), cost.IssueInput{
		RecorderID: recorderID,
		ItemID:     req.ItemID,
		LocationID: req.LocationID,
		Date:       date,
		Quantity:   qty,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromMovement(m))
}

// ListReceipts handles GET /register/receipts
func (h *RegisterHandler) ListReceipts(c *gin.Context) {
	var q dto.ReceiptsQuery
	if !h.BindQuery(c, &q) {
		return
	}
	from, err := h.ParseDate("from", q.From)
	if err != nil {
		h.Error(c, err)
		return
	}
	to, err := h.ParseDate("to", q.To)
	if err != nil {
		h.Error(c, err)
		return
	}

	movements, err := h.service.ListReceipts(c.Request.Context(), cost.ReceiptFilter{ItemID: q.ItemID, From: from, To: to})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(mapMovements(movements)))
}

// Reverse handles DELETE /register/recorders/:recorderId
func (h *RegisterHandler) Reverse(c *gin.Context) {
	recorderID, err := id.Parse(c.Param("recorderId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid recorderId format"))
		return
	}
	if err := h.service.ReverseMovements(c.Request.Context(), recorderID); err != nil {
		h.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseRecorderID(s string) (id.ID, error) {
	recorderID, err := id.ParseOptional(s)
	if err != nil {
		return id.Nil(), apperror.NewValidation("invalid recorderId format")
	}
	return recorderID, nil
}

func mapMovements(ms []entity.CostMovement) []dto.MovementResponse {
	out := make([]dto.MovementResponse, 0, len(ms))
	for _, m := range ms {
		out = append(out, dto.FromMovement(m))
	}
	return out
}
