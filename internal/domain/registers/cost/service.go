package cost

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"carmen/internal/core/apperror"
	"carmen/internal/core/entity"
	"carmen/internal/core/id"
	"carmen/internal/core/tx"
	"carmen/internal/core/types"
	"carmen/internal/domain/audit"
	"carmen/pkg/logger"
)

const (
	RecorderTypeGoodsReceipt = "GoodsReceipt"
	RecorderTypeIssue        = "StoreRequisition"
)

// Service provides business operations for the cost register.
type Service struct {
	repo      Repository
	txManager tx.Manager
	outbox    Outbox
	audit     audit.Recorder

	mu        sync.RWMutex
	listeners []PostingListener
}

// NewService creates a new cost register service.
// txManager may be nil for stores without transactions (in-memory).
func NewService(repo Repository, txManager tx.Manager) *Service {
	return &Service{
		repo:      repo,
		txManager: txManager,
	}
}

// Subscribe registers a listener for committed and reversed movements.
func (s *Service) Subscribe(l PostingListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// UseOutbox makes every posting and reversal enqueue its events in the same transaction.
func (s *Service) UseOutbox(o Outbox) {
	s.outbox = o
}

// UseAudit records every posting and reversal in r, in the same transaction.
func (s *Service) UseAudit(r audit.Recorder) {
	s.audit = r
}

// PostReceipt records a goods receipt line.
func (s *Service) PostReceipt(ctx context.Context, in ReceiptInput) (entity.CostMovement, error) {
	if strings.TrimSpace(in.ItemID) == "" {
		return entity.CostMovement{}, apperror.NewValidation("item_id is required")
	}
	if !in.Quantity.IsPositive() {
		return entity.CostMovement{}, apperror.NewValidation("receipt quantity must be positive").
			WithDetail("quantity", in.Quantity.String())
	}
	if in.UnitCost.IsNegative() {
		return entity.CostMovement{}, apperror.NewValidation("unit cost must be >= 0").
			WithDetail("unit_cost", in.UnitCost.String())
	}
	if in.Date.IsZero() {
		return entity.CostMovement{}, apperror.NewValidation("receipt date is required")
	}
	recorderType := in.RecorderType
	if recorderType == "" {
		recorderType = RecorderTypeGoodsReceipt
	}
	m := entity.NewCostMovement(recorderOrNew(in.RecorderID), recorderType, in.Date,
		entity.RecordTypeReceipt, in.ItemID, in.LocationID, in.Quantity, in.UnitCost)

	if err := s.RecordMovements(ctx, []entity.CostMovement{m}); err != nil {
		return entity.CostMovement{}, err
	}
	return m, nil
}

// PostIssue records an issuance line. Issues carry no cost of their own.
func (s *Service) PostIssue(ctx context.Context, in IssueInput) (entity.CostMovement, error) {
	if strings.TrimSpace(in.ItemID) == "" {
		return entity.CostMovement{}, apperror.NewValidation("item_id is required")
	}
	if !in.Quantity.IsPositive() {
		return entity.CostMovement{}, apperror.NewValidation("issue quantity must be positive").
			WithDetail("quantity", in.Quantity.String())
	}
	if in.Date.IsZero() {
		return entity.CostMovement{}, apperror.NewValidation("issue date is required")
	}
	recorderType := in.RecorderType
	if recorderType == "" {
		recorderType = RecorderTypeIssue
	}
	m := entity.NewCostMovement(recorderOrNew(in.RecorderID), recorderType, in.Date,
		entity.RecordTypeIssue, in.ItemID, in.LocationID, in.Quantity, types.Zero())

	if err := s.RecordMovements(ctx, []entity.CostMovement{m}); err != nil {
		return entity.CostMovement{}, err
	}
	return m, nil
}

// RecordMovements persists movements and notifies listeners once committed.
func (s *Service) RecordMovements(ctx context.Context, movements []entity.CostMovement) error {
	if len(movements) == 0 {
		return nil
	}

	for i, m := range movements {
		if !m.RecordType.Valid() {
			return apperror.NewValidation(fmt.Sprintf("movement %d: unknown record type %q", i, m.RecordType))
		}
		if !m.Quantity.IsPositive() {
			return apperror.NewValidation(fmt.Sprintf("movement %d: quantity must be positive", i))
		}
		if id.IsNil(m.RecorderID) {
			return apperror.NewValidation(fmt.Sprintf("movement %d: recorder_id is required", i))
		}
	}

	err := s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateMovements(ctx, movements); err != nil {
			return fmt.Errorf("create movements: %w", err)
		}
		if err := s.record(ctx, audit.ActionPost, movements); err != nil {
			return err
		}
		return s.enqueue(ctx, movements)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "recorded cost movements",
		"count", len(movements),
		"recorder_id", movements[0].RecorderID,
		"item_id", movements[0].ItemID,
	)

	s.notify(ctx, movements)
	return nil
}

// ReverseMovements removes the movements of a document (unposting).
func (s *Service) ReverseMovements(ctx context.Context, recorderID id.ID) error {
	var removed []entity.CostMovement
	err := s.inTx(ctx, func(ctx context.Context) error {
		var err error
		removed, err = s.repo.DeleteMovementsByRecorder(ctx, recorderID)
		if err != nil {
			return fmt.Errorf("delete movements: %w", err)
		}
		if err := s.record(ctx, audit.ActionUnpost, removed); err != nil {
			return err
		}
		return s.enqueue(ctx, removed)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "reversed cost movements",
		"recorder_id", recorderID,
		"count", len(removed),
	)

	s.notify(ctx, removed)
	return nil
}

// ListReceipts returns receipt history for the HTTP layer and CLI.
func (s *Service) ListReceipts(ctx context.Context, f ReceiptFilter) ([]entity.CostMovement, error) {
	if f.ItemID == "" {
		return nil, apperror.NewValidation("item_id is required")
	}
	if f.To.Before(f.From) {
		return nil, apperror.NewValidation("'to' must not be before 'from'")
	}
	return s.repo.ListReceipts(ctx, f.ItemID, f.From, f.To)
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txManager == nil {
		return fn(ctx)
	}
	return s.txManager.RunInTransaction(ctx, fn)
}

func (s *Service) enqueue(ctx context.Context, movements []entity.CostMovement) error {
	if s.outbox == nil || len(movements) == 0 {
		return nil
	}
	events := make([]PostingEvent, 0, len(movements))
	for _, m := range movements {
		events = append(events, NewPostingEvent(m))
	}
	if err := s.outbox.Enqueue(ctx, events); err != nil {
		return fmt.Errorf("enqueue posting events: %w", err)
	}
	return nil
}

type auditLine struct {
	LineID     string    `json:"lineId"`
	RecordType string    `json:"recordType"`
	ItemID     string    `json:"itemId"`
	LocationID string    `json:"locationId,omitempty"`
	Period     time.Time `json:"period"`
	Quantity   string    `json:"quantity"`
	UnitCost   string    `json:"unitCost"`
}

// record writes one audit entry per recorder document.
func (s *Service) record(ctx context.Context, action audit.Action, movements []entity.CostMovement) error {
	if s.audit == nil || len(movements) == 0 {
		return nil
	}
	type document struct {
		RecorderType string      `json:"recorderType"`
		Movements    []auditLine `json:"movements"`
	}
	docs := make(map[id.ID]*document)
	var order []id.ID
	for _, m := range movements {
		d, ok := docs[m.RecorderID]
		if !ok {
			d = &document{RecorderType: m.RecorderType}
			docs[m.RecorderID] = d
			order = append(order, m.RecorderID)
		}
		d.Movements = append(d.Movements, auditLine{
			LineID:     m.LineID.String(),
			RecordType: string(m.RecordType),
			ItemID:     m.ItemID,
			LocationID: m.LocationID,
			Period:     m.Period,
			Quantity:   m.Quantity.String(),
			UnitCost:   m.UnitCost.String(),
		})
	}
	for _, rid := range order {
		e, err := audit.NewEntry(ctx, audit.EntityCostPosting, rid.String(), action, docs[rid])
		if err != nil {
			return err
		}
		if err := s.audit.Record(ctx, e); err != nil {
			return fmt.Errorf("audit %s: %w", action, err)
		}
	}
	return nil
}

func (s *Service) notify(ctx context.Context, movements []entity.CostMovement) {
	s.mu.RLock()
	listeners := append([]PostingListener(nil), s.listeners...)
	s.mu.RUnlock()

	for _, m := range movements {
		for _, l := range listeners {
			l.OnMovementPosted(ctx, m)
		}
	}
}

func recorderOrNew(recorderID id.ID) id.ID {
	if id.IsNil(recorderID) {
		return id.New()
	}
	return recorderID
}
