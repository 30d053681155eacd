package settings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"carmen/internal/core/apperror"
	appctx "carmen/internal/core/context"
	"carmen/internal/core/tx"
	"carmen/internal/domain/audit"
	"carmen/internal/domain/costing"
	"carmen/pkg/logger"
)

// Service reads and changes the costing method of a scope.
type Service struct {
	repo          Repository
	txManager     tx.Manager
	audit         audit.Recorder
	defaultMethod costing.Method
	now           func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithDefaultMethod overrides the method reported for unconfigured scopes.
func WithDefaultMethod(m costing.Method) Option {
	return func(s *Service) {
		if m.Valid() {
			s.defaultMethod = m
		}
	}
}

// WithClock injects the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTxManager runs writes inside a transaction.
func WithTxManager(m tx.Manager) Option {
	return func(s *Service) { s.txManager = m }
}

// WithAudit records every method change in r, in the same transaction as the write.
func WithAudit(r audit.Recorder) Option {
	return func(s *Service) { s.audit = r }
}

// NewService creates a settings service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		defaultMethod: costing.DefaultMethod,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultMethod is the method used when a scope has no settings.
func (s *Service) DefaultMethod() costing.Method {
	return s.defaultMethod
}

// GetSettings returns the active settings of scopeID.
// Unconfigured scopes yield NOT_FOUND; callers decide whether to fall back.
func (s *Service) GetSettings(ctx context.Context, scopeID string) (costing.InventorySettings, error) {
	if err := validateScope(scopeID); err != nil {
		return costing.InventorySettings{}, err
	}
	return s.repo.Read(ctx, scopeID)
}

// SetCostingMethod records method as the scope's active policy.
// It does not recompute costs already reported under the previous method.
func (s *Service) SetCostingMethod(ctx context.Context, scopeID string, method costing.Method) (costing.InventorySettings, error) {
	if err := validateScope(scopeID); err != nil {
		return costing.InventorySettings{}, err
	}
	if !method.Valid() {
		return costing.InventorySettings{}, apperror.NewInvalidArgument("unrecognised costing method").
			WithDetail("method", string(method)).
			WithDetail("allowed", costing.Methods())
	}
	if !appctx.CanAdministerScope(ctx, scopeID) {
		return costing.InventorySettings{}, apperror.NewForbidden("not allowed to change settings of this scope").
			WithDetail("scope_id", scopeID)
	}

	next := costing.InventorySettings{
		ScopeID:   scopeID,
		Method:    method,
		UpdatedBy: appctx.GetUserID(ctx),
		UpdatedAt: s.now().UTC(),
	}
	if err := next.Validate(); err != nil {
		return costing.InventorySettings{}, err
	}

	var stored costing.InventorySettings
	write := func(ctx context.Context) error {
		var prev *costing.InventorySettings
		if s.audit != nil {
			cur, err := s.repo.Read(ctx, scopeID)
			switch {
			case err == nil:
				prev = &cur
			case !apperror.IsNotFound(err):
				return fmt.Errorf("read current settings: %w", err)
			}
		}

		var err error
		stored, err = s.repo.Write(ctx, next)
		if err != nil {
			return fmt.Errorf("write settings: %w", err)
		}
		return s.record(ctx, prev, stored)
	}
	var err error
	if s.txManager != nil {
		err = s.txManager.RunInTransaction(ctx, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		return costing.InventorySettings{}, err
	}

	logger.Info(ctx, "costing method changed",
		"scope_id", scopeID,
		"method", stored.Method,
		"version", stored.Version,
	)
	return stored, nil
}

func (s *Service) record(ctx context.Context, prev *costing.InventorySettings, stored costing.InventorySettings) error {
	if s.audit == nil {
		return nil
	}
	before := map[string]any{}
	if prev != nil {
		before = auditState(*prev)
	}
	e, err := audit.NewEntry(ctx, audit.EntityInventorySettings, stored.ScopeID, audit.ActionUpdate,
		audit.Diff(before, auditState(stored)))
	if err != nil {
		return err
	}
	if err := s.audit.Record(ctx, e); err != nil {
		return fmt.Errorf("audit settings change: %w", err)
	}
	return nil
}

func auditState(st costing.InventorySettings) map[string]any {
	return map[string]any{
		"costing_method": string(st.Method),
		"version":        st.Version,
	}
}

// ResolveMethod returns the scope's method, or the default when the scope is
// unconfigured. defaulted reports which case applied.
func (s *Service) ResolveMethod(ctx context.Context, scopeID string) (method costing.Method, defaulted bool, err error) {
	st, err := s.GetSettings(ctx, scopeID)
	switch {
	case err == nil:
		return st.Method, false, nil
	case apperror.IsNotFound(err):
		logger.Debug(ctx, "scope has no inventory settings, using default method",
			"scope_id", scopeID,
			"method", s.defaultMethod,
		)
		return s.defaultMethod, true, nil
	default:
		return "", false, err
	}
}

// History lists every settings version of scopeID, newest first.
func (s *Service) History(ctx context.Context, scopeID string) ([]costing.InventorySettings, error) {
	if err := validateScope(scopeID); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, scopeID)
}

func validateScope(scopeID string) error {
	if strings.TrimSpace(scopeID) == "" {
		return apperror.NewInvalidArgument("scope id is required")
	}
	return nil
}
