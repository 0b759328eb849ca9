package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukapos/dukapos/internal/shared"
)

var (
	// ErrPasswordNotSet indicates no business password has been configured yet.
	ErrPasswordNotSet = fmt.Errorf("%w: business password not set", shared.ErrConflict)
	// ErrWrongPassword indicates the business password did not match.
	ErrWrongPassword = fmt.Errorf("%w: invalid business password", shared.ErrForbidden)
)

// Cache is the read-through cache the service keeps BusinessInfo in.
type Cache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context) error
}

// Defaults seed fields that are blank in the store.
type Defaults struct {
	Currency string
	TaxRate  float64
}

// Service owns the business settings and the business password gate.
type Service struct {
	repo     Repository
	cache    Cache
	audit    shared.AuditRecorder
	logger   *slog.Logger
	defaults Defaults
}

// NewService builds Service. A nil cache reads straight from the store.
func NewService(repo Repository, cache Cache, audit shared.AuditRecorder, logger *slog.Logger, defaults Defaults) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, audit: audit, logger: logger, defaults: defaults}
}

// Get returns the current business info.
func (s *Service) Get(ctx context.Context) (BusinessInfo, error) {
	load := func(ctx context.Context) (any, error) {
		rec, err := s.repo.Load(ctx)
		if err != nil {
			return nil, err
		}
		return s.withDefaults(rec.info()), nil
	}
	if s.cache == nil {
		v, err := load(ctx)
		if err != nil {
			return BusinessInfo{}, fmt.Errorf("settings: load: %w", err)
		}
		return v.(BusinessInfo), nil
	}
	key, err := s.cache.BuildKey(ctx, "business")
	if err != nil {
		s.logger.Warn("settings cache key", slog.Any("error", err))
		v, loadErr := load(ctx)
		if loadErr != nil {
			return BusinessInfo{}, fmt.Errorf("settings: load: %w", loadErr)
		}
		return v.(BusinessInfo), nil
	}
	var info BusinessInfo
	if err := s.cache.FetchJSON(ctx, key, &info, load); err != nil {
		return BusinessInfo{}, fmt.Errorf("settings: load: %w", err)
	}
	return info, nil
}

// Update replaces the editable fields and invalidates the cache.
func (s *Service) Update(ctx context.Context, actor string, in UpdateInput) (BusinessInfo, error) {
	in = in.normalize()
	if err := validateUpdate(in); err != nil {
		return BusinessInfo{}, err
	}
	rec, err := s.repo.SaveInfo(ctx, in)
	if err != nil {
		return BusinessInfo{}, fmt.Errorf("settings: save: %w", err)
	}
	s.invalidate(ctx)
	shared.RecordBestEffort(ctx, s.logger, s.audit, shared.AuditLog{
		User:    actor,
		Action:  shared.AuditActionSettings,
		Details: fmt.Sprintf("Updated business settings (tax rate %.4f, currency %s)", in.TaxRate, in.Currency),
	})
	return rec.info(), nil
}

// HasBusinessPassword reports whether the gate has been configured.
func (s *Service) HasBusinessPassword(ctx context.Context) (bool, error) {
	rec, err := s.repo.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("settings: load: %w", err)
	}
	return rec.PasswordHash != "", nil
}

// ChangeBusinessPassword sets the password, requiring the current one once set.
func (s *Service) ChangeBusinessPassword(ctx context.Context, actor string, change PasswordChange) error {
	if err := shared.Validate(change); err != nil {
		return err
	}
	rec, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("settings: load: %w", err)
	}
	if rec.PasswordHash != "" {
		if change.Current == "" {
			return shared.NewValidationError("currentPassword", "is required")
		}
		if bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(change.Current)) != nil {
			return ErrWrongPassword
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(change.New), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("settings: hash password: %w", err)
	}
	if err := s.repo.SetPasswordHash(ctx, string(hash)); err != nil {
		return fmt.Errorf("settings: save password: %w", err)
	}
	s.invalidate(ctx)
	verb := "Changed"
	if rec.PasswordHash == "" {
		verb = "Set"
	}
	shared.RecordBestEffort(ctx, s.logger, s.audit, shared.AuditLog{
		User:    actor,
		Action:  shared.AuditActionSettings,
		Details: verb + " business password",
	})
	return nil
}

// VerifyBusinessPassword checks pw against the stored hash.
func (s *Service) VerifyBusinessPassword(ctx context.Context, pw string) error {
	rec, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("settings: load: %w", err)
	}
	if rec.PasswordHash == "" {
		return ErrPasswordNotSet
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(pw)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrWrongPassword
		}
		return fmt.Errorf("settings: verify password: %w", err)
	}
	return nil
}

// TaxRate returns the configured display tax rate.
func (s *Service) TaxRate(ctx context.Context) (float64, error) {
	info, err := s.Get(ctx)
	if err != nil {
		return s.defaults.TaxRate, err
	}
	return info.TaxRate, nil
}

func (s *Service) withDefaults(info BusinessInfo) BusinessInfo {
	if info.Currency == "" {
		info.Currency = s.defaults.Currency
	}
	return info
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("settings cache bump", slog.Any("error", err))
	}
}
