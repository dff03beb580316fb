package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/anyllm/gateway/internal/auth"
	"github.com/anyllm/gateway/internal/metrics"
	"github.com/anyllm/gateway/internal/model"
	"github.com/anyllm/gateway/internal/repository"
)

// Provisioning errors.
var (
	ErrUserBlocked        = errors.New("user is blocked")
	ErrProvisioningFailed = errors.New("provisioning failed")
)

// ProvisionDefaults are the budget values applied to new users.
type ProvisionDefaults struct {
	MaxBudget         float64 // <= 0 means unlimited
	BudgetDurationSec int64
}

// ProvisionResult is the outcome of resolving a verified profile to an
// account. NewKey is set only when the user was created on this call.
type ProvisionResult struct {
	User     *model.User
	Budget   *model.Budget
	Key      *model.APIKey
	NewKey   *auth.GeneratedKey
	Identity *model.ProviderIdentity
	IsNew    bool
}

// Provisioner turns verified external profiles into gateway accounts.
// First login creates budget, user, API key and identity atomically;
// repeat logins reuse the existing account.
type Provisioner struct {
	repo     *repository.Repository
	verifier ProfileVerifier
	defaults ProvisionDefaults
	metrics  metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(repo *repository.Repository, verifier ProfileVerifier, defaults ProvisionDefaults, recorder metrics.Recorder, logger *slog.Logger) *Provisioner {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		repo:     repo,
		verifier: verifier,
		defaults: defaults,
		metrics:  recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the provisioner's clock. Intended for tests.
func (p *Provisioner) SetClock(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// EnsureUser verifies the login request against the identity provider
// and returns the account it maps to, creating one if needed.
func (p *Provisioner) EnsureUser(ctx context.Context, req *model.LoginRequest) (*ProvisionResult, error) {
	profile, err := p.verifier.Verify(ctx, req.Provider, req.AccessToken)
	if err != nil {
		return nil, err
	}

	// Client-supplied hints fill gaps the provider left, never
	// override verified fields.
	if profile.Email == "" {
		profile.Email = req.Email
	}
	if profile.Name == "" {
		profile.Name = req.Name
	}
	if profile.AvatarURL == "" {
		profile.AvatarURL = req.AvatarURL
	}

	identity, err := p.repo.GetIdentityBySubject(ctx, profile.Provider, profile.Subject)
	switch {
	case err == nil:
		return p.existingUser(ctx, identity, profile)
	case errors.Is(err, repository.ErrIdentityNotFound):
		result, err := p.newUser(ctx, profile, req.Metadata)
		if errors.Is(err, repository.ErrIdentityExists) {
			// Lost a first-login race. The winner's rows are
			// committed, so the existing-user path must succeed.
			p.metrics.IncProvisioningConflict()
			p.logger.Info("provisioning race lost, reusing winner's account",
				slog.String("provider", profile.Provider))

			identity, err := p.repo.GetIdentityBySubject(ctx, profile.Provider, profile.Subject)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
			}
			return p.existingUser(ctx, identity, profile)
		}
		return result, err
	default:
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}
}

// existingUser loads an established account and refreshes its identity
// profile fields.
func (p *Provisioner) existingUser(ctx context.Context, identity *model.ProviderIdentity, profile *model.Profile) (*ProvisionResult, error) {
	user, err := p.repo.GetUserByID(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}
	if user.Blocked {
		return nil, ErrUserBlocked
	}

	budget, err := p.repo.GetBudgetByID(ctx, user.BudgetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	key, err := p.repo.GetPrimaryActiveKey(ctx, user.ID)
	if err != nil && !errors.Is(err, repository.ErrAPIKeyNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	// All keys revoked since last login: mint a replacement so the
	// session has a key to scope to.
	var newKey *auth.GeneratedKey
	if key == nil {
		key, newKey, err = p.mintKey(ctx, user.ID, profile)
		if err != nil {
			return nil, err
		}
	}

	now := p.now().UTC()
	if err := p.repo.UpdateIdentityLogin(ctx, identity.ID, profile, nil, now); err != nil {
		// Profile refresh is best effort; login proceeds.
		p.logger.Warn("failed to refresh identity profile",
			slog.String("identity_id", identity.ID),
			slog.String("error", err.Error()))
	}

	return &ProvisionResult{
		User:     user,
		Budget:   budget,
		Key:      key,
		NewKey:   newKey,
		Identity: identity,
		IsNew:    false,
	}, nil
}

// newUser provisions budget, user, API key and identity in one
// transaction.
func (p *Provisioner) newUser(ctx context.Context, profile *model.Profile, metadata map[string]any) (*ProvisionResult, error) {
	now := p.now().UTC()

	budget := &model.Budget{
		ID:          uuid.NewString(),
		DurationSec: p.defaults.BudgetDurationSec,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.defaults.MaxBudget > 0 {
		maxBudget := p.defaults.MaxBudget
		budget.MaxBudget = &maxBudget
	}
	if budget.DurationSec <= 0 {
		budget.DurationSec = int64(model.DefaultBudgetDuration.Seconds())
	}

	nextReset := now.Add(budget.Duration())
	user := &model.User{
		ID:                uuid.NewString(),
		BudgetID:          budget.ID,
		Alias:             profile.Name,
		Blocked:           false,
		BudgetStartedAt:   &now,
		NextBudgetResetAt: &nextReset,
		Metadata:          metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	generated, err := auth.GenerateAPIKey(auth.EnvLive)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	key := &model.APIKey{
		ID:        ulid.Make().String(),
		UserID:    user.ID,
		KeyHash:   generated.Hash,
		KeyPrefix: generated.Prefix,
		Name:      "default",
		IsActive:  true,
		CreatedAt: now,
	}

	identity := &model.ProviderIdentity{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		Provider:       profile.Provider,
		ProviderUserID: profile.Subject,
		Role:           profileRole(profile),
		Email:          profile.Email,
		Name:           profile.Name,
		AvatarURL:      profile.AvatarURL,
		LastLoginAt:    &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := p.repo.CreateIdentityCascade(ctx, budget, user, key, identity); err != nil {
		if errors.Is(err, repository.ErrIdentityExists) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	p.metrics.IncUserProvisioned()
	p.logger.Info("provisioned new user",
		slog.String("user_id", user.ID),
		slog.String("provider", profile.Provider))

	return &ProvisionResult{
		User:     user,
		Budget:   budget,
		Key:      key,
		NewKey:   generated,
		Identity: identity,
		IsNew:    true,
	}, nil
}

// mintKey creates a replacement API key for a user with none active.
func (p *Provisioner) mintKey(ctx context.Context, userID string, profile *model.Profile) (*model.APIKey, *auth.GeneratedKey, error) {
	generated, err := auth.GenerateAPIKey(auth.EnvLive)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	key := &model.APIKey{
		ID:        ulid.Make().String(),
		UserID:    userID,
		KeyHash:   generated.Hash,
		KeyPrefix: generated.Prefix,
		Name:      "default",
		IsActive:  true,
		CreatedAt: p.now().UTC(),
	}

	if err := p.repo.CreateAPIKey(ctx, key); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	p.logger.Info("minted replacement API key",
		slog.String("user_id", userID),
		slog.String("provider", profile.Provider))

	return key, generated, nil
}

func profileRole(profile *model.Profile) string {
	if profile.Role != "" {
		return profile.Role
	}
	return model.RoleUser
}
