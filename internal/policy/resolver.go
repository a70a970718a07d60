package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/eliteGoblin/pactd/internal/domain"
)

// Resolver answers "what category is this app and how long may it be
// used". Persisted mappings (which include user overrides) win over the
// built-in seed tables. All mutations write through to the repository
// synchronously; storage failures propagate to the caller.
type Resolver struct {
	mappings domain.MappingRepository
	now      func() time.Time
}

// NewResolver creates a Resolver backed by the given mapping repository.
func NewResolver(mappings domain.MappingRepository) *Resolver {
	return &Resolver{mappings: mappings, now: time.Now}
}

// Categorize returns the category for an app identifier: persisted mapping
// first, then the built-in membership tables, then UNKNOWN.
func (r *Resolver) Categorize(ctx context.Context, appID string) (domain.Category, error) {
	m, err := r.mappings.GetByApp(ctx, appID)
	if err != nil {
		return domain.CategoryUnknown, fmt.Errorf("failed to look up mapping: %w", err)
	}
	if m != nil {
		return m.Category, nil
	}
	return seedCategory(appID), nil
}

// ResolveThreshold returns the usage limit for an app: a persisted custom
// threshold if one is set, otherwise the category default, otherwise the
// UNKNOWN category default.
func (r *Resolver) ResolveThreshold(ctx context.Context, appID string) (time.Duration, error) {
	m, err := r.mappings.GetByApp(ctx, appID)
	if err != nil {
		return 0, fmt.Errorf("failed to look up mapping: %w", err)
	}
	if m != nil && m.HasThreshold {
		return m.CustomThreshold, nil
	}
	cat := seedCategory(appID)
	if m != nil {
		cat = m.Category
	}
	return DefaultThreshold(cat), nil
}

// SetUserCategory writes a USER mapping for the app, unconditionally
// replacing any existing mapping. An existing custom threshold is carried
// over; only the category association changes.
func (r *Resolver) SetUserCategory(ctx context.Context, appID string, cat domain.Category) error {
	existing, err := r.mappings.GetByApp(ctx, appID)
	if err != nil {
		return fmt.Errorf("failed to look up mapping: %w", err)
	}

	m := domain.AppCategoryMapping{
		AppID:     appID,
		Category:  cat,
		Source:    domain.SourceUser,
		UpdatedAt: r.now(),
	}
	if existing != nil {
		m.CustomThreshold = existing.CustomThreshold
		m.HasThreshold = existing.HasThreshold
		m.Blocked = existing.Blocked
	}
	return r.mappings.Upsert(ctx, m)
}

// SetCustomThreshold sets or clears (hasThreshold=false) the per-app
// threshold. If no mapping exists yet, a SYSTEM mapping carrying the
// threshold is created with the app's current category.
func (r *Resolver) SetCustomThreshold(ctx context.Context, appID string, threshold time.Duration, hasThreshold bool) error {
	existing, err := r.mappings.GetByApp(ctx, appID)
	if err != nil {
		return fmt.Errorf("failed to look up mapping: %w", err)
	}

	if existing != nil {
		existing.CustomThreshold = threshold
		existing.HasThreshold = hasThreshold
		existing.UpdatedAt = r.now()
		return r.mappings.Upsert(ctx, *existing)
	}

	return r.mappings.Upsert(ctx, domain.AppCategoryMapping{
		AppID:           appID,
		Category:        seedCategory(appID),
		CustomThreshold: threshold,
		HasThreshold:    hasThreshold,
		Source:          domain.SourceSystem,
		UpdatedAt:       r.now(),
	})
}

// SetBlocked sets the blocked flag with the same create-or-update
// semantics as SetCustomThreshold.
func (r *Resolver) SetBlocked(ctx context.Context, appID string, blocked bool) error {
	existing, err := r.mappings.GetByApp(ctx, appID)
	if err != nil {
		return fmt.Errorf("failed to look up mapping: %w", err)
	}

	if existing != nil {
		existing.Blocked = blocked
		existing.UpdatedAt = r.now()
		return r.mappings.Upsert(ctx, *existing)
	}

	return r.mappings.Upsert(ctx, domain.AppCategoryMapping{
		AppID:     appID,
		Category:  seedCategory(appID),
		Blocked:   blocked,
		Source:    domain.SourceSystem,
		UpdatedAt: r.now(),
	})
}

// IsBlocked reports whether the app carries a blocked flag in its mapping.
func (r *Resolver) IsBlocked(ctx context.Context, appID string) (bool, error) {
	m, err := r.mappings.GetByApp(ctx, appID)
	if err != nil {
		return false, fmt.Errorf("failed to look up mapping: %w", err)
	}
	return m != nil && m.Blocked, nil
}

// Seed persists the built-in SYSTEM mappings with insert-if-absent
// semantics. Existing mappings, user or system, are never overwritten.
func (r *Resolver) Seed(ctx context.Context) error {
	for _, m := range SeedMappings(r.now()) {
		if err := r.mappings.InsertIfAbsent(ctx, m); err != nil {
			return fmt.Errorf("failed to seed mapping for %s: %w", m.AppID, err)
		}
	}
	return nil
}
