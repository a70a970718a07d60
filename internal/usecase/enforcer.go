// Package usecase contains application business logic.
package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/pactd/internal/domain"
)

// CheckViolations classifies the user's current behavior against the
// given agreements. Agreements are scanned in input order and the first
// expired agreement that yields a non-NONE classification decides; this is
// deliberately "first relevant agreement wins", not an aggregate check.
//
// A general agreement (no app id) is violated when any app is in the
// foreground at expiry and completed when none is. An app-specific
// agreement is violated only when its own app is still foregrounded, and
// completed otherwise.
func CheckViolations(agreements []domain.Agreement, currentApp string, now time.Time) domain.ViolationResult {
	for i := range agreements {
		a := &agreements[i]
		if !IsExpired(a, now) {
			continue // still active, contributes nothing
		}

		if !a.IsAppSpecific() {
			if currentApp != "" {
				return domain.Violation(a)
			}
			return domain.Completion(a)
		}

		if currentApp == a.AppID {
			return domain.Violation(a)
		}
		return domain.Completion(a)
	}
	return domain.NoAction()
}

// IsExpired reports whether the agreement's budget has run out. An
// agreement created in the future (clock skew) is treated as not yet
// expired rather than an error.
func IsExpired(a *domain.Agreement, now time.Time) bool {
	if a.CreatedAt.After(now) {
		return false
	}
	return !now.Before(a.ExpiresAt)
}

// TimeRemaining returns the signed time left on the agreement; negative
// once expired.
func TimeRemaining(a *domain.Agreement, now time.Time) time.Duration {
	return a.ExpiresAt.Sub(now)
}

// ProgressPercentage returns elapsed/total as a percentage clamped to
// [0,100].
func ProgressPercentage(a *domain.Agreement, now time.Time) float64 {
	if a.Duration <= 0 {
		return 100
	}
	elapsed := now.Sub(a.CreatedAt)
	pct := float64(elapsed) / float64(a.Duration) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Enforcer loads active agreements, evaluates them against the foreground
// app, applies the terminal status transition, and notifies.
type Enforcer struct {
	agreements domain.AgreementRepository
	notifier   domain.Notifier
	logger     *zap.Logger
}

// NewEnforcer creates an enforcement service.
func NewEnforcer(agreements domain.AgreementRepository, notifier domain.Notifier, logger *zap.Logger) *Enforcer {
	return &Enforcer{
		agreements: agreements,
		notifier:   notifier,
		logger:     logger,
	}
}

// Check runs one enforcement pass and returns the classification. The
// agreement named in a VIOLATION or COMPLETION result is transitioned out
// of ACTIVE exactly once. A failed transition propagates alongside the
// result with no notification sent; the agreement stays ACTIVE and the
// caller decides whether to retry or surface the error.
func (e *Enforcer) Check(ctx context.Context, currentApp string, now time.Time) (domain.ViolationResult, error) {
	active, err := e.agreements.GetActive(ctx, "")
	if err != nil {
		return domain.NoAction(), err
	}

	result := CheckViolations(active, currentApp, now)
	switch result.Action {
	case domain.ActionViolation:
		a := result.Violated
		if err := e.agreements.UpdateStatus(ctx, a.ID, domain.StatusViolated, now); err != nil {
			return result, fmt.Errorf("failed to mark agreement %d violated: %w", a.ID, err)
		}
		e.logger.Info("agreement violated",
			zap.Int64("agreement_id", a.ID),
			zap.String("app", a.AppID))
		e.notifier.NotifyViolation(*a)

	case domain.ActionCompletion:
		a := result.Completed
		if err := e.agreements.UpdateStatus(ctx, a.ID, domain.StatusCompleted, now); err != nil {
			return result, fmt.Errorf("failed to mark agreement %d completed: %w", a.ID, err)
		}
		e.logger.Info("agreement completed",
			zap.Int64("agreement_id", a.ID),
			zap.String("app", a.AppID))
		e.notifier.NotifyCompletion(*a)
	}

	return result, nil
}
