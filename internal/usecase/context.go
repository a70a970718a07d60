package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/eliteGoblin/pactd/internal/domain"
	"github.com/eliteGoblin/pactd/internal/policy"
)

// recentAgreementCount bounds how much history a snapshot carries.
const recentAgreementCount = 10

// UsageSource supplies accumulated per-app foreground time for the
// current day. Implemented by the monitor daemon's usage tracker.
type UsageSource interface {
	UsageToday() []domain.UsageStat
}

// ContextAssembler aggregates usage statistics, the current app's
// category and threshold, and recent agreement history into a Snapshot
// for the negotiation layer's prompt builder.
type ContextAssembler struct {
	resolver   *policy.Resolver
	agreements domain.AgreementRepository
	usage      UsageSource
	now        func() time.Time
}

// NewContextAssembler creates a snapshot builder.
func NewContextAssembler(resolver *policy.Resolver, agreements domain.AgreementRepository, usage UsageSource) *ContextAssembler {
	return &ContextAssembler{
		resolver:   resolver,
		agreements: agreements,
		usage:      usage,
		now:        time.Now,
	}
}

// Assemble builds a snapshot for the given foreground app. appName is a
// display name supplied by the caller; appID may be empty when the user
// is on the home screen.
func (c *ContextAssembler) Assemble(ctx context.Context, appID, appName string) (domain.Snapshot, error) {
	snap := domain.Snapshot{
		TakenAt:        c.now(),
		CurrentAppID:   appID,
		CurrentAppName: appName,
	}

	if appID != "" {
		cat, err := c.resolver.Categorize(ctx, appID)
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("failed to categorize %q: %w", appID, err)
		}
		threshold, err := c.resolver.ResolveThreshold(ctx, appID)
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("failed to resolve threshold: %w", err)
		}
		snap.CurrentCategory = cat
		snap.Threshold = threshold
	} else {
		snap.CurrentCategory = domain.CategoryUnknown
	}

	if c.usage != nil {
		snap.UsageToday = c.usage.UsageToday()
	}

	recent, err := c.agreements.GetRecent(ctx, recentAgreementCount)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to load agreement history: %w", err)
	}
	snap.RecentAgreements = recent

	return snap, nil
}
