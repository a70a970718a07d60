// Package daemon implements the usage monitor loop.
package daemon

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/pactd/internal/domain"
	"github.com/eliteGoblin/pactd/internal/policy"
	"github.com/eliteGoblin/pactd/internal/usecase"
)

// MonitorConfig holds monitor loop configuration.
type MonitorConfig struct {
	SampleInterval      time.Duration // How often to sample the foreground app
	EnforcementInterval time.Duration // How often to run an enforcement pass
}

// DefaultMonitorConfig returns default monitor configuration.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		SampleInterval:      5 * time.Second,
		EnforcementInterval: 30 * time.Second,
	}
}

// Monitor samples the foreground app, accumulates per-app usage, fires a
// threshold trigger when usage crosses the resolved limit (at most once
// per app per session), and runs periodic enforcement passes.
type Monitor struct {
	config    MonitorConfig
	sampler   domain.ForegroundSampler
	resolver  *policy.Resolver
	blocklist domain.Blocklist
	enforcer  *usecase.Enforcer
	notifier  domain.Notifier
	logger    *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	usage     map[string]time.Duration
	triggered map[string]bool
	usageDay  time.Time
}

// NewMonitor creates a monitor daemon.
func NewMonitor(
	config MonitorConfig,
	sampler domain.ForegroundSampler,
	resolver *policy.Resolver,
	blocklist domain.Blocklist,
	enforcer *usecase.Enforcer,
	notifier domain.Notifier,
	logger *zap.Logger,
) *Monitor {
	return &Monitor{
		config:    config,
		sampler:   sampler,
		resolver:  resolver,
		blocklist: blocklist,
		enforcer:  enforcer,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
		usage:     make(map[string]time.Duration),
		triggered: make(map[string]bool),
	}
}

// Run starts the monitor loop. This blocks until context is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started",
		zap.Duration("sample_interval", m.config.SampleInterval),
		zap.Duration("enforcement_interval", m.config.EnforcementInterval))

	sampleTicker := time.NewTicker(m.config.SampleInterval)
	enforceTicker := time.NewTicker(m.config.EnforcementInterval)
	defer func() {
		sampleTicker.Stop()
		enforceTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping")
			return ctx.Err()

		case <-sampleTicker.C:
			m.sample(ctx)

		case <-enforceTicker.C:
			m.runEnforcement(ctx)
		}
	}
}

// sample takes one foreground reading, credits usage, and checks the
// blocklist and threshold triggers.
func (m *Monitor) sample(ctx context.Context) {
	appID, err := m.sampler.CurrentApp(ctx)
	if err != nil {
		m.logger.Warn("foreground sample failed", zap.Error(err))
		return
	}
	if appID == "" {
		return // home screen / idle
	}

	blocked, err := m.blocklist.IsMember(ctx, appID)
	if err == nil && !blocked {
		blocked, err = m.resolver.IsBlocked(ctx, appID)
	}
	if err != nil {
		m.logger.Warn("block check failed", zap.Error(err))
	} else if blocked {
		m.notifier.NotifyBlocked(appID)
		return
	}

	used := m.credit(appID, m.config.SampleInterval)

	threshold, err := m.resolver.ResolveThreshold(ctx, appID)
	if err != nil {
		m.logger.Warn("threshold resolution failed",
			zap.String("app", appID),
			zap.Error(err))
		return
	}
	if threshold == domain.NoLimit {
		return
	}

	if used >= threshold && m.markTriggered(appID) {
		m.logger.Info("usage threshold exceeded",
			zap.String("app", appID),
			zap.Duration("used", used),
			zap.Duration("threshold", threshold))
		m.notifier.NotifyThresholdExceeded(appID, used, threshold)
	}
}

// credit adds one sample interval to the app's usage, resetting the
// accumulator at local midnight.
func (m *Monitor) credit(appID string, d time.Duration) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	nowT := m.now()
	year, month, dayOfMonth := nowT.Date()
	day := time.Date(year, month, dayOfMonth, 0, 0, 0, 0, nowT.Location())
	if !day.Equal(m.usageDay) {
		m.usage = make(map[string]time.Duration)
		m.triggered = make(map[string]bool)
		m.usageDay = day
	}

	m.usage[appID] += d
	return m.usage[appID]
}

// markTriggered records the trigger and reports whether it was the first
// for this app today.
func (m *Monitor) markTriggered(appID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.triggered[appID] {
		return false
	}
	m.triggered[appID] = true
	return true
}

// UsageToday returns accumulated usage stats, largest first. Implements
// usecase.UsageSource for the context assembler.
func (m *Monitor) UsageToday() []domain.UsageStat {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make([]domain.UsageStat, 0, len(m.usage))
	for appID, total := range m.usage {
		stats = append(stats, domain.UsageStat{AppID: appID, Total: total})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Total > stats[j].Total })
	return stats
}

// runEnforcement executes one enforcement pass against the current
// foreground app.
func (m *Monitor) runEnforcement(ctx context.Context) {
	appID, err := m.sampler.CurrentApp(ctx)
	if err != nil {
		m.logger.Warn("foreground sample failed", zap.Error(err))
		return
	}

	result, err := m.enforcer.Check(ctx, appID, m.now())
	if err != nil {
		m.logger.Error("enforcement failed", zap.Error(err))
		return
	}
	if result.Action != domain.ActionNone {
		m.logger.Debug("enforcement action", zap.String("action", result.Action.String()))
	}
}

// Ensure Monitor satisfies the snapshot usage contract.
var _ usecase.UsageSource = (*Monitor)(nil)
