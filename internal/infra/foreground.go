package infra

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/pactd/internal/domain"
)

// ProcessSampler implements domain.ForegroundSampler using gopsutil. It
// maps running process names to app identifiers via a lookup table and
// picks the candidate with the highest CPU share as the "foreground" app.
// This is a desktop approximation of the mobile usage-stats feed; on
// platforms with a real foreground signal a dedicated sampler replaces it.
type ProcessSampler struct {
	// processApps maps a lower-cased process name fragment to an app id.
	processApps map[string]string
}

// NewProcessSampler creates a sampler with the given process-name to
// app-identifier table. Keys are matched case-insensitively as substrings
// of process names.
func NewProcessSampler(processApps map[string]string) *ProcessSampler {
	table := make(map[string]string, len(processApps))
	for name, appID := range processApps {
		table[strings.ToLower(name)] = appID
	}
	return &ProcessSampler{processApps: table}
}

// DefaultProcessTable maps common desktop process names to the app
// identifiers used by the category seed tables.
func DefaultProcessTable() map[string]string {
	return map[string]string{
		"steam":    "com.valvesoftware.steam",
		"discord":  "com.discord",
		"spotify":  "com.spotify.music",
		"telegram": "org.telegram.messenger",
		"whatsapp": "com.whatsapp",
		"slack":    "com.slack.app",
		"obsidian": "md.obsidian",
	}
}

// CurrentApp returns the app identifier of the best foreground candidate,
// or empty when no known app is running.
func (s *ProcessSampler) CurrentApp(ctx context.Context) (string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return "", err
	}

	var bestApp string
	var bestCPU float64
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue // Process may have exited
		}
		appID, ok := s.lookup(name)
		if !ok {
			continue
		}
		cpu, err := p.CPUPercentWithContext(ctx)
		if err != nil {
			cpu = 0
		}
		if bestApp == "" || cpu > bestCPU {
			bestApp = appID
			bestCPU = cpu
		}
	}
	return bestApp, nil
}

func (s *ProcessSampler) lookup(processName string) (string, bool) {
	lower := strings.ToLower(processName)
	for fragment, appID := range s.processApps {
		if strings.Contains(lower, fragment) {
			return appID, true
		}
	}
	return "", false
}

// Ensure ProcessSampler implements domain.ForegroundSampler.
var _ domain.ForegroundSampler = (*ProcessSampler)(nil)
