// Package main is the CLI entry point for pactd.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/pactd/internal/daemon"
	"github.com/eliteGoblin/pactd/internal/domain"
	"github.com/eliteGoblin/pactd/internal/infra"
	"github.com/eliteGoblin/pactd/internal/policy"
	"github.com/eliteGoblin/pactd/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

var dataDir string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pactd",
	Short: "Screen-time agreement daemon",
	Long: `pactd monitors which application is in the foreground, negotiates
time-boxed usage agreements, and enforces them: overstaying an agreement
is a violation, stopping in time completes it.`,
	Version: Version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitor daemon",
	Long: `Runs the monitor loop: samples the foreground app, accumulates usage,
fires a negotiation trigger when usage crosses the resolved threshold,
and periodically checks active agreements for violations/completions.`,
	RunE: runMonitor,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a one-shot enforcement pass",
	Long:  `Samples the foreground app once and evaluates all active agreements.`,
	RunE:  runCheck,
}

var negotiateCmd = &cobra.Command{
	Use:   "negotiate [app-id]",
	Short: "Negotiate a usage agreement interactively",
	Long: `Opens an interactive negotiation on stdin. Propose a duration
("20 minutes", "half an hour"), counter-offer, or walk away; the agreement
is stored once both sides agree. With no app id the agreement covers
general device use.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runNegotiate,
}

var agreementsCmd = &cobra.Command{
	Use:   "agreements",
	Short: "List recent agreements",
	Long:  `Shows the most recent agreements, newest first, with status and progress.`,
	RunE:  runAgreements,
}

var categoryCmd = &cobra.Command{
	Use:   "category <app-id> [category]",
	Short: "Show or override an app's category",
	Long: `With one argument, prints the app's resolved category and threshold.
With two, writes a user override that always wins over system defaults.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCategory,
}

var limitCmd = &cobra.Command{
	Use:   "limit <app-id> <minutes|none|clear>",
	Short: "Set, remove the limit of, or clear a per-app threshold",
	Long: `Sets a custom usage threshold for an app. "none" means unlimited use;
"clear" removes the override so the category default applies again.`,
	Args: cobra.ExactArgs(2),
	RunE: runLimit,
}

var blockCmd = &cobra.Command{
	Use:   "block <app-id>",
	Short: "Block an app outright",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setBlocked(args[0], true) },
}

var unblockCmd = &cobra.Command{
	Use:   "unblock <app-id>",
	Short: "Unblock an app",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setBlocked(args[0], false) },
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all agreements",
	Long:  `Explicit data-reset: removes every stored agreement. Mappings are kept.`,
	RunE:  runReset,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pactd %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
	},
}

func init() {
	home, _ := os.UserHomeDir()
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir",
		filepath.Join(home, ".pactd"), "Directory for the encrypted store and keys")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(negotiateCmd)
	rootCmd.AddCommand(agreementsCmd)
	rootCmd.AddCommand(categoryCmd)
	rootCmd.AddCommand(limitCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(unblockCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(versionCmd)
}

// openStore wires the key provider and encrypted store.
func openStore() (*infra.EncryptedStore, error) {
	keys := infra.NewFileKeyProvider(dataDir)
	store, err := infra.NewEncryptedStore(dataDir, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	logger := createLogger()
	defer func() { _ = logger.Sync() }()

	keys := infra.NewFileKeyProvider(dataDir)
	store, err := infra.NewEncryptedStore(dataDir, keys)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	resolver := policy.NewResolver(store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := resolver.Seed(ctx); err != nil {
		return fmt.Errorf("failed to seed category mappings: %w", err)
	}

	blocklist := infra.NewEncryptedBlocklist(dataDir, keys, policy.DefaultBlocklist, logger)
	notifier := infra.NewLogNotifier(logger)
	enforcer := usecase.NewEnforcer(store, notifier, logger)
	sampler := infra.NewProcessSampler(infra.DefaultProcessTable())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	monitor := daemon.NewMonitor(
		daemon.DefaultMonitorConfig(),
		sampler,
		resolver,
		blocklist,
		enforcer,
		notifier,
		logger,
	)
	return monitor.Run(ctx)
}

func runCheck(cmd *cobra.Command, args []string) error {
	logger := zap.NewNop()
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sampler := infra.NewProcessSampler(infra.DefaultProcessTable())
	ctx := context.Background()
	currentApp, err := sampler.CurrentApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to sample foreground app: %w", err)
	}

	notifier := infra.NewLogNotifier(logger)
	enforcer := usecase.NewEnforcer(store, notifier, logger)
	result, err := enforcer.Check(ctx, currentApp, time.Now())
	if err != nil {
		return fmt.Errorf("enforcement check failed: %w", err)
	}

	switch result.Action {
	case domain.ActionViolation:
		fmt.Printf("VIOLATION: %s overstayed its %s agreement\n",
			displayName(result.Violated), result.Violated.Duration)
	case domain.ActionCompletion:
		fmt.Printf("COMPLETION: %s agreement honored\n", displayName(result.Completed))
	default:
		fmt.Println("No action: all agreements within budget.")
	}
	return nil
}

func runNegotiate(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	resolver := policy.NewResolver(store)
	ctx := context.Background()

	appID := ""
	if len(args) == 1 {
		appID = args[0]
	}

	assembler := usecase.NewContextAssembler(resolver, store, nil)
	snap, err := assembler.Assemble(ctx, appID, "")
	if err != nil {
		return fmt.Errorf("failed to assemble context: %w", err)
	}

	if appID != "" {
		fmt.Printf("Negotiating for %s (%s, threshold %s).\n",
			appID, snap.CurrentCategory, formatThreshold(snap.Threshold))
	} else {
		fmt.Println("Negotiating a general device-use agreement.")
	}
	fmt.Println("How long do you want?")

	negotiator := usecase.NewNegotiator(infra.NewDurationParser(), store, zap.NewNop())
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		state := negotiator.ProcessMessage(scanner.Text())
		switch state.Kind {
		case domain.NegotiationProposed:
			fmt.Printf("Proposed: %s. Accept, counter, or walk away.\n", state.Duration)
		case domain.NegotiationNegotiating:
			fmt.Printf("Counter-offer: %s. Round %d of %d.\n",
				state.Duration, negotiator.Round(), usecase.MaxNegotiationRounds)
		case domain.NegotiationAgreed:
			conversationID := fmt.Sprintf("cli-%d", time.Now().Unix())
			minutes := int(state.Duration / time.Minute)
			id, err := negotiator.CreateAgreement(ctx, minutes, appID, "",
				snap.CurrentCategory, conversationID)
			if err != nil {
				return fmt.Errorf("failed to store agreement: %w", err)
			}
			fmt.Printf("Agreement #%d stored: %s starting now.\n", id, state.Duration)
			return nil
		case domain.NegotiationRejected:
			fmt.Println("Negotiation ended, nothing stored.")
			return nil
		default:
			fmt.Println(`Tell me a duration, like "20 minutes".`)
		}
	}
	return scanner.Err()
}

func displayName(a *domain.Agreement) string {
	if a.AppName != "" {
		return a.AppName
	}
	if a.AppID != "" {
		return a.AppID
	}
	return "device"
}

func runAgreements(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	recent, err := store.GetRecent(context.Background(), 20)
	if err != nil {
		return fmt.Errorf("failed to load agreements: %w", err)
	}

	if len(recent) == 0 {
		fmt.Println("No agreements yet.")
		return nil
	}

	now := time.Now()
	fmt.Println("\n=== Agreements (newest first) ===")
	for _, a := range recent {
		fmt.Printf("\n[%d] %s (%s)\n", a.ID, displayName(&a), a.Category)
		fmt.Printf("  Agreed: %s, created %s\n", a.Duration, a.CreatedAt.Format(time.RFC822))
		fmt.Printf("  Status: %s\n", a.Status)
		if a.Status == domain.StatusActive {
			fmt.Printf("  Progress: %.0f%%, remaining %s\n",
				usecase.ProgressPercentage(&a, now),
				usecase.TimeRemaining(&a, now).Round(time.Second))
		}
	}
	fmt.Println("\n=================================")
	return nil
}

func runCategory(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	resolver := policy.NewResolver(store)
	ctx := context.Background()
	appID := args[0]

	if len(args) == 2 {
		if err := resolver.SetUserCategory(ctx, appID, domain.Category(args[1])); err != nil {
			return fmt.Errorf("failed to set category: %w", err)
		}
		fmt.Printf("%s -> %s (user override)\n", appID, args[1])
		return nil
	}

	cat, err := resolver.Categorize(ctx, appID)
	if err != nil {
		return err
	}
	threshold, err := resolver.ResolveThreshold(ctx, appID)
	if err != nil {
		return err
	}
	fmt.Printf("%s: category=%s threshold=%s\n", appID, cat, formatThreshold(threshold))
	return nil
}

func formatThreshold(d time.Duration) string {
	if d == domain.NoLimit {
		return "no limit"
	}
	return d.String()
}

func runLimit(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	resolver := policy.NewResolver(store)
	ctx := context.Background()
	appID := args[0]

	switch args[1] {
	case "clear":
		if err := resolver.SetCustomThreshold(ctx, appID, 0, false); err != nil {
			return fmt.Errorf("failed to clear threshold: %w", err)
		}
		fmt.Printf("%s: custom threshold cleared\n", appID)
	case "none":
		if err := resolver.SetCustomThreshold(ctx, appID, domain.NoLimit, true); err != nil {
			return fmt.Errorf("failed to set threshold: %w", err)
		}
		fmt.Printf("%s: no limit\n", appID)
	default:
		minutes, err := strconv.Atoi(args[1])
		if err != nil || minutes <= 0 {
			return fmt.Errorf("invalid minutes value %q", args[1])
		}
		d := time.Duration(minutes) * time.Minute
		if err := resolver.SetCustomThreshold(ctx, appID, d, true); err != nil {
			return fmt.Errorf("failed to set threshold: %w", err)
		}
		fmt.Printf("%s: limit %s\n", appID, d)
	}
	return nil
}

func setBlocked(appID string, blocked bool) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	resolver := policy.NewResolver(store)
	if err := resolver.SetBlocked(context.Background(), appID, blocked); err != nil {
		return fmt.Errorf("failed to update block flag: %w", err)
	}
	if blocked {
		fmt.Printf("%s: blocked\n", appID)
	} else {
		fmt.Printf("%s: unblocked\n", appID)
	}
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Reset(context.Background()); err != nil {
		return fmt.Errorf("failed to reset agreements: %w", err)
	}
	fmt.Println("All agreements deleted.")
	return nil
}

func createLogger() *zap.Logger {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		logger, _ := zap.NewProduction()
		return logger
	}
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{filepath.Join(dataDir, "pactd.log"), "stderr"}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}
