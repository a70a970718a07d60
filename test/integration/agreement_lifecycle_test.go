//go:build integration

package integration

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/pactd/internal/domain"
	"github.com/eliteGoblin/pactd/internal/infra"
	"github.com/eliteGoblin/pactd/internal/policy"
	"github.com/eliteGoblin/pactd/internal/usecase"
)

// collectingNotifier records enforcement outcomes for assertions.
type collectingNotifier struct {
	violations  []domain.Agreement
	completions []domain.Agreement
}

func (n *collectingNotifier) NotifyViolation(a domain.Agreement) { n.violations = append(n.violations, a) }
func (n *collectingNotifier) NotifyCompletion(a domain.Agreement) { n.completions = append(n.completions, a) }
func (n *collectingNotifier) NotifyThresholdExceeded(appID string, used, threshold time.Duration) {
}
func (n *collectingNotifier) NotifyBlocked(appID string) {}

var _ = Describe("Agreement lifecycle", func() {
	var (
		ctx      context.Context
		store    *infra.EncryptedStore
		resolver *policy.Resolver
		notifier *collectingNotifier
		enforcer *usecase.Enforcer
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir := GinkgoT().TempDir()
		keys := infra.NewFileKeyProvider(dir)

		var err error
		store, err = infra.NewEncryptedStore(dir, keys)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { store.Close() })

		resolver = policy.NewResolver(store)
		Expect(resolver.Seed(ctx)).To(Succeed())

		notifier = &collectingNotifier{}
		enforcer = usecase.NewEnforcer(store, notifier, zap.NewNop())
	})

	It("negotiates, persists and violates an agreement end to end", func() {
		parser := infra.NewDurationParser()
		negotiator := usecase.NewNegotiator(parser, store, zap.NewNop())

		state := negotiator.ProcessMessage("5 minutes")
		Expect(state.Kind).To(Equal(domain.NegotiationProposed))

		state = negotiator.ProcessMessage("how about 10 minutes")
		Expect(state.Kind).To(Equal(domain.NegotiationNegotiating))
		Expect(state.Duration).To(Equal(10 * time.Minute))

		state = negotiator.ProcessMessage("okay, deal")
		Expect(state.Kind).To(Equal(domain.NegotiationAgreed))
		Expect(state.Duration).To(Equal(10 * time.Minute))

		cat, err := resolver.Categorize(ctx, "com.instagram.android")
		Expect(err).NotTo(HaveOccurred())

		id, err := negotiator.CreateAgreement(ctx, 10, "com.instagram.android", "Instagram", cat, "conv-1")
		Expect(err).NotTo(HaveOccurred())

		active, err := store.GetActive(ctx, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(active).To(HaveLen(1))
		Expect(active[0].ID).To(Equal(id))
		Expect(active[0].Duration).To(Equal(10 * time.Minute))

		// Still inside the budget: no action.
		result, err := enforcer.Check(ctx, "com.instagram.android", active[0].CreatedAt.Add(time.Minute))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Action).To(Equal(domain.ActionNone))

		// Past expiry, still in the app: violation, recorded once.
		result, err = enforcer.Check(ctx, "com.instagram.android", active[0].ExpiresAt.Add(time.Second))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Action).To(Equal(domain.ActionViolation))
		Expect(notifier.violations).To(HaveLen(1))

		remaining, err := store.GetActive(ctx, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(remaining).To(BeEmpty())

		recent, err := store.GetRecent(ctx, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(recent[0].Status).To(Equal(domain.StatusViolated))
	})

	It("completes an agreement when the user leaves the app in time", func() {
		created := time.Now().Add(-20 * time.Minute)
		_, err := store.Create(ctx, domain.Agreement{
			AppID:     "com.google.android.youtube",
			AppName:   "YouTube",
			Category:  domain.CategoryEntertainment,
			Duration:  10 * time.Minute,
			CreatedAt: created,
			ExpiresAt: created.Add(10 * time.Minute),
			Status:    domain.StatusActive,
		})
		Expect(err).NotTo(HaveOccurred())

		result, err := enforcer.Check(ctx, "", time.Now())
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Action).To(Equal(domain.ActionCompletion))
		Expect(notifier.completions).To(HaveLen(1))

		recent, err := store.GetRecent(ctx, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(recent[0].Status).To(Equal(domain.StatusCompleted))
	})

	It("rejects a negotiation without persisting anything", func() {
		parser := infra.NewDurationParser()
		negotiator := usecase.NewNegotiator(parser, store, zap.NewNop())

		negotiator.ProcessMessage("5 minutes")
		state := negotiator.ProcessMessage("no, just stop")
		Expect(state.Kind).To(Equal(domain.NegotiationRejected))

		active, err := store.GetActive(ctx, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(active).To(BeEmpty())
	})

	It("honors user category overrides over reseeded system defaults", func() {
		Expect(resolver.SetUserCategory(ctx, "com.instagram.android", domain.CategoryProductivity)).To(Succeed())
		Expect(resolver.Seed(ctx)).To(Succeed())

		cat, err := resolver.Categorize(ctx, "com.instagram.android")
		Expect(err).NotTo(HaveOccurred())
		Expect(cat).To(Equal(domain.CategoryProductivity))
	})
})
