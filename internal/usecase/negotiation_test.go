package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/pactd/internal/domain"
)

// mapParser is a test double for domain.DurationParser that recognizes
// exact messages.
type mapParser struct {
	durations map[string]time.Duration
}

func (p *mapParser) ParseDuration(text string) (time.Duration, bool) {
	d, ok := p.durations[text]
	return d, ok
}

// mockAgreementRepo implements domain.AgreementRepository for testing
type mockAgreementRepo struct {
	created   []domain.Agreement
	createErr error
	nextID    int64

	active    []domain.Agreement
	activeErr error

	statusUpdates map[int64]domain.AgreementStatus
	updateErr     error
}

func newMockAgreementRepo() *mockAgreementRepo {
	return &mockAgreementRepo{nextID: 1, statusUpdates: make(map[int64]domain.AgreementStatus)}
}

func (m *mockAgreementRepo) Create(ctx context.Context, a domain.Agreement) (int64, error) {
	if m.createErr != nil {
		return 0, m.createErr
	}
	id := m.nextID
	m.nextID++
	a.ID = id
	m.created = append(m.created, a)
	return id, nil
}

func (m *mockAgreementRepo) GetActive(ctx context.Context, appID string) ([]domain.Agreement, error) {
	if m.activeErr != nil {
		return nil, m.activeErr
	}
	return m.active, nil
}

func (m *mockAgreementRepo) GetRecent(ctx context.Context, limit int) ([]domain.Agreement, error) {
	return m.created, nil
}

func (m *mockAgreementRepo) UpdateStatus(ctx context.Context, id int64, status domain.AgreementStatus, resolvedAt time.Time) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.statusUpdates[id] = status
	return nil
}

func (m *mockAgreementRepo) Reset(ctx context.Context) error {
	m.created = nil
	return nil
}

func testParser() *mapParser {
	return &mapParser{durations: map[string]time.Duration{
		"5 minutes":            5 * time.Minute,
		"how about 10 minutes": 10 * time.Minute,
		"15 minutes":           15 * time.Minute,
		"20 minutes":           20 * time.Minute,
	}}
}

// TestStep_InitialProposal verifies the Initial -> ProposedTime transition
func TestStep_InitialProposal(t *testing.T) {
	s := Step(NewSession(), "5 minutes", testParser())

	assert.Equal(t, domain.NegotiationProposed, s.State.Kind)
	assert.Equal(t, 5*time.Minute, s.State.Duration)
	assert.Equal(t, 1, s.Round)
}

// TestStep_InitialAffirmativeStaysPut verifies affirmatives without a
// duration do not advance an empty negotiation
func TestStep_InitialAffirmativeStaysPut(t *testing.T) {
	s := Step(NewSession(), "okay", testParser())

	assert.Equal(t, domain.NegotiationInitial, s.State.Kind)
	assert.Equal(t, 1, s.Round)
}

// TestStep_ProposedAccepted verifies plain acceptance of a proposal
func TestStep_ProposedAccepted(t *testing.T) {
	s := Step(NewSession(), "5 minutes", testParser())
	s = Step(s, "okay", testParser())

	assert.Equal(t, domain.NegotiationAgreed, s.State.Kind)
	assert.Equal(t, 5*time.Minute, s.State.Duration)
}

// TestStep_ProposedCounterOffer verifies a different duration moves to Negotiating
func TestStep_ProposedCounterOffer(t *testing.T) {
	s := Step(NewSession(), "5 minutes", testParser())
	s = Step(s, "how about 10 minutes", testParser())

	assert.Equal(t, domain.NegotiationNegotiating, s.State.Kind)
	assert.Equal(t, 10*time.Minute, s.State.Duration)
}

// TestStep_ProposedSameDurationAgrees verifies echoing the current offer accepts it
func TestStep_ProposedSameDurationAgrees(t *testing.T) {
	s := Step(NewSession(), "5 minutes", testParser())
	s = Step(s, "5 minutes", testParser())

	assert.Equal(t, domain.NegotiationAgreed, s.State.Kind)
	assert.Equal(t, 5*time.Minute, s.State.Duration)
}

// TestStep_UnparseableLeavesStateUnchanged verifies malformed input is a no-op
func TestStep_UnparseableLeavesStateUnchanged(t *testing.T) {
	s := Step(NewSession(), "5 minutes", testParser())
	s = Step(s, "what do you mean by that", testParser())

	assert.Equal(t, domain.NegotiationProposed, s.State.Kind)
	assert.Equal(t, 5*time.Minute, s.State.Duration)
	assert.Equal(t, 2, s.Round)
}

// TestStep_RoundCounterAlwaysIncrements verifies one increment per call
// regardless of the branch taken
func TestStep_RoundCounterAlwaysIncrements(t *testing.T) {
	parser := testParser()
	s := NewSession()
	messages := []string{"hello", "okay", "5 minutes", "garbage", "how about 10 minutes"}

	for i, msg := range messages {
		s = Step(s, msg, parser)
		assert.Equal(t, i+1, s.Round, "after message %q", msg)
	}
}

// TestStep_MaxRoundsForcesAgreement verifies that once the round cap is
// reached in Negotiating, any further proposal is force-accepted
func TestStep_MaxRoundsForcesAgreement(t *testing.T) {
	parser := testParser()
	s := NewSession()
	s = Step(s, "5 minutes", parser)            // round 1: ProposedTime(5m)
	s = Step(s, "how about 10 minutes", parser) // round 2: Negotiating(10m)
	require.Equal(t, domain.NegotiationNegotiating, s.State.Kind)

	s = Step(s, "15 minutes", parser) // round 3 = max: forced agreement
	assert.Equal(t, domain.NegotiationAgreed, s.State.Kind)
	assert.Equal(t, 15*time.Minute, s.State.Duration)
}

// TestStep_NegotiatingBelowCapKeepsCountering verifies counter-proposals
// below the round cap stay in Negotiating
func TestStep_NegotiatingBelowCapKeepsCountering(t *testing.T) {
	parser := testParser()
	s := Session{State: domain.NegotiationState{Kind: domain.NegotiationNegotiating, Duration: 5 * time.Minute}, Round: 1}

	s = Step(s, "how about 10 minutes", parser) // round 2 < max
	assert.Equal(t, domain.NegotiationNegotiating, s.State.Kind)
	assert.Equal(t, 10*time.Minute, s.State.Duration)
}

// TestStep_RejectionFromAnyState verifies rejection patterns terminate the
// negotiation from every non-terminal state
func TestStep_RejectionFromAnyState(t *testing.T) {
	parser := testParser()
	states := []Session{
		NewSession(),
		{State: domain.NegotiationState{Kind: domain.NegotiationProposed, Duration: 5 * time.Minute}},
		{State: domain.NegotiationState{Kind: domain.NegotiationNegotiating, Duration: 5 * time.Minute}},
	}

	for _, start := range states {
		s := Step(start, "no, just stop it", parser)
		assert.Equal(t, domain.NegotiationRejected, s.State.Kind,
			"from state %s", start.State.Kind)
	}
}

// TestStep_RejectionPatterns verifies hedge+termination token combinations
func TestStep_RejectionPatterns(t *testing.T) {
	parser := &mapParser{durations: map[string]time.Duration{}}
	rejections := []string{
		"no stop",
		"No, please STOP this",
		"fine, I'm done",
		"okay let's close this",
		"alright just quit",
	}
	for _, msg := range rejections {
		s := Step(NewSession(), msg, parser)
		assert.Equal(t, domain.NegotiationRejected, s.State.Kind, "message %q", msg)
	}

	// Termination token without a preceding hedge is not a rejection.
	s := Step(NewSession(), "stop", parser)
	assert.Equal(t, domain.NegotiationInitial, s.State.Kind)
}

// TestStep_TerminalStatesAbsorb verifies no transitions out of terminal
// states, while the round counter still increments per call
func TestStep_TerminalStatesAbsorb(t *testing.T) {
	parser := testParser()

	rejected := Session{State: domain.NegotiationState{Kind: domain.NegotiationRejected}, Round: 2}
	s := Step(rejected, "5 minutes", parser)
	assert.Equal(t, domain.NegotiationRejected, s.State.Kind)
	assert.Equal(t, 3, s.Round)

	agreed := Session{State: domain.NegotiationState{Kind: domain.NegotiationAgreed, Duration: 5 * time.Minute}, Round: 3}
	s = Step(agreed, "how about 10 minutes", parser)
	assert.Equal(t, domain.NegotiationAgreed, s.State.Kind)
	assert.Equal(t, 5*time.Minute, s.State.Duration)
	assert.Equal(t, 4, s.Round)
}

// TestNegotiator_FullFlow verifies the wrapper drives a conversation to
// agreement and persists it
func TestNegotiator_FullFlow(t *testing.T) {
	repo := newMockAgreementRepo()
	n := NewNegotiator(testParser(), repo, zap.NewNop())

	state := n.ProcessMessage("5 minutes")
	assert.Equal(t, domain.NegotiationProposed, state.Kind)

	state = n.ProcessMessage("okay")
	require.Equal(t, domain.NegotiationAgreed, state.Kind)
	require.Equal(t, 5*time.Minute, state.Duration)

	id, err := n.CreateAgreement(context.Background(), 5, "com.instagram.android", "Instagram",
		domain.CategorySocialMedia, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	require.Len(t, repo.created, 1)
	a := repo.created[0]
	assert.Equal(t, 5*time.Minute, a.Duration)
	assert.Equal(t, a.CreatedAt.Add(a.Duration), a.ExpiresAt)
	assert.Equal(t, domain.StatusActive, a.Status)
	assert.Equal(t, "conv-1", a.ConversationID)
}

// TestNegotiator_Reset verifies reset returns to Initial with round 0
func TestNegotiator_Reset(t *testing.T) {
	n := NewNegotiator(testParser(), newMockAgreementRepo(), zap.NewNop())

	n.ProcessMessage("5 minutes")
	n.ProcessMessage("how about 10 minutes")
	require.Equal(t, 2, n.Round())

	n.Reset()
	assert.Equal(t, domain.NegotiationInitial, n.State().Kind)
	assert.Equal(t, 0, n.Round())
}

// TestNegotiator_CreateAgreementPropagatesStorageError verifies storage
// failures surface to the caller
func TestNegotiator_CreateAgreementPropagatesStorageError(t *testing.T) {
	repo := newMockAgreementRepo()
	repo.createErr = errors.New("disk full")
	n := NewNegotiator(testParser(), repo, zap.NewNop())

	_, err := n.CreateAgreement(context.Background(), 5, "", "", domain.CategoryUnknown, "conv-1")
	assert.Error(t, err)
}
