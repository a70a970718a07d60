package usecase

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/pactd/internal/domain"
)

// MaxNegotiationRounds caps how many user messages a negotiation may
// consume before a duration proposal is force-accepted.
const MaxNegotiationRounds = 3

var (
	// rejectionRe matches a hedge token later followed by a termination
	// token ("no, just stop", "fine I'm done"), case-insensitive.
	rejectionRe = regexp.MustCompile(`(?i)\b(no|fine|okay|alright)\b.*\b(stop|quit|done|close)\b`)

	// affirmativeRe matches a whole-word acceptance token.
	affirmativeRe = regexp.MustCompile(`(?i)\b(okay|ok|yes|sure|fine|deal|alright|agreed|agree|accept)\b`)
)

// Session is the explicit negotiation state threaded through Step calls.
// Callers own one Session per conversation; the zero value is not valid,
// use NewSession.
type Session struct {
	State domain.NegotiationState
	Round int
}

// NewSession returns a fresh session in the Initial state.
func NewSession() Session {
	return Session{State: domain.InitialState()}
}

// Step consumes one user message and returns the advanced session. The
// round counter increments on every call regardless of the branch taken.
// Terminal states absorb all further messages. Unparseable or ambiguous
// text is a normal no-transition outcome, never an error.
func Step(s Session, message string, parser domain.DurationParser) Session {
	s.Round++

	if s.State.Terminal() {
		return s
	}

	if rejectionRe.MatchString(message) {
		s.State = domain.NegotiationState{Kind: domain.NegotiationRejected}
		return s
	}

	proposed, hasDuration := parser.ParseDuration(message)
	affirmative := affirmativeRe.MatchString(message)

	switch s.State.Kind {
	case domain.NegotiationInitial:
		if hasDuration {
			s.State = domain.NegotiationState{Kind: domain.NegotiationProposed, Duration: proposed}
		}
		// Affirmative without a duration means nothing yet: stay Initial.

	case domain.NegotiationProposed:
		current := s.State.Duration
		switch {
		case hasDuration && proposed != current:
			s.State = domain.NegotiationState{Kind: domain.NegotiationNegotiating, Duration: proposed}
		case hasDuration: // re-stating the offer accepts it
			s.State = domain.NegotiationState{Kind: domain.NegotiationAgreed, Duration: current}
		case affirmative:
			s.State = domain.NegotiationState{Kind: domain.NegotiationAgreed, Duration: current}
		}

	case domain.NegotiationNegotiating:
		current := s.State.Duration
		switch {
		case hasDuration && proposed != current:
			if s.Round >= MaxNegotiationRounds {
				// Out of rounds: the final proposal stands.
				s.State = domain.NegotiationState{Kind: domain.NegotiationAgreed, Duration: proposed}
			} else {
				s.State = domain.NegotiationState{Kind: domain.NegotiationNegotiating, Duration: proposed}
			}
		case hasDuration:
			s.State = domain.NegotiationState{Kind: domain.NegotiationAgreed, Duration: current}
		case affirmative:
			s.State = domain.NegotiationState{Kind: domain.NegotiationAgreed, Duration: current}
		}
	}

	return s
}

// Negotiator drives one conversation's negotiation and persists the
// resulting agreement. It is not safe for concurrent use; each
// conversation owns its own Negotiator.
type Negotiator struct {
	session    Session
	parser     domain.DurationParser
	agreements domain.AgreementRepository
	now        func() time.Time
	logger     *zap.Logger
}

// NewNegotiator creates a negotiator in the Initial state.
func NewNegotiator(parser domain.DurationParser, agreements domain.AgreementRepository, logger *zap.Logger) *Negotiator {
	return &Negotiator{
		session:    NewSession(),
		parser:     parser,
		agreements: agreements,
		now:        time.Now,
		logger:     logger,
	}
}

// ProcessMessage advances the state machine by one user message and
// returns the new state.
func (n *Negotiator) ProcessMessage(message string) domain.NegotiationState {
	n.session = Step(n.session, message, n.parser)
	n.logger.Debug("negotiation advanced",
		zap.String("state", n.session.State.Kind.String()),
		zap.Int("round", n.session.Round))
	return n.session.State
}

// State returns the current negotiation state.
func (n *Negotiator) State() domain.NegotiationState {
	return n.session.State
}

// Round returns the number of messages consumed so far.
func (n *Negotiator) Round() int {
	return n.session.Round
}

// Reset returns the negotiator to Initial with a zero round counter.
// Callers must invoke it when a new negotiation session starts.
func (n *Negotiator) Reset() {
	n.session = NewSession()
}

// CreateAgreement persists a new ACTIVE agreement for the agreed duration
// and returns its identifier. appID is empty for a general device-use
// agreement.
func (n *Negotiator) CreateAgreement(ctx context.Context, durationMinutes int, appID, appName string, category domain.Category, conversationID string) (int64, error) {
	duration := time.Duration(durationMinutes) * time.Minute
	created := n.now()

	id, err := n.agreements.Create(ctx, domain.Agreement{
		AppID:          appID,
		AppName:        appName,
		Category:       category,
		Duration:       duration,
		CreatedAt:      created,
		ExpiresAt:      created.Add(duration),
		Status:         domain.StatusActive,
		ConversationID: conversationID,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create agreement: %w", err)
	}

	n.logger.Info("agreement created",
		zap.Int64("agreement_id", id),
		zap.String("app", appID),
		zap.Duration("duration", duration))
	return id, nil
}
