// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"math"
	"time"
)

// Category classifies an app for default threshold selection.
type Category string

const (
	CategorySocialMedia   Category = "social_media"
	CategoryEntertainment Category = "entertainment"
	CategoryGames         Category = "games"
	CategoryProductivity  Category = "productivity"
	CategoryCommunication Category = "communication"
	CategoryAdult         Category = "adult"
	CategoryUnknown       Category = "unknown"
)

// NoLimit is the sentinel threshold meaning "no usage limit".
// It must never trigger a violation.
const NoLimit = time.Duration(math.MaxInt64)

// AgreementStatus tracks the lifecycle of an agreement.
// Transitions: ACTIVE -> COMPLETED or ACTIVE -> VIOLATED, exactly once.
type AgreementStatus string

const (
	StatusActive    AgreementStatus = "ACTIVE"
	StatusCompleted AgreementStatus = "COMPLETED"
	StatusViolated  AgreementStatus = "VIOLATED"
)

// Agreement is a committed time budget for an app, or for general device
// use when AppID is empty. ExpiresAt is always CreatedAt + Duration.
type Agreement struct {
	ID             int64
	AppID          string // empty = general device-use agreement
	AppName        string
	Category       Category
	Duration       time.Duration
	CreatedAt      time.Time
	ExpiresAt      time.Time
	Status         AgreementStatus
	ResolvedAt     time.Time // zero until COMPLETED/VIOLATED
	ConversationID string
}

// IsAppSpecific reports whether the agreement covers a single app rather
// than general device use.
func (a *Agreement) IsAppSpecific() bool {
	return a.AppID != ""
}

// MappingSource records who created a category mapping.
// A USER mapping for an app always wins over a SYSTEM one.
type MappingSource string

const (
	SourceSystem MappingSource = "SYSTEM"
	SourceUser   MappingSource = "USER"
)

// AppCategoryMapping assigns an app identifier to a category, optionally
// with a per-app threshold override and a blocked flag.
type AppCategoryMapping struct {
	AppID           string
	Category        Category
	CustomThreshold time.Duration
	HasThreshold    bool
	Blocked         bool
	Source          MappingSource
	UpdatedAt       time.Time
}

// Action classifies the outcome of an enforcement check.
type Action int

const (
	ActionNone Action = iota
	ActionViolation
	ActionCompletion
)

func (a Action) String() string {
	switch a {
	case ActionViolation:
		return "VIOLATION"
	case ActionCompletion:
		return "COMPLETION"
	default:
		return "NONE"
	}
}

// ViolationResult is a tagged result of an enforcement check. Exactly one
// of Violated/Completed is set, matching Action.
type ViolationResult struct {
	Action    Action
	Violated  *Agreement
	Completed *Agreement
}

// NoAction is the result when no agreement demands attention.
func NoAction() ViolationResult {
	return ViolationResult{Action: ActionNone}
}

// Violation builds a VIOLATION result for the given agreement.
func Violation(a *Agreement) ViolationResult {
	return ViolationResult{Action: ActionViolation, Violated: a}
}

// Completion builds a COMPLETION result for the given agreement.
func Completion(a *Agreement) ViolationResult {
	return ViolationResult{Action: ActionCompletion, Completed: a}
}

// UsageStat is one app's accumulated foreground time within a window.
type UsageStat struct {
	AppID    string
	AppName  string
	Category Category
	Total    time.Duration
}

// Snapshot aggregates the state the negotiation layer needs to open a
// conversation: what the user is doing now, how much they have used, and
// how past agreements went. Consumed by the prompt builder, which is
// outside this module.
type Snapshot struct {
	TakenAt          time.Time
	CurrentAppID     string
	CurrentAppName   string
	CurrentCategory  Category
	Threshold        time.Duration
	UsageToday       []UsageStat
	RecentAgreements []Agreement // newest first
}
