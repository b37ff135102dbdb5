// Package ledger implements the append-only audit ledger attached to every
// catalogue resource envelope, and the pure derivation of an audit verdict
// from it. Entries record facts about lifecycle actions; they are never
// mutated or removed once appended.
package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"
)

// EntryType classifies what kind of lifecycle action produced a ledger entry.
type EntryType string

const (
	// TypeOnboard marks entries produced by the onboarding flow
	// (registration, approval, rejection).
	TypeOnboard EntryType = "ONBOARD"

	// TypeUpdate marks entries produced by mutations of an already
	// onboarded resource (edits, activation, suspension).
	TypeUpdate EntryType = "UPDATE"

	// TypeAudit marks entries produced by an auditor's verdict.
	TypeAudit EntryType = "AUDIT"

	// TypeDraft marks entries produced while a resource is still a draft.
	TypeDraft EntryType = "DRAFT"

	// TypeMove marks entries produced when a resource moves between
	// catalogues or providers.
	TypeMove EntryType = "MOVE"
)

// ActionType qualifies an EntryType with the concrete action taken.
type ActionType string

const (
	ActionRegistered  ActionType = "registered"
	ActionApproved    ActionType = "approved"
	ActionRejected    ActionType = "rejected"
	ActionUpdated     ActionType = "updated"
	ActionActivated   ActionType = "activated"
	ActionDeactivated ActionType = "deactivated"
	ActionSuspended   ActionType = "suspended"
	ActionUnsuspended ActionType = "unsuspended"
	ActionValid       ActionType = "valid"
	ActionInvalid     ActionType = "invalid"
	ActionCreated     ActionType = "created"
	ActionMoved       ActionType = "moved"
)

// registeredPairs enumerates every (type, actionType) combination a ledger
// entry may carry. Construction of an entry with any other combination is a
// programmer error and fails fast.
var registeredPairs = map[EntryType]map[ActionType]bool{
	TypeOnboard: {
		ActionRegistered: true,
		ActionApproved:   true,
		ActionRejected:   true,
	},
	TypeUpdate: {
		ActionUpdated:     true,
		ActionActivated:   true,
		ActionDeactivated: true,
		ActionSuspended:   true,
		ActionUnsuspended: true,
	},
	TypeAudit: {
		ActionValid:   true,
		ActionInvalid: true,
	},
	TypeDraft: {
		ActionCreated: true,
	},
	TypeMove: {
		ActionMoved: true,
	},
}

// Common sentinel errors for ledger entry construction.
var (
	// ErrUnregisteredPair is returned when the (type, actionType)
	// combination is not a registered pair.
	ErrUnregisteredPair = errors.New("unregistered ledger type/action pair")

	// ErrNoActor is returned when no acting user is available and the
	// entry is not a system-generated one.
	ErrNoActor = errors.New("no authenticated actor for ledger entry")
)

// Actor identifies who performed a ledger-recorded action.
type Actor struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
}

// SystemActor is the sentinel identity used for entries generated by the
// catalogue itself (for example the initial activation during onboarding,
// or a scheduled sweep) rather than by an authenticated user.
var SystemActor = Actor{
	Email:    "no-reply@catalogue.local",
	FullName: "system",
	Role:     "system",
}

// IsSystem reports whether the actor is the system sentinel.
func (a Actor) IsSystem() bool {
	return a.Role == SystemActor.Role && a.FullName == SystemActor.FullName
}

// Entry is a single append-only audit ledger record.
//
// Date is stored as a string of epoch milliseconds to stay wire-compatible
// with the catalogue's historical records. Millisecond timestamps can
// collide under concurrent writes, so Seq carries a process-wide monotonic
// sequence number that makes ordering explicit rather than an accident of
// list position.
type Entry struct {
	// Seq is a monotonically increasing sequence number assigned at
	// construction. It breaks ties between entries that share a Date.
	Seq uint64 `json:"seq"`

	// Date is the entry timestamp as epoch milliseconds, stringified.
	Date string `json:"date"`

	// UserEmail is the acting user's email address.
	UserEmail string `json:"userEmail"`

	// UserFullName is the acting user's display name.
	UserFullName string `json:"userFullName"`

	// UserRole is the acting user's role at the time of the action.
	UserRole string `json:"userRole"`

	// Type classifies the action (ONBOARD, UPDATE, AUDIT, DRAFT, MOVE).
	Type EntryType `json:"type"`

	// ActionType qualifies Type; the pair must be registered.
	ActionType ActionType `json:"actionType"`

	// Comment is optional free text, typically an auditor's remark.
	Comment string `json:"comment,omitempty"`
}

// seqCounter backs Seq assignment. Restarting the process resets it, which
// is acceptable: Seq only disambiguates entries created within the same
// millisecond, and those are always created by the same process.
var seqCounter atomic.Uint64

// NewEntry constructs a ledger entry for the given actor and action.
// It returns ErrUnregisteredPair if the (entryType, actionType) combination
// is not registered, and ErrNoActor if the actor is empty. System-generated
// entries should pass SystemActor, which bypasses actor resolution.
func NewEntry(actor Actor, entryType EntryType, actionType ActionType, comment string) (Entry, error) {
	actions, ok := registeredPairs[entryType]
	if !ok || !actions[actionType] {
		return Entry{}, fmt.Errorf("%w: %s/%s", ErrUnregisteredPair, entryType, actionType)
	}

	if actor.Email == "" && !actor.IsSystem() {
		return Entry{}, ErrNoActor
	}

	return Entry{
		Seq:          seqCounter.Add(1),
		Date:         strconv.FormatInt(time.Now().UnixMilli(), 10),
		UserEmail:    actor.Email,
		UserFullName: actor.FullName,
		UserRole:     actor.Role,
		Type:         entryType,
		ActionType:   actionType,
		Comment:      comment,
	}, nil
}

// NewSystemEntry constructs a system-generated ledger entry. It is shorthand
// for NewEntry(SystemActor, ...) used by flows with no authenticated actor.
func NewSystemEntry(entryType EntryType, actionType ActionType, comment string) (Entry, error) {
	return NewEntry(SystemActor, entryType, actionType, comment)
}

// Millis returns the entry's Date parsed as epoch milliseconds.
// Entries with an unparseable Date sort as the zero instant.
func (e Entry) Millis() int64 {
	ms, err := strconv.ParseInt(e.Date, 10, 64)
	if err != nil {
		return 0
	}
	return ms
}
