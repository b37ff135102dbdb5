// Package models defines the resource envelope ("bundle") wrapping every
// catalogue payload with its lifecycle state, plus the payload types
// themselves and the registry of cross-resource reference fields.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/piwi3910/catweave/internal/ledger"
)

// Kind identifies a catalogue resource kind. It doubles as the storage
// namespace for envelopes of that kind.
type Kind string

const (
	KindCatalogue                      Kind = "catalogue"
	KindProvider                       Kind = "provider"
	KindService                        Kind = "service"
	KindTrainingResource               Kind = "training_resource"
	KindInteroperabilityRecord         Kind = "interoperability_record"
	KindResourceInteroperabilityRecord Kind = "resource_interoperability_record"
)

// AllKinds lists every resource kind in sweep order.
var AllKinds = []Kind{
	KindCatalogue,
	KindProvider,
	KindService,
	KindTrainingResource,
	KindInteroperabilityRecord,
	KindResourceInteroperabilityRecord,
}

// DisplayName returns the human-readable kind name used in drift reports.
func (k Kind) DisplayName() string {
	switch k {
	case KindCatalogue:
		return "Catalogue"
	case KindProvider:
		return "Provider"
	case KindService:
		return "Service"
	case KindTrainingResource:
		return "Training Resource"
	case KindInteroperabilityRecord:
		return "Interoperability Record"
	case KindResourceInteroperabilityRecord:
		return "Resource Interoperability Record"
	default:
		return string(k)
	}
}

// Valid reports whether k is a known resource kind.
func (k Kind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Status values form an open vocabulary: catalogues may extend it with
// type-specific statuses ("approved provider", "pending template", ...).
// The transition guard only interprets the pending/approved/rejected families
// below and passes everything else through untouched.
const (
	StatusPendingResource  = "pending resource"
	StatusApprovedResource = "approved resource"
	StatusRejectedResource = "rejected resource"
)

// Sentinel errors for envelope handling.
var (
	// ErrUnknownKind is returned when a Kind is not registered.
	ErrUnknownKind = errors.New("unknown resource kind")

	// ErrPublishedImmutable is returned when a lifecycle operation is
	// attempted on a public mirror. Mirrors change only through explicit
	// publish/retire actions on the canonical envelope.
	ErrPublishedImmutable = errors.New("operation not allowed on a published public instance")
)

// Metadata records who touched an envelope and when, and whether the
// envelope is the published public mirror of a canonical record.
type Metadata struct {
	RegisteredBy string    `json:"registeredBy"`
	RegisteredAt time.Time `json:"registeredAt"`
	ModifiedBy   string    `json:"modifiedBy"`
	ModifiedAt   time.Time `json:"modifiedAt"`

	// Published marks the envelope as the public mirror. At most one
	// mirror and exactly one canonical envelope exist per catalogue-scoped
	// identity.
	Published bool `json:"published"`
}

// PIDType is the alternative-identifier type carrying the externally issued
// persistent identifier of a published resource.
const PIDType = "EOSC PID"

// AlternativeIdentifier is a (type, value) pair attached to a payload.
// A payload carries at most one identifier with Type == PIDType, and on a
// public mirror that value equals the mirror's own identifier.
type AlternativeIdentifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Envelope wraps a catalogue payload with its lifecycle state. It is the
// unit stored, transitioned and swept by the rest of the system; the
// payload itself stays opaque JSON except where the reference registry
// needs typed access.
type Envelope struct {
	// ID is the payload's identifier; for a public mirror it is
	// "<catalogueID>.<canonicalID>".
	ID string `json:"id"`

	// Kind names the payload type and the storage namespace.
	Kind Kind `json:"kind"`

	// CatalogueID is the owning catalogue.
	CatalogueID string `json:"catalogueId"`

	// Status is drawn from the open status vocabulary.
	Status string `json:"status"`

	// Active is the orthogonal activation flag toggled by publish.
	Active bool `json:"active"`

	// Suspended is the orthogonal suspension flag, cascading down the
	// catalogue/provider hierarchy.
	Suspended bool `json:"suspended"`

	Metadata Metadata `json:"metadata"`

	AlternativeIdentifiers []AlternativeIdentifier `json:"alternativeIdentifiers,omitempty"`

	// LoggingInfo is the append-only audit ledger for this envelope.
	LoggingInfo []ledger.Entry `json:"loggingInfo"`

	// Derived pointers into LoggingInfo, refreshed on every append.
	LatestOnboardingInfo *ledger.Entry `json:"latestOnboardingInfo,omitempty"`
	LatestUpdateInfo     *ledger.Entry `json:"latestUpdateInfo,omitempty"`
	LatestAuditInfo      *ledger.Entry `json:"latestAuditInfo,omitempty"`

	// Payload is the domain document (Provider, Service, ...).
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AppendEntry appends a ledger entry and refreshes the derived latest-entry
// pointers. The ledger is append-only; this is the only way it grows.
func (e *Envelope) AppendEntry(entry ledger.Entry) {
	e.LoggingInfo = append(e.LoggingInfo, entry)
	e.LatestOnboardingInfo = ledger.LatestOfType(e.LoggingInfo, ledger.TypeOnboard)
	e.LatestUpdateInfo = ledger.LatestOfType(e.LoggingInfo, ledger.TypeUpdate)
	e.LatestAuditInfo = ledger.LatestOfType(e.LoggingInfo, ledger.TypeAudit)
}

// AuditState derives the audit verdict from the envelope's ledger.
func (e *Envelope) AuditState() ledger.AuditState {
	return ledger.DeriveAuditState(e.LoggingInfo)
}

// PublicID returns the identifier the envelope's public mirror is stored
// under: "<catalogueID>.<canonicalID>".
func (e *Envelope) PublicID() string {
	return e.CatalogueID + "." + e.ID
}

// PID returns the value of the payload's PIDType alternative identifier,
// or the empty string when none is attached.
func (e *Envelope) PID() string {
	for _, alt := range e.AlternativeIdentifiers {
		if alt.Type == PIDType {
			return alt.Value
		}
	}
	return ""
}

// SetPID attaches or rewrites the PIDType alternative identifier, keeping
// the at-most-one invariant.
func (e *Envelope) SetPID(value string) {
	for i, alt := range e.AlternativeIdentifiers {
		if alt.Type == PIDType {
			e.AlternativeIdentifiers[i].Value = value
			return
		}
	}
	e.AlternativeIdentifiers = append(e.AlternativeIdentifiers, AlternativeIdentifier{
		Type:  PIDType,
		Value: value,
	})
}

// ValidateIdentifiers checks the alternative-identifier invariants:
// at most one PIDType entry, and on a public mirror its value must equal the
// mirror's own identifier.
func (e *Envelope) ValidateIdentifiers() error {
	seen := 0
	for _, alt := range e.AlternativeIdentifiers {
		if alt.Type != PIDType {
			continue
		}
		seen++
		if seen > 1 {
			return fmt.Errorf("payload %s carries more than one %q identifier", e.ID, PIDType)
		}
		if e.Metadata.Published && alt.Value != e.ID {
			return fmt.Errorf("public instance %s carries %q identifier %q, expected its own id", e.ID, PIDType, alt.Value)
		}
	}
	return nil
}
