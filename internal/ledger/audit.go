package ledger

import "sort"

// AuditState is the verdict derived from a resource's ledger.
type AuditState string

const (
	// NotAudited means no audit entry exists in the ledger.
	NotAudited AuditState = "Not audited"

	// Valid means the most recent audit found the resource valid.
	// Later updates do not revoke a valid verdict.
	Valid AuditState = "Valid"

	// InvalidAndUpdated means the most recent audit found the resource
	// invalid and the resource has been updated since.
	InvalidAndUpdated AuditState = "Invalid and updated"

	// InvalidAndNotUpdated means the most recent audit found the resource
	// invalid and no update has happened since.
	InvalidAndNotUpdated AuditState = "Invalid and not updated"
)

// DeriveAuditState computes the audit verdict for a ledger. It is a pure
// function of the entries' (Date, Seq, Type, ActionType) tuples: no side
// effects, and byte-for-byte reproducible from the ledger alone.
//
// Only the most recent audit matters. An UPDATE entry strictly more recent
// than that audit turns an invalid verdict into InvalidAndUpdated; a valid
// verdict is immune to later updates.
func DeriveAuditState(entries []Entry) AuditState {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)

	// Most recent first. Seq breaks millisecond collisions.
	sort.SliceStable(sorted, func(i, j int) bool {
		mi, mj := sorted[i].Millis(), sorted[j].Millis()
		if mi != mj {
			return mi > mj
		}
		return sorted[i].Seq > sorted[j].Seq
	})

	auditPos := -1
	var verdict ActionType
	for i, e := range sorted {
		if e.Type == TypeAudit {
			auditPos = i
			verdict = e.ActionType
			break
		}
	}
	if auditPos < 0 {
		return NotAudited
	}

	if verdict == ActionValid {
		return Valid
	}

	for _, e := range sorted[:auditPos] {
		if e.Type == TypeUpdate {
			return InvalidAndUpdated
		}
	}
	return InvalidAndNotUpdated
}

// LatestOfType returns the most recent entry of the given type, or nil if
// the ledger contains none. The envelope's latest*Info pointers are derived
// with this.
func LatestOfType(entries []Entry, t EntryType) *Entry {
	var latest *Entry
	for i := range entries {
		e := &entries[i]
		if e.Type != t {
			continue
		}
		if latest == nil {
			latest = e
			continue
		}
		lm, em := latest.Millis(), e.Millis()
		if em > lm || (em == lm && e.Seq > latest.Seq) {
			latest = e
		}
	}
	return latest
}
