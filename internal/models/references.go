package models

import (
	"encoding/json"
	"fmt"
)

// ReferenceField is one outward reference field of a payload: its name, the
// identifiers it holds, and the resource kinds a value may resolve against,
// in resolution priority order. Polymorphic references (Service before
// Training Resource) are expressed as an explicit candidate list rather
// than resolved by trial and error.
type ReferenceField struct {
	// Name is the payload field name, reported verbatim on validation
	// failures.
	Name string

	// IDs are the referenced resource identifiers; empty values are
	// skipped during validation.
	IDs []string

	// Candidates are the kinds a value may resolve against, tried in
	// order.
	Candidates []Kind
}

// serviceOrTraining is the candidate order for polymorphic resource
// references: a Service match wins over a Training Resource match.
var serviceOrTraining = []Kind{KindService, KindTrainingResource}

// ReferenceFields extracts the outward reference fields of a payload.
// Kinds without reference-bearing fields return an empty slice. The raw
// payload is decoded with the typed payload struct for the kind; a decode
// failure is surfaced so malformed documents are rejected before any
// reference is chased.
func ReferenceFields(kind Kind, raw json.RawMessage) ([]ReferenceField, error) {
	payload, err := DecodePayload(kind, raw)
	if err != nil {
		return nil, err
	}

	switch p := payload.(type) {
	case *Service:
		return []ReferenceField{
			{Name: "resourceProviders", IDs: p.ResourceProviders, Candidates: []Kind{KindProvider}},
			{Name: "requiredResources", IDs: p.RequiredResources, Candidates: serviceOrTraining},
			{Name: "relatedResources", IDs: p.RelatedResources, Candidates: serviceOrTraining},
			{Name: "eoscRelatedServices", IDs: p.EOSCRelatedServices, Candidates: serviceOrTraining},
		}, nil
	case *TrainingResource:
		return []ReferenceField{
			{Name: "resourceProviders", IDs: p.ResourceProviders, Candidates: []Kind{KindProvider}},
			{Name: "eoscRelatedServices", IDs: p.EOSCRelatedServices, Candidates: serviceOrTraining},
		}, nil
	case *ResourceInteroperabilityRecord:
		return []ReferenceField{
			{Name: "resourceId", IDs: []string{p.ResourceID}, Candidates: serviceOrTraining},
			{Name: "interoperabilityRecordIds", IDs: p.InteroperabilityRecordIDs, Candidates: []Kind{KindInteroperabilityRecord}},
		}, nil
	case *Catalogue, *Provider, *InteroperabilityRecord:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, payload)
	}
}
