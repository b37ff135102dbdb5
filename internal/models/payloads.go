package models

import (
	"encoding/json"
	"fmt"
)

// Identified is the capability every catalogue payload implements: typed
// identity access, with no runtime reflection involved.
type Identified interface {
	GetID() string
	SetID(id string)
	GetCatalogueID() string
}

// Catalogue is a federated catalogue: the root of the ownership hierarchy.
type Catalogue struct {
	ID           string `json:"id"`
	Abbreviation string `json:"abbreviation,omitempty"`
	Name         string `json:"name"`
	Website      string `json:"website,omitempty"`
}

func (c *Catalogue) GetID() string          { return c.ID }
func (c *Catalogue) SetID(id string)        { c.ID = id }
func (c *Catalogue) GetCatalogueID() string { return c.ID }

// Provider is an organisation onboarding resources into a catalogue.
type Provider struct {
	ID           string `json:"id"`
	CatalogueID  string `json:"catalogueId"`
	Abbreviation string `json:"abbreviation,omitempty"`
	Name         string `json:"name"`
	Website      string `json:"website,omitempty"`
}

func (p *Provider) GetID() string          { return p.ID }
func (p *Provider) SetID(id string)        { p.ID = id }
func (p *Provider) GetCatalogueID() string { return p.CatalogueID }

// Service is a scientific-infrastructure service offered by a provider.
type Service struct {
	ID          string `json:"id"`
	CatalogueID string `json:"catalogueId"`
	Name        string `json:"name"`

	// ResourceOrganisation is the provider owning this service.
	ResourceOrganisation string `json:"resourceOrganisation"`

	// Outward reference fields, holding identifiers of other resources.
	ResourceProviders   []string `json:"resourceProviders,omitempty"`
	RequiredResources   []string `json:"requiredResources,omitempty"`
	RelatedResources    []string `json:"relatedResources,omitempty"`
	EOSCRelatedServices []string `json:"eoscRelatedServices,omitempty"`
}

func (s *Service) GetID() string          { return s.ID }
func (s *Service) SetID(id string)        { s.ID = id }
func (s *Service) GetCatalogueID() string { return s.CatalogueID }

// TrainingResource is learning material onboarded by a provider.
type TrainingResource struct {
	ID          string `json:"id"`
	CatalogueID string `json:"catalogueId"`
	Title       string `json:"title"`

	ResourceOrganisation string `json:"resourceOrganisation"`

	ResourceProviders   []string `json:"resourceProviders,omitempty"`
	EOSCRelatedServices []string `json:"eoscRelatedServices,omitempty"`
}

func (tr *TrainingResource) GetID() string          { return tr.ID }
func (tr *TrainingResource) SetID(id string)        { tr.ID = id }
func (tr *TrainingResource) GetCatalogueID() string { return tr.CatalogueID }

// InteroperabilityRecord documents an interoperability guideline.
type InteroperabilityRecord struct {
	ID          string `json:"id"`
	CatalogueID string `json:"catalogueId"`
	Title       string `json:"title"`
	ProviderID  string `json:"providerId"`
}

func (ir *InteroperabilityRecord) GetID() string          { return ir.ID }
func (ir *InteroperabilityRecord) SetID(id string)        { ir.ID = id }
func (ir *InteroperabilityRecord) GetCatalogueID() string { return ir.CatalogueID }

// ResourceInteroperabilityRecord links a resource to the interoperability
// guidelines it implements.
type ResourceInteroperabilityRecord struct {
	ID          string `json:"id"`
	CatalogueID string `json:"catalogueId"`

	// ResourceID references a Service or Training Resource.
	ResourceID string `json:"resourceId"`

	// InteroperabilityRecordIDs reference InteroperabilityRecord payloads.
	InteroperabilityRecordIDs []string `json:"interoperabilityRecordIds,omitempty"`
}

func (rir *ResourceInteroperabilityRecord) GetID() string          { return rir.ID }
func (rir *ResourceInteroperabilityRecord) SetID(id string)        { rir.ID = id }
func (rir *ResourceInteroperabilityRecord) GetCatalogueID() string { return rir.CatalogueID }

// DecodePayload unmarshals a raw payload into the typed struct for its kind.
func DecodePayload(kind Kind, raw json.RawMessage) (Identified, error) {
	var payload Identified
	switch kind {
	case KindCatalogue:
		payload = &Catalogue{}
	case KindProvider:
		payload = &Provider{}
	case KindService:
		payload = &Service{}
	case KindTrainingResource:
		payload = &TrainingResource{}
	case KindInteroperabilityRecord:
		payload = &InteroperabilityRecord{}
	case KindResourceInteroperabilityRecord:
		payload = &ResourceInteroperabilityRecord{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	if len(raw) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
	}
	return payload, nil
}

// NewEnvelope builds a canonical envelope around a payload, lifting the
// identity fields the lifecycle machinery needs.
func NewEnvelope(kind Kind, payload Identified) (*Envelope, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}

	return &Envelope{
		ID:          payload.GetID(),
		Kind:        kind,
		CatalogueID: payload.GetCatalogueID(),
		Payload:     raw,
	}, nil
}
