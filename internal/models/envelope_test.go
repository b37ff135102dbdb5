package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/catweave/internal/ledger"
)

func TestEnvelope_AppendEntry(t *testing.T) {
	env := &Envelope{ID: "svc-1", Kind: KindService}

	onboard, err := ledger.NewSystemEntry(ledger.TypeOnboard, ledger.ActionRegistered, "")
	require.NoError(t, err)
	env.AppendEntry(onboard)

	update, err := ledger.NewSystemEntry(ledger.TypeUpdate, ledger.ActionUpdated, "")
	require.NoError(t, err)
	env.AppendEntry(update)

	require.Len(t, env.LoggingInfo, 2)
	require.NotNil(t, env.LatestOnboardingInfo)
	require.NotNil(t, env.LatestUpdateInfo)
	assert.Nil(t, env.LatestAuditInfo)
	assert.Equal(t, ledger.ActionRegistered, env.LatestOnboardingInfo.ActionType)
	assert.Equal(t, ledger.ActionUpdated, env.LatestUpdateInfo.ActionType)

	audit, err := ledger.NewSystemEntry(ledger.TypeAudit, ledger.ActionInvalid, "broken links")
	require.NoError(t, err)
	env.AppendEntry(audit)

	require.NotNil(t, env.LatestAuditInfo)
	assert.Equal(t, ledger.ActionInvalid, env.LatestAuditInfo.ActionType)
	assert.Equal(t, ledger.InvalidAndNotUpdated, env.AuditState())
}

func TestEnvelope_PublicID(t *testing.T) {
	env := &Envelope{ID: "svc-1", CatalogueID: "eosc"}
	assert.Equal(t, "eosc.svc-1", env.PublicID())
}

func TestEnvelope_PID(t *testing.T) {
	env := &Envelope{ID: "eosc.svc-1"}
	assert.Empty(t, env.PID())

	env.SetPID("21.12345/abc")
	assert.Equal(t, "21.12345/abc", env.PID())

	// SetPID rewrites in place rather than appending a second entry.
	env.SetPID("21.12345/def")
	assert.Equal(t, "21.12345/def", env.PID())
	assert.Len(t, env.AlternativeIdentifiers, 1)
}

func TestEnvelope_ValidateIdentifiers(t *testing.T) {
	tests := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{
			name: "no identifiers",
			env:  Envelope{ID: "svc-1"},
		},
		{
			name: "single pid on canonical",
			env: Envelope{
				ID: "svc-1",
				AlternativeIdentifiers: []AlternativeIdentifier{
					{Type: PIDType, Value: "21.12345/abc"},
				},
			},
		},
		{
			name: "duplicate pid entries",
			env: Envelope{
				ID: "svc-1",
				AlternativeIdentifiers: []AlternativeIdentifier{
					{Type: PIDType, Value: "21.12345/abc"},
					{Type: PIDType, Value: "21.12345/def"},
				},
			},
			wantErr: true,
		},
		{
			name: "mirror pid equals mirror id",
			env: Envelope{
				ID:       "eosc.svc-1",
				Metadata: Metadata{Published: true},
				AlternativeIdentifiers: []AlternativeIdentifier{
					{Type: PIDType, Value: "eosc.svc-1"},
				},
			},
		},
		{
			name: "mirror pid pointing at canonical id",
			env: Envelope{
				ID:       "eosc.svc-1",
				Metadata: Metadata{Published: true},
				AlternativeIdentifiers: []AlternativeIdentifier{
					{Type: PIDType, Value: "svc-1"},
				},
			},
			wantErr: true,
		},
		{
			name: "other identifier types are unconstrained",
			env: Envelope{
				ID: "svc-1",
				AlternativeIdentifiers: []AlternativeIdentifier{
					{Type: "DOI", Value: "10.1234/x"},
					{Type: "DOI", Value: "10.1234/y"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.ValidateIdentifiers()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewEnvelope(t *testing.T) {
	svc := &Service{
		ID:          "svc-1",
		CatalogueID: "eosc",
		Name:        "Compute Platform",
	}

	env, err := NewEnvelope(KindService, svc)
	require.NoError(t, err)
	assert.Equal(t, "svc-1", env.ID)
	assert.Equal(t, KindService, env.Kind)
	assert.Equal(t, "eosc", env.CatalogueID)

	decoded, err := DecodePayload(KindService, env.Payload)
	require.NoError(t, err)
	assert.Equal(t, svc, decoded)
}

func TestNewEnvelope_UnknownKind(t *testing.T) {
	_, err := NewEnvelope(Kind("virtual_machine"), &Service{ID: "x"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestDecodePayload_Malformed(t *testing.T) {
	_, err := DecodePayload(KindService, json.RawMessage(`{"id":42}`))
	assert.Error(t, err)
}

func TestReferenceFields(t *testing.T) {
	svc := Service{
		ID:                "svc-1",
		CatalogueID:       "eosc",
		ResourceProviders: []string{"prov-1"},
		RequiredResources: []string{"svc-2", "tr-1"},
	}
	raw, err := json.Marshal(&svc)
	require.NoError(t, err)

	fields, err := ReferenceFields(KindService, raw)
	require.NoError(t, err)
	require.Len(t, fields, 4)

	byName := map[string]ReferenceField{}
	for _, f := range fields {
		byName[f.Name] = f
	}

	assert.Equal(t, []string{"prov-1"}, byName["resourceProviders"].IDs)
	assert.Equal(t, []Kind{KindProvider}, byName["resourceProviders"].Candidates)
	assert.Equal(t, []string{"svc-2", "tr-1"}, byName["requiredResources"].IDs)
	// Polymorphic references resolve Service before Training Resource.
	assert.Equal(t, []Kind{KindService, KindTrainingResource}, byName["requiredResources"].Candidates)
}

func TestReferenceFields_KindsWithoutReferences(t *testing.T) {
	raw, err := json.Marshal(&Provider{ID: "prov-1", CatalogueID: "eosc"})
	require.NoError(t, err)

	fields, err := ReferenceFields(KindProvider, raw)
	require.NoError(t, err)
	assert.Empty(t, fields)
}
