package ledger

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntry(t *testing.T) {
	actor := Actor{
		Email:    "curator@example.org",
		FullName: "Cat Curator",
		Role:     "epot",
	}

	tests := []struct {
		name       string
		actor      Actor
		entryType  EntryType
		actionType ActionType
		wantErr    error
	}{
		{
			name:       "onboard registered",
			actor:      actor,
			entryType:  TypeOnboard,
			actionType: ActionRegistered,
		},
		{
			name:       "update suspended",
			actor:      actor,
			entryType:  TypeUpdate,
			actionType: ActionSuspended,
		},
		{
			name:       "audit valid",
			actor:      actor,
			entryType:  TypeAudit,
			actionType: ActionValid,
		},
		{
			name:       "unregistered pair audit/updated",
			actor:      actor,
			entryType:  TypeAudit,
			actionType: ActionUpdated,
			wantErr:    ErrUnregisteredPair,
		},
		{
			name:       "unregistered pair onboard/activated",
			actor:      actor,
			entryType:  TypeOnboard,
			actionType: ActionActivated,
			wantErr:    ErrUnregisteredPair,
		},
		{
			name:       "unknown type",
			actor:      actor,
			entryType:  EntryType("BOGUS"),
			actionType: ActionUpdated,
			wantErr:    ErrUnregisteredPair,
		},
		{
			name:       "missing actor",
			actor:      Actor{},
			entryType:  TypeUpdate,
			actionType: ActionUpdated,
			wantErr:    ErrNoActor,
		},
		{
			name:       "system actor bypasses resolution",
			actor:      SystemActor,
			entryType:  TypeUpdate,
			actionType: ActionActivated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := NewEntry(tt.actor, tt.entryType, tt.actionType, "")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.entryType, entry.Type)
			assert.Equal(t, tt.actionType, entry.ActionType)
			assert.Equal(t, tt.actor.Email, entry.UserEmail)
			assert.NotZero(t, entry.Seq)

			// Date must be parseable epoch millis.
			_, perr := strconv.ParseInt(entry.Date, 10, 64)
			assert.NoError(t, perr)
		})
	}
}

func TestNewEntry_SequenceIsMonotonic(t *testing.T) {
	first, err := NewSystemEntry(TypeUpdate, ActionUpdated, "")
	require.NoError(t, err)

	second, err := NewSystemEntry(TypeUpdate, ActionUpdated, "")
	require.NoError(t, err)

	assert.Greater(t, second.Seq, first.Seq)
}

func TestEntry_Millis(t *testing.T) {
	assert.Equal(t, int64(1700000000000), Entry{Date: "1700000000000"}.Millis())
	assert.Equal(t, int64(0), Entry{Date: "not-a-number"}.Millis())
	assert.Equal(t, int64(0), Entry{}.Millis())
}
