package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "civreg/pkg/domain-errors"
)

func TestParseUUID(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseEventID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseUserID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseActionID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		u := uuid.New()
		id, err := ParseUserID(u.String())
		require.NoError(t, err)
		assert.Equal(t, UserID(u), id)
	})
}

func TestParseTransactionID(t *testing.T) {
	t.Run("rejects empty and whitespace", func(t *testing.T) {
		for _, s := range []string{"", "   "} {
			_, err := ParseTransactionID(s)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		}
	})

	t.Run("rejects oversized ids", func(t *testing.T) {
		_, err := ParseTransactionID(strings.Repeat("x", 129))
		require.Error(t, err)
	})

	t.Run("accepts any opaque non-empty id", func(t *testing.T) {
		txn, err := ParseTransactionID("  client-retry-42  ")
		require.NoError(t, err)
		assert.Equal(t, TransactionID("client-retry-42"), txn)
	})
}

func TestIDJSONRoundTrip(t *testing.T) {
	t.Run("marshals as canonical UUID string", func(t *testing.T) {
		id := NewEventID()
		b, err := json.Marshal(id)
		require.NoError(t, err)
		assert.Equal(t, `"`+id.String()+`"`, string(b))

		var back EventID
		require.NoError(t, json.Unmarshal(b, &back))
		assert.Equal(t, id, back)
	})

	t.Run("zero-valued optional references round-trip", func(t *testing.T) {
		type ref struct {
			AssignedTo UserID   `json:"assignedTo"`
			RequestID  ActionID `json:"requestId"`
		}
		b, err := json.Marshal(ref{})
		require.NoError(t, err)

		var back ref
		require.NoError(t, json.Unmarshal(b, &back))
		assert.True(t, back.AssignedTo.IsNil())
		assert.True(t, back.RequestID.IsNil())
	})

	t.Run("rejects malformed text", func(t *testing.T) {
		var id ActionID
		err := json.Unmarshal([]byte(`"nope"`), &id)
		require.Error(t, err)
	})
}
