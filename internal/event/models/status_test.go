package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStatus(t *testing.T) {
	t.Run("happy path walks create to registered", func(t *testing.T) {
		status := StatusNone
		for _, at := range []ActionType{ActionCreate, ActionDeclare, ActionValidate, ActionRegister} {
			next, legal := NextStatus(status, at)
			require.True(t, legal, "%s from %q", at, status)
			status = next
		}
		assert.Equal(t, StatusRegistered, status)
	})

	t.Run("register straight from declared is legal", func(t *testing.T) {
		next, legal := NextStatus(StatusDeclared, ActionRegister)
		require.True(t, legal)
		assert.Equal(t, StatusRegistered, next)
	})

	t.Run("reject returns the record to in progress", func(t *testing.T) {
		for _, from := range []EventStatus{StatusDeclared, StatusValidated} {
			next, legal := NextStatus(from, ActionReject)
			require.True(t, legal, "from %q", from)
			assert.Equal(t, StatusInProgress, next)
		}
	})

	t.Run("declare twice is illegal", func(t *testing.T) {
		_, legal := NextStatus(StatusDeclared, ActionDeclare)
		assert.False(t, legal)
	})

	t.Run("register from in progress is illegal", func(t *testing.T) {
		_, legal := NextStatus(StatusInProgress, ActionRegister)
		assert.False(t, legal)
	})

	t.Run("side channel actions preserve status", func(t *testing.T) {
		for _, at := range []ActionType{ActionAssign, ActionUnassign, ActionNotify} {
			next, legal := NextStatus(StatusDeclared, at)
			require.True(t, legal, "%s", at)
			assert.Equal(t, StatusDeclared, next)
		}
	})

	t.Run("corrections only from registered", func(t *testing.T) {
		for _, at := range []ActionType{ActionCorrectionReq, ActionCorrectionAppr, ActionCorrectionReject, ActionPrintCertificate} {
			_, legal := NextStatus(StatusValidated, at)
			assert.False(t, legal, "%s from validated", at)
			_, legal = NextStatus(StatusRegistered, at)
			assert.True(t, legal, "%s from registered", at)
		}
	})

	t.Run("delete is barred once registered", func(t *testing.T) {
		_, legal := NextStatus(StatusRegistered, ActionDelete)
		assert.False(t, legal)
		_, legal = NextStatus(StatusValidated, ActionDelete)
		assert.True(t, legal)
	})

	t.Run("edit is barred once registered", func(t *testing.T) {
		_, legal := NextStatus(StatusRegistered, ActionEdit)
		assert.False(t, legal)
	})
}

func TestComputeStatus(t *testing.T) {
	accepted := func(at ActionType) Action {
		return Action{Type: at, Status: StatusAccepted}
	}

	t.Run("folds the accepted history", func(t *testing.T) {
		actions := []Action{
			accepted(ActionCreate),
			accepted(ActionAssign),
			accepted(ActionDeclare),
			accepted(ActionReject),
			accepted(ActionDeclare),
			accepted(ActionValidate),
			accepted(ActionRegister),
		}
		assert.Equal(t, StatusRegistered, ComputeStatus(actions))
	})

	t.Run("non-accepted entries do not count", func(t *testing.T) {
		actions := []Action{
			accepted(ActionCreate),
			{Type: ActionDeclare, Status: StatusRejected},
		}
		assert.Equal(t, StatusInProgress, ComputeStatus(actions))
	})

	t.Run("empty history is status none", func(t *testing.T) {
		assert.Equal(t, StatusNone, ComputeStatus(nil))
	})
}
