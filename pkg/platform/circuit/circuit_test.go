package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker(t *testing.T) {
	t.Run("stays closed below the threshold", func(t *testing.T) {
		b := New(3, time.Minute)
		b.RecordFailure()
		b.RecordFailure()
		assert.True(t, b.Allow())
		assert.False(t, b.IsOpen())
	})

	t.Run("opens at the threshold", func(t *testing.T) {
		b := New(3, time.Minute)
		for i := 0; i < 3; i++ {
			b.RecordFailure()
		}
		assert.True(t, b.IsOpen())
		assert.False(t, b.Allow())
	})

	t.Run("success resets the count", func(t *testing.T) {
		b := New(3, time.Minute)
		b.RecordFailure()
		b.RecordFailure()
		b.RecordSuccess()
		b.RecordFailure()
		b.RecordFailure()
		assert.False(t, b.IsOpen())
	})

	t.Run("closes again after the cooldown", func(t *testing.T) {
		b := New(1, 20*time.Millisecond)
		b.RecordFailure()
		assert.False(t, b.Allow())

		time.Sleep(30 * time.Millisecond)
		assert.True(t, b.Allow())
		assert.False(t, b.IsOpen())
	})
}
