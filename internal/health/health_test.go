package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckerRun(t *testing.T) {
	ctx := context.Background()

	t.Run("all passing reports ok", func(t *testing.T) {
		c := NewChecker(
			Check{Name: "postgres", Probe: func(context.Context) error { return nil }},
			Check{Name: "redis", Probe: func(context.Context) error { return nil }},
		)
		report := c.Run(ctx)
		assert.Equal(t, "ok", report.Status)
		require.Len(t, report.Checks, 2)
		assert.Equal(t, "postgres", report.Checks[0].Name)
	})

	t.Run("one failure degrades the report but not the other probes", func(t *testing.T) {
		c := NewChecker(
			Check{Name: "postgres", Probe: func(context.Context) error { return nil }},
			Check{Name: "kafka", Probe: func(context.Context) error { return errors.New("no brokers") }},
		)
		report := c.Run(ctx)
		assert.Equal(t, "unhealthy", report.Status)
		assert.Equal(t, "ok", report.Checks[0].Status)
		assert.Equal(t, "unhealthy", report.Checks[1].Status)
		assert.Equal(t, "no brokers", report.Checks[1].Error)
	})

	t.Run("a slow probe is cut off by the per-check timeout", func(t *testing.T) {
		c := NewChecker(Check{Name: "slow", Probe: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(10 * time.Second):
				return nil
			}
		}})

		start := time.Now()
		report := c.Run(ctx)
		assert.Less(t, time.Since(start), 5*time.Second)
		assert.Equal(t, "unhealthy", report.Status)
	})

	t.Run("no checks is trivially ok", func(t *testing.T) {
		assert.Equal(t, "ok", NewChecker().Run(ctx).Status)
	})
}
