package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civreg/internal/event/models"
	"civreg/pkg/domain"
)

// fakeCache records calls so read-through and invalidation can be asserted.
type fakeCache struct {
	views       map[domain.EventID]*View
	sets        int
	hits        int
	invalidated []domain.EventID
}

func newFakeCache() *fakeCache {
	return &fakeCache{views: map[domain.EventID]*View{}}
}

func (c *fakeCache) Get(_ context.Context, id domain.EventID) (*View, bool) {
	v, ok := c.views[id]
	if ok {
		c.hits++
	}
	return v, ok
}

func (c *fakeCache) Set(_ context.Context, id domain.EventID, view *View) {
	c.sets++
	c.views[id] = view
}

func (c *fakeCache) Invalidate(_ context.Context, id domain.EventID) {
	delete(c.views, id)
	c.invalidated = append(c.invalidated, id)
}

func TestGetView(t *testing.T) {
	ctx := context.Background()

	t.Run("computes, caches, then serves from cache", func(t *testing.T) {
		f := newFixture(t)
		cache := newFakeCache()
		f.svc.cache = cache

		created := f.createBirth(t, "create-1")
		assert.NotEmpty(t, cache.invalidated, "create invalidates its own id")

		view, err := f.svc.GetView(ctx, created.Event.ID)
		require.NoError(t, err)
		assert.Equal(t, created.Event.ID.String(), view.EventID)
		assert.Equal(t, models.StatusInProgress, view.Status)
		assert.Equal(t, 1, cache.sets)

		_, err = f.svc.GetView(ctx, created.Event.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, cache.hits, "second read hits the cache")
		assert.Equal(t, 1, cache.sets, "no recompute on a hit")
	})

	t.Run("every append invalidates the cached view", func(t *testing.T) {
		f := newFixture(t)
		cache := newFakeCache()
		f.svc.cache = cache

		created := f.createBirth(t, "create-1")
		_, err := f.svc.GetView(ctx, created.Event.ID)
		require.NoError(t, err)

		f.assign(t, clerk, clerkScopes, created.Event.ID)

		view, err := f.svc.GetView(ctx, created.Event.ID)
		require.NoError(t, err)
		assert.Equal(t, clerk.String(), view.AssignedTo)
		assert.Equal(t, 2, view.Version)
	})

	t.Run("unknown event is NotFound", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.GetView(ctx, domain.NewEventID())
		assert.Error(t, err)
	})
}

func TestProject(t *testing.T) {
	f := newFixture(t)
	created := f.createBirth(t, "create-1")
	f.assign(t, clerk, clerkScopes, created.Event.ID)

	ev, err := f.svc.GetEvent(context.Background(), created.Event.ID)
	require.NoError(t, err)

	view := Project(ev)
	assert.Equal(t, models.StatusInProgress, view.Status)
	assert.Equal(t, clerk.String(), view.AssignedTo)
	v, _ := view.Declaration.Get("child.firstname")
	assert.Equal(t, "Ada", v)
}
