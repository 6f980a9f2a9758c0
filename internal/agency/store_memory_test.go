package agency

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetledger/internal/cqrs/paging"
)

func seed(t *testing.T, s *MemoryStore, names ...string) {
	t.Helper()
	for _, name := range names {
		a := &Agency{ID: uuid.New(), Name: name, Region: "north"}
		require.NoError(t, s.Save(context.Background(), a, true))
	}
}

func TestMemoryStoreList(t *testing.T) {
	t.Run("page size zero returns everything", func(t *testing.T) {
		s := NewMemoryStore()
		seed(t, s, "Alpha", "Beta", "Gamma")

		all, err := s.List(context.Background(), paging.Default())
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("pages are stable under the sort order", func(t *testing.T) {
		s := NewMemoryStore()
		seed(t, s, "Gamma", "Alpha", "Beta")

		page, err := s.List(context.Background(), paging.Parameters{Page: 2, PageSize: 1, SortColumn: "name", Ascending: true})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "Beta", page[0].Name)
	})

	t.Run("descending sort reverses the order", func(t *testing.T) {
		s := NewMemoryStore()
		seed(t, s, "Alpha", "Beta")

		all, err := s.List(context.Background(), paging.Parameters{Page: 1, PageSize: 10, SortColumn: "name"})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "Beta", all[0].Name)
	})

	t.Run("filter matches name or region, case-insensitive", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Save(context.Background(), &Agency{ID: uuid.New(), Name: "Northern Transit", Region: "north"}, true))
		require.NoError(t, s.Save(context.Background(), &Agency{ID: uuid.New(), Name: "Harbour Lines", Region: "south"}, true))

		matches, err := s.List(context.Background(), paging.Parameters{Filter: "NORTH"})
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})

	t.Run("a page past the end is empty", func(t *testing.T) {
		s := NewMemoryStore()
		seed(t, s, "Alpha")

		page, err := s.List(context.Background(), paging.Parameters{Page: 5, PageSize: 10})
		require.NoError(t, err)
		assert.Empty(t, page)
	})
}

func TestMemoryStoreGet(t *testing.T) {
	s := NewMemoryStore()
	id := uuid.New()
	require.NoError(t, s.Save(context.Background(), &Agency{ID: id, Name: "Alpha", Contacts: []Contact{{ID: 1}}}, true))

	got, found, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)

	// Mutating the returned snapshot must not leak back into the store.
	got.Contacts[0].Name = "mutated"
	again, _, _ := s.Get(context.Background(), id)
	assert.Empty(t, again.Contacts[0].Name)

	_, found, err = s.Get(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStoreCount(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, "Alpha", "Beta")

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
