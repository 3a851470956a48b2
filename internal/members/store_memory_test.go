package members

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindOrCreateByEmailIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	first, created, err := store.FindOrCreateByEmail(ctx, "ada@example.org", "Ada")
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := store.FindOrCreateByEmail(ctx, "ada@example.org", "Somebody Else")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
	// the stored name is not overwritten by later lookups
	require.Equal(t, "Ada", second.Name)
}

func TestFindOrCreateNormalizesEmail(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	first, _, err := store.FindOrCreateByEmail(ctx, "Ada@Example.ORG ", "Ada")
	require.NoError(t, err)

	second, created, err := store.FindOrCreateByEmail(ctx, "ada@example.org", "Ada")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
}

func TestCreateRejectsDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	require.NoError(t, store.Create(ctx, &Person{Name: "Ada", Email: "ada@example.org"}))

	err := store.Create(ctx, &Person{Name: "Imposter", Email: "ADA@example.org"})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestFindByIDReturnsNotFound(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.FindByID(context.Background(), 999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListIsOrderedByID(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	for _, email := range []string{"c@example.org", "a@example.org", "b@example.org"} {
		_, _, err := store.FindOrCreateByEmail(ctx, email, "x")
		require.NoError(t, err)
	}

	persons, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, persons, 3)
	require.Equal(t, "c@example.org", persons[0].Email)
	require.Equal(t, "b@example.org", persons[2].Email)
}
