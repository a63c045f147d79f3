package addresses

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/storefront-checkout/internal/aws/awstest"
)

const table = "addresses"

func newStore(t *testing.T) (*Store, *awstest.Dynamo) {
	t.Helper()
	fake := awstest.NewDynamo(map[string]string{table: "id"})
	s := NewStore(fake, table)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return s, fake
}

func sample(owner, label string) Address {
	return Address{
		OwnerID:    owner,
		Label:      label,
		Street:     "Rua A",
		Number:     "10",
		City:       "Sao Paulo",
		State:      "SP",
		PostalCode: "01310100",
		Country:    "BR",
	}
}

func defaults(list []Address) []string {
	var ids []string
	for _, a := range list {
		if a.IsDefault {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

func TestCreate_FirstAddressBecomesDefault(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	first, err := s.Create(ctx, sample("u1", "home"))
	require.NoError(t, err)
	assert.True(t, first.IsDefault)
	assert.Equal(t, TypeShipping, first.AddressType)
	assert.NotEmpty(t, first.ID)

	second, err := s.Create(ctx, sample("u1", "work"))
	require.NoError(t, err)
	assert.False(t, second.IsDefault)

	list, err := s.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, []string{first.ID}, defaults(list))
}

func TestCreate_NewDefaultReplacesOld(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	first, err := s.Create(ctx, sample("u1", "home"))
	require.NoError(t, err)
	in := sample("u1", "work")
	in.IsDefault = true
	second, err := s.Create(ctx, in)
	require.NoError(t, err)

	list, err := s.List(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, defaults(list))
	assert.NotEqual(t, first.ID, list[0].ID)
}

func TestSetDefault_LeavesExactlyOne(t *testing.T) {
	s, fake := newStore(t)
	ctx := context.Background()

	var ids []string
	for _, label := range []string{"a", "b", "c"} {
		a, err := s.Create(ctx, sample("u1", label))
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}
	other, err := s.Create(ctx, sample("u2", "x"))
	require.NoError(t, err)

	before := fake.Calls["TransactWriteItems"]
	require.NoError(t, s.SetDefault(ctx, "u1", ids[2]))
	assert.Equal(t, before+1, fake.Calls["TransactWriteItems"], "single transaction")

	list, err := s.List(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{ids[2]}, defaults(list))

	require.NoError(t, s.SetDefault(ctx, "u1", ids[1]))
	list, err = s.List(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{ids[1]}, defaults(list))

	// other owners are untouched
	theirs, err := s.List(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{other.ID}, defaults(theirs))
}

func TestSetDefault_UnknownOrForeignAddress(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	mine, err := s.Create(ctx, sample("u1", "home"))
	require.NoError(t, err)

	assert.ErrorIs(t, s.SetDefault(ctx, "u1", "missing"), ErrNotFound)
	assert.ErrorIs(t, s.SetDefault(ctx, "u2", mine.ID), ErrNotFound)
}

func TestUpdate_KeepsDefaultFlagAndChecksOwner(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, sample("u1", "home"))
	require.NoError(t, err)

	edit := sample("u1", "home 2")
	edit.ID = a.ID
	edit.Street = "Rua B"
	updated, err := s.Update(ctx, edit)
	require.NoError(t, err)
	assert.Equal(t, "Rua B", updated.Street)
	assert.True(t, updated.IsDefault)
	assert.Equal(t, a.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(a.UpdatedAt))

	foreign := sample("u2", "steal")
	foreign.ID = a.ID
	_, err = s.Update(ctx, foreign)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDelete_PromotesNewestWhenDefaultRemoved(t *testing.T) {
	s, fake := newStore(t)
	ctx := context.Background()

	home, err := s.Create(ctx, sample("u1", "home"))
	require.NoError(t, err)
	_, err = s.Create(ctx, sample("u1", "work"))
	require.NoError(t, err)
	newest, err := s.Create(ctx, sample("u1", "gym"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "u1", home.ID))
	assert.Nil(t, fake.Item(table, home.ID))

	list, err := s.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []string{newest.ID}, defaults(list))

	assert.ErrorIs(t, s.Delete(ctx, "u2", newest.ID), ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "u1", "missing"), ErrNotFound)
}

func TestList_Empty(t *testing.T) {
	s, _ := newStore(t)
	list, err := s.List(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, list)
}
