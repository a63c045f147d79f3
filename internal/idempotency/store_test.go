package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/storefront-checkout/internal/aws/awstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTable = "idempotency"

func newTestStore(t *testing.T) (*Store, *awstest.Dynamo) {
	t.Helper()
	fake := awstest.NewDynamo(map[string]string{testTable: "idempotency_key"})
	s := NewStore(fake, testTable, 48*time.Hour)
	s.nowFunc = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s, fake
}

func seed(t *testing.T, fake *awstest.Dynamo, rec IdempotencyRecord) {
	t.Helper()
	item, err := attributevalue.MarshalMap(rec)
	require.NoError(t, err)
	fake.Tables[testTable][rec.IdempotencyKey] = item
}

func TestNewRecord_SetsTTL(t *testing.T) {
	s, _ := newTestStore(t)
	rec := s.NewRecord("payment-ORD-1", "ORD-1")

	assert.Equal(t, StatusInProgress, rec.Status)
	assert.Equal(t, "ORD-1", rec.OrderNumber)
	assert.Equal(t, s.nowFunc().Add(48*time.Hour).Unix(), rec.ExpiresAt)
}

func TestGet_NotFound(t *testing.T) {
	s, _ := newTestStore(t)
	rec, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMarkDone_StoresResponse(t *testing.T) {
	s, fake := newTestStore(t)
	seed(t, fake, s.NewRecord("k1", "ORD-1"))

	require.NoError(t, s.MarkDone(context.Background(), "k1", `{"type":"pix"}`, 201))

	rec, err := s.Get(context.Background(), "k1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusDone, rec.Status)
	assert.Equal(t, `{"type":"pix"}`, rec.ResponseBody)
	assert.Equal(t, 201, rec.ResponseStatus)
}

func TestMarkDone_RequiresInProgress(t *testing.T) {
	s, fake := newTestStore(t)
	rec := s.NewRecord("k1", "ORD-1")
	rec.Status = StatusDone
	seed(t, fake, rec)

	err := s.MarkDone(context.Background(), "k1", "{}", 201)
	assert.True(t, errors.Is(err, ErrConditionFailed))
}

func TestMarkFailedThenReacquire(t *testing.T) {
	s, fake := newTestStore(t)
	seed(t, fake, s.NewRecord("k1", "ORD-1"))
	ctx := context.Background()

	// IN_PROGRESS cannot be reacquired
	ok, err := s.Reacquire(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.MarkFailed(ctx, "k1", "provider timeout"))
	item := fake.Item(testTable, "k1")
	assert.Equal(t, &types.AttributeValueMemberS{Value: "provider timeout"}, item["note"])

	ok, err = s.Reacquire(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)

	// second reacquire loses
	ok, err = s.Reacquire(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReacquire_PropagatesErrors(t *testing.T) {
	s, fake := newTestStore(t)
	fake.Err["UpdateItem"] = errors.New("throttled")

	_, err := s.Reacquire(context.Background(), "k1")
	assert.Error(t, err)
}

func TestReacquireStale_SingleWinner(t *testing.T) {
	s, fake := newTestStore(t)
	rec := s.NewRecord("k1", "ORD-1")
	rec.UpdatedAt = rec.UpdatedAt.Add(-10 * time.Minute)
	seed(t, fake, rec)
	ctx := context.Background()

	seen, err := s.Get(ctx, "k1")
	require.NoError(t, err)

	ok, err := s.ReacquireStale(ctx, "k1", seen.UpdatedAt)
	require.NoError(t, err)
	assert.True(t, ok)

	// a second caller holding the same observation loses
	ok, err = s.ReacquireStale(ctx, "k1", seen.UpdatedAt)
	require.NoError(t, err)
	assert.False(t, ok)

	after, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, after.Status)
	assert.True(t, after.UpdatedAt.Equal(s.nowFunc()))
}

func TestReacquireStale_IgnoresFinishedRecords(t *testing.T) {
	s, fake := newTestStore(t)
	rec := s.NewRecord("k1", "ORD-1")
	rec.Status = StatusDone
	seed(t, fake, rec)

	ok, err := s.ReacquireStale(context.Background(), "k1", rec.UpdatedAt)
	require.NoError(t, err)
	assert.False(t, ok)
}
