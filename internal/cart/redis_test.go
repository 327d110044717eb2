package cart

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/require"

	"github.com/storefrontd/checkout-core/internal/model"
)

func TestRedisStoreSaveLines(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db, time.Minute)
	ctx := context.Background()

	lines := map[string]model.CartLine{
		"p1": {ProductID: "p1", Quantity: 2, UnitPrice: 3.5, LineTotal: 7},
	}
	raw, err := json.Marshal(lines)
	require.NoError(t, err)

	mock.ExpectSet("cart:u1", raw, time.Minute).SetVal("OK")
	require.NoError(t, s.SaveLines(ctx, "u1", lines))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreSaveEmptyDeletes(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db, time.Minute)

	mock.ExpectDel("cart:u1").SetVal(1)
	require.NoError(t, s.SaveLines(context.Background(), "u1", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreLines(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db, time.Minute)

	lines := map[string]model.CartLine{
		"p1": {ProductID: "p1", Quantity: 2},
	}
	raw, err := json.Marshal(lines)
	require.NoError(t, err)

	mock.ExpectGet("cart:u1").SetVal(string(raw))
	mock.ExpectExpire("cart:u1", time.Minute).SetVal(true)

	got, err := s.Lines(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.EqualValues(t, 2, got["p1"].Quantity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreLinesMissingKey(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db, time.Minute)

	mock.ExpectGet("cart:u1").RedisNil()
	got, err := s.Lines(context.Background(), "u1")
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreDrop(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db, time.Minute)

	mock.ExpectDel("cart:u1").SetVal(1)
	require.NoError(t, s.Drop(context.Background(), "u1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
