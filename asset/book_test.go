package asset

import (
	"context"
	"testing"

	"givevault/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBook_Transfer(t *testing.T) {
	ctx := context.Background()
	alice := models.Address("alice")
	bob := models.Address("bob")

	t.Run("moves balance", func(t *testing.T) {
		book := NewBook("usdc")
		require.NoError(t, book.Issue(alice, decimal.NewFromInt(100)))

		require.NoError(t, book.Transfer(ctx, alice, bob, decimal.NewFromInt(40)))

		aliceBal, _ := book.BalanceOf(ctx, alice)
		bobBal, _ := book.BalanceOf(ctx, bob)
		assert.True(t, aliceBal.Equal(decimal.NewFromInt(60)))
		assert.True(t, bobBal.Equal(decimal.NewFromInt(40)))
		assert.True(t, book.Supply().Equal(decimal.NewFromInt(100)))
	})

	t.Run("insufficient balance leaves book untouched", func(t *testing.T) {
		book := NewBook("usdc")
		require.NoError(t, book.Issue(alice, decimal.NewFromInt(10)))

		err := book.Transfer(ctx, alice, bob, decimal.NewFromInt(11))
		assert.ErrorIs(t, err, ErrInsufficientBalance)

		aliceBal, _ := book.BalanceOf(ctx, alice)
		assert.True(t, aliceBal.Equal(decimal.NewFromInt(10)))
		assert.Equal(t, []models.Address{alice}, book.Holders())
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		book := NewBook("usdc")
		require.NoError(t, book.Issue(alice, decimal.NewFromInt(10)))

		assert.ErrorIs(t, book.Transfer(ctx, alice, models.ZeroAddress, decimal.NewFromInt(1)), ErrInvalidParty)
		assert.ErrorIs(t, book.Transfer(ctx, alice, bob, decimal.Zero), ErrInvalidAmount)
		assert.ErrorIs(t, book.Transfer(ctx, alice, bob, decimal.RequireFromString("0.5")), ErrInvalidAmount)
		assert.ErrorIs(t, book.Issue(alice, decimal.NewFromInt(-1)), ErrInvalidAmount)
	})

	t.Run("full transfer removes holder", func(t *testing.T) {
		book := NewBook("usdc")
		require.NoError(t, book.Issue(alice, decimal.NewFromInt(5)))
		require.NoError(t, book.Transfer(ctx, alice, bob, decimal.NewFromInt(5)))
		assert.Equal(t, []models.Address{bob}, book.Holders())
	})
}

// memoryStore is a BalanceStore kept in a map; fail makes the next save return an error
type memoryStore struct {
	saved map[string]map[models.Address]decimal.Decimal
	fail  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{saved: make(map[string]map[models.Address]decimal.Decimal)}
}

func (s *memoryStore) LoadBalances(ctx context.Context, asset string) (map[models.Address]decimal.Decimal, error) {
	out := make(map[models.Address]decimal.Decimal)
	for holder, amount := range s.saved[asset] {
		out[holder] = amount
	}
	return out, nil
}

func (s *memoryStore) SaveBalances(ctx context.Context, asset string, balances map[models.Address]decimal.Decimal) error {
	if s.fail != nil {
		err := s.fail
		s.fail = nil
		return err
	}
	if s.saved[asset] == nil {
		s.saved[asset] = make(map[models.Address]decimal.Decimal)
	}
	for holder, amount := range balances {
		if amount.IsZero() {
			delete(s.saved[asset], holder)
			continue
		}
		s.saved[asset][holder] = amount
	}
	return nil
}

func TestOpenBook_PersistsEveryChange(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()

	book, err := OpenBook(ctx, "usdc", store)
	require.NoError(t, err)
	require.NoError(t, book.Issue("alice", decimal.NewFromInt(100)))
	require.NoError(t, book.Transfer(ctx, "alice", "vault", decimal.NewFromInt(100)))

	reopened, err := OpenBook(ctx, "usdc", store)
	require.NoError(t, err)
	assert.Equal(t, []models.Address{"vault"}, reopened.Holders())
	assert.True(t, reopened.Supply().Equal(decimal.NewFromInt(100)))
}

func TestOpenBook_FailedSaveLeavesBalances(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()

	book, err := OpenBook(ctx, "usdc", store)
	require.NoError(t, err)
	require.NoError(t, book.Issue("alice", decimal.NewFromInt(100)))

	store.fail = assert.AnError
	err = book.Transfer(ctx, "alice", "bob", decimal.NewFromInt(40))
	assert.ErrorIs(t, err, assert.AnError)

	aliceBal, _ := book.BalanceOf(ctx, "alice")
	bobBal, _ := book.BalanceOf(ctx, "bob")
	assert.True(t, aliceBal.Equal(decimal.NewFromInt(100)))
	assert.True(t, bobBal.IsZero())
}

func TestBook_SelfTransferIsNeutral(t *testing.T) {
	ctx := context.Background()
	book := NewBook("usdc")
	require.NoError(t, book.Issue("alice", decimal.NewFromInt(50)))

	require.NoError(t, book.Transfer(ctx, "alice", "alice", decimal.NewFromInt(30)))

	bal, _ := book.BalanceOf(ctx, "alice")
	assert.True(t, bal.Equal(decimal.NewFromInt(50)))
}
