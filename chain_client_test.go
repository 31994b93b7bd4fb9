package main

import (
	"context"
	"math/big"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssertChainID(t *testing.T) {
	t.Run("match", func(t *testing.T) {
		client := &MockEthereum{
			ChainIDFunc: func(_ context.Context) (*big.Int, error) {
				return big.NewInt(31337), nil
			},
		}
		assert.NoError(t, AssertChainID(context.Background(), client, 31337))
	})

	t.Run("mismatch", func(t *testing.T) {
		client := &MockEthereum{
			ChainIDFunc: func(_ context.Context) (*big.Int, error) {
				return big.NewInt(1), nil
			},
		}
		err := AssertChainID(context.Background(), client, 31337)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrChainIDMismatch))
	})

	t.Run("query failure", func(t *testing.T) {
		client := &MockEthereum{
			ChainIDFunc: func(_ context.Context) (*big.Int, error) {
				return nil, errors.New("node unavailable")
			},
		}
		err := AssertChainID(context.Background(), client, 31337)
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrChainIDMismatch))
	})
}
