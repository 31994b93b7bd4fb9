package main

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonceAllocatorSequential(t *testing.T) {
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	var fetches atomic.Int32
	client := &MockEthereum{
		PendingNonceAtFunc: func(_ context.Context, _ common.Address) (uint64, error) {
			fetches.Add(1)
			return 42, nil
		},
	}
	allocator := NewNonceAllocator(client)

	for i := uint64(0); i < 5; i++ {
		nonce, err := allocator.Allocate(context.Background(), addr)
		require.NoError(t, err)
		assert.Equal(t, 42+i, nonce)
	}
	// Only the first allocation hits the node.
	assert.Equal(t, int32(1), fetches.Load())
}

func TestNonceAllocatorConcurrent(t *testing.T) {
	addr := common.HexToAddress("0x2222222222222222222222222222222222222222")
	client := &MockEthereum{
		PendingNonceAtFunc: func(_ context.Context, _ common.Address) (uint64, error) {
			return 0, nil
		},
	}
	allocator := NewNonceAllocator(client)

	const workers = 50
	results := make([]uint64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			nonce, err := allocator.Allocate(context.Background(), addr)
			require.NoError(t, err)
			results[i] = nonce
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i := 0; i < workers; i++ {
		assert.Equal(t, uint64(i), results[i], "allocations must be contiguous with no gaps or duplicates")
	}
}

func TestNonceAllocatorIndependentAddresses(t *testing.T) {
	slowAddr := common.HexToAddress("0x3333333333333333333333333333333333333333")
	fastAddr := common.HexToAddress("0x4444444444444444444444444444444444444444")

	slowFetch := make(chan struct{})
	client := &MockEthereum{
		PendingNonceAtFunc: func(_ context.Context, account common.Address) (uint64, error) {
			if account == slowAddr {
				<-slowFetch
			}
			return 7, nil
		},
	}
	allocator := NewNonceAllocator(client)

	slowDone := make(chan struct{})
	go func() {
		defer close(slowDone)
		_, _ = allocator.Allocate(context.Background(), slowAddr)
	}()

	// The fast address must not be blocked behind the slow one's fetch.
	done := make(chan uint64, 1)
	go func() {
		nonce, err := allocator.Allocate(context.Background(), fastAddr)
		require.NoError(t, err)
		done <- nonce
	}()

	select {
	case nonce := <-done:
		assert.Equal(t, uint64(7), nonce)
	case <-time.After(time.Second):
		t.Fatal("allocation for independent address blocked")
	}

	close(slowFetch)
	<-slowDone
}

func TestNonceAllocatorReset(t *testing.T) {
	addr := common.HexToAddress("0x5555555555555555555555555555555555555555")
	pending := uint64(10)
	client := &MockEthereum{
		PendingNonceAtFunc: func(_ context.Context, _ common.Address) (uint64, error) {
			return pending, nil
		},
	}
	allocator := NewNonceAllocator(client)

	nonce, err := allocator.Allocate(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), nonce)

	pending = 25
	allocator.Reset(addr)

	nonce, err = allocator.Allocate(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), nonce)
}

func TestNonceAllocatorFetchError(t *testing.T) {
	addr := common.HexToAddress("0x6666666666666666666666666666666666666666")
	fail := true
	client := &MockEthereum{
		PendingNonceAtFunc: func(_ context.Context, _ common.Address) (uint64, error) {
			if fail {
				return 0, errors.New("node unavailable")
			}
			return 3, nil
		},
	}
	allocator := NewNonceAllocator(client)

	_, err := allocator.Allocate(context.Background(), addr)
	require.Error(t, err)

	// A failed fetch must not poison the cache.
	fail = false
	nonce, err := allocator.Allocate(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), nonce)
}
