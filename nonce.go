package main

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// NonceAllocator hands out unique, gap-free nonces per signing address.
// The first allocation for an address seeds the counter from the chain's
// pending transaction count; subsequent allocations increment locally.
//
// Allocations for the same address are serialized by a per-address lock so
// two concurrent submissions never collide; different addresses proceed
// independently. The arena of per-address locks is guarded by one coarse
// mutex that is only held for map mutation, never across chain queries.
type NonceAllocator struct {
	client Ethereum

	mu     sync.Mutex
	locks  map[common.Address]*sync.Mutex
	nonces map[common.Address]uint64
}

func NewNonceAllocator(client Ethereum) *NonceAllocator {
	return &NonceAllocator{
		client: client,
		locks:  make(map[common.Address]*sync.Mutex),
		nonces: make(map[common.Address]uint64),
	}
}

// Allocate returns the next nonce for the address. On chain-query failure no
// value is cached and the counter does not advance.
func (a *NonceAllocator) Allocate(ctx context.Context, addr common.Address) (uint64, error) {
	lock := a.addrLock(addr)
	lock.Lock()
	defer lock.Unlock()

	a.mu.Lock()
	next, cached := a.nonces[addr]
	a.mu.Unlock()

	if !cached {
		count, err := a.client.PendingNonceAt(ctx, addr)
		if err != nil {
			return 0, errors.Wrapf(err, "failed to fetch transaction count for %s", addr.Hex())
		}
		next = count
	}

	a.mu.Lock()
	a.nonces[addr] = next + 1
	a.mu.Unlock()

	return next, nil
}

// Reset drops the cached counter so the next Allocate re-synchronizes from
// the chain. Used after a detected nonce desync (e.g. nonce-too-low reject).
func (a *NonceAllocator) Reset(addr common.Address) {
	lock := a.addrLock(addr)
	lock.Lock()
	defer lock.Unlock()

	a.mu.Lock()
	delete(a.nonces, addr)
	a.mu.Unlock()
}

// addrLock returns the per-address lock, creating it on first use.
// Locks are never removed; the arena grows with the set of signing addresses,
// which is small in practice.
func (a *NonceAllocator) addrLock(addr common.Address) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	lock, ok := a.locks[addr]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[addr] = lock
	}
	return lock
}
