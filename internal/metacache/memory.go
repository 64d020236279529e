package metacache

import (
	"context"
	"strconv"
	"sync"

	"ratepath/internal/domain"
)

// MemoryStore is a map-backed Store for tests and single-process runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemory() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string)}
}

func (s *MemoryStore) get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.entries[key]
	return val, ok
}

func (s *MemoryStore) set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
}

func (s *MemoryStore) GetPoolPair(_ context.Context, pool domain.Address) (domain.PoolMetadata, bool, error) {
	raw, ok := s.get(poolPairKey(pool))
	if !ok {
		return domain.PoolMetadata{}, false, nil
	}
	meta, err := decodePair(raw)
	if err != nil {
		return domain.PoolMetadata{}, false, err
	}
	return meta, true, nil
}

func (s *MemoryStore) SetPoolPair(_ context.Context, pool domain.Address, meta domain.PoolMetadata) error {
	s.set(poolPairKey(pool), encodePair(meta))
	return nil
}

func (s *MemoryStore) GetDecimals(_ context.Context, token domain.Address) (uint8, bool, error) {
	raw, ok := s.get(decimalsKey(token))
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		return 0, false, err
	}
	return uint8(n), true, nil
}

func (s *MemoryStore) SetDecimals(_ context.Context, token domain.Address, decimals uint8) error {
	s.set(decimalsKey(token), strconv.FormatUint(uint64(decimals), 10))
	return nil
}

func (s *MemoryStore) GetSymbol(_ context.Context, token domain.Address) (string, bool, error) {
	raw, ok := s.get(symbolKey(token))
	return raw, ok, nil
}

func (s *MemoryStore) SetSymbol(_ context.Context, token domain.Address, symbol string) error {
	s.set(symbolKey(token), symbol)
	return nil
}

func (s *MemoryStore) Health(_ context.Context) error { return nil }
