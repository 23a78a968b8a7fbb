package types

import (
	"encoding/json"
	"strings"
	"time"
)

// Backend is the storage scope a cache store is bound to.
type Backend int

const (
	BackendMemory Backend = iota
	BackendSession
	BackendPersistent
)

// Backends lists every backend in the order the cache manager visits them.
var Backends = []Backend{BackendMemory, BackendSession, BackendPersistent}

func (b Backend) String() string {
	switch b {
	case BackendMemory:
		return "memory"
	case BackendSession:
		return "session"
	case BackendPersistent:
		return "persistent"
	default:
		return "unknown"
	}
}

func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "memory":
		return BackendMemory, nil
	case "session":
		return BackendSession, nil
	case "persistent":
		return BackendPersistent, nil
	default:
		return BackendMemory, Errorf(ErrCacheBackendUnknown, "backend: %s", name)
	}
}

func (b Backend) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *Backend) UnmarshalText(text []byte) error {
	parsed, err := ParseBackend(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// CacheDriver is the raw key/value surface of one storage scope. Drivers know
// nothing about TTLs; entries are opaque bytes.
type CacheDriver interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Keys() ([]string, error)
	Len() (int, error)
	Clear() error
	Close() error
}

type CacheEntry struct {
	Data      json.RawMessage `json:"data"`
	WrittenAt time.Time       `json:"written_at"`
	TTL       time.Duration   `json:"ttl"`
}

// ValidAt reports whether the entry is still fresh at now.
func (e *CacheEntry) ValidAt(now time.Time) bool {
	return now.Sub(e.WrittenAt) < e.TTL
}

type BackendStats struct {
	Backend   Backend `json:"backend"`
	Entries   int     `json:"entries"`
	Available bool    `json:"available"`
}

type CacheStats struct {
	Backends []BackendStats `json:"backends"`
	Total    int            `json:"total"`
}
