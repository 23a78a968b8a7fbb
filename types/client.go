package types

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"
)

type Params map[string]interface{}

type Invoker interface {
	Invoke(ctx context.Context, operation string, params Params, opts *CallOptions) (*Result, error)
}

// Operation maps a logical call name to a concrete endpoint.
type Operation struct {
	Name    string `json:"name"`
	Service string `json:"service"`
	Method  string `json:"method"`
	Path    string `json:"path"`
}

type CacheOptions struct {
	TTL     time.Duration
	Backend Backend
	// Key overrides the derived "<operation>.<params>" cache key.
	Key string
	// Refresh skips the cached read; the result still replaces the entry on
	// success.
	Refresh bool
}

type CallOptions struct {
	// Retry allows one extra attempt after a network failure or 5xx.
	Retry   bool
	Timeout time.Duration
	Headers map[string]string
	Cache   *CacheOptions
	// Invalidate holds key patterns cleared from every cache backend after a
	// successful call.
	Invalidate []string
}

type Result struct {
	Operation string          `json:"operation"`
	Status    int             `json:"status"`
	RequestID string          `json:"request_id,omitempty"`
	Cached    bool            `json:"cached"`
	Data      json.RawMessage `json:"data"`
}

func (r *Result) Decode(target interface{}) error {
	if r == nil || len(r.Data) == 0 {
		return ErrClientResponseInvalid
	}
	return sonic.ConfigDefault.Unmarshal(r.Data, target)
}
