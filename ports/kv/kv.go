// Package kv is the key/value port that fetch functions can read from.
// Values are stored as JSON; MemStore and the NATS KVStore implement it.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codewandler/query-go/internal/codec"
)

var (
	ErrNotFound = errors.New("not found")
)

type Entry struct {
	Data []byte
	Meta map[string]any
}

type PutOptions struct {
	// TTL expires the entry after the given duration. Zero keeps it forever.
	TTL time.Duration
}

type Store interface {
	Put(ctx context.Context, key string, entry Entry, opts PutOptions) error
	Get(ctx context.Context, key string) (entry Entry, err error)
	Delete(ctx context.Context, key string) error
}

var jsonCodec codec.Codec = codec.JSONCodec{}

func Put[T any](ctx context.Context, store Store, key string, v T, opts PutOptions) error {
	data, err := jsonCodec.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	return store.Put(ctx, key, Entry{Data: data}, opts)
}

func Get[T any](ctx context.Context, store Store, key string) (out T, err error) {
	entry, err := store.Get(ctx, key)
	if err != nil {
		return
	}
	if err = jsonCodec.Unmarshal(entry.Data, &out); err != nil {
		err = fmt.Errorf("kv: decode %s: %w", key, err)
	}
	return
}

// Fetcher returns a fetch function reading key from store. It fits
// query.FetchFunc[T]; a missing key fails the fetch with ErrNotFound.
func Fetcher[T any](store Store, key string) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		return Get[T](ctx, store, key)
	}
}
