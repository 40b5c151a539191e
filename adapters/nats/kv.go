package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/codewandler/query-go/ports/kv"
)

const defaultKVBucket = "query_kv"

type KVConfig struct {
	Connect Connector // Connect is used to create the underlying NATS connection. If nil, ConnectDefault() is used.
	Bucket  string    // Bucket name, defaults to "query_kv"
	// Timeout bounds each operation whose context has no deadline.
	Timeout time.Duration
}

// KVStore is a kv.Store backed by a JetStream key/value bucket.
type KVStore struct {
	kv      jetstream.KeyValue
	closeNc closeFunc
	timeout time.Duration
}

// kvRecord is the stored form of a kv.Entry. Per-entry TTLs are enforced on
// read.
type kvRecord struct {
	Data      []byte         `json:"data"`
	Meta      map[string]any `json:"meta,omitempty"`
	ExpiresAt time.Time      `json:"expiresAt,omitzero"`
}

func NewKVStore(ctx context.Context, cfg KVConfig) (*KVStore, error) {
	connFn := cfg.Connect
	if connFn == nil {
		connFn = ConnectDefault()
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = defaultKVBucket
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	nc, closeNc, err := connFn()
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		closeNc()
		return nil, err
	}

	store, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:   bucket,
		Storage:  jetstream.FileStorage,
		MaxBytes: 16 * 1024 * 1024,
	})
	if err != nil {
		closeNc()
		return nil, fmt.Errorf("nats: create bucket %s: %w", bucket, err)
	}

	return &KVStore{kv: store, closeNc: closeNc, timeout: timeout}, nil
}

func (k *KVStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, k.timeout)
}

func (k *KVStore) Put(ctx context.Context, key string, entry kv.Entry, opts kv.PutOptions) error {
	rec := kvRecord{Data: entry.Data, Meta: entry.Meta}
	if opts.TTL > 0 {
		rec.ExpiresAt = time.Now().Add(opts.TTL)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("nats: encode %s: %w", key, err)
	}

	ctx, cancel := k.withTimeout(ctx)
	defer cancel()
	if _, err := k.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("nats: put %s: %w", key, err)
	}
	return nil
}

func (k *KVStore) Get(ctx context.Context, key string) (entry kv.Entry, err error) {
	ctx, cancel := k.withTimeout(ctx)
	defer cancel()

	v, err := k.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return entry, kv.ErrNotFound
		}
		return entry, fmt.Errorf("nats: get %s: %w", key, err)
	}

	var rec kvRecord
	if err := json.Unmarshal(v.Value(), &rec); err != nil {
		return entry, fmt.Errorf("nats: decode %s: %w", key, err)
	}
	if !rec.ExpiresAt.IsZero() && !time.Now().Before(rec.ExpiresAt) {
		return entry, kv.ErrNotFound
	}
	return kv.Entry{Data: rec.Data, Meta: rec.Meta}, nil
}

func (k *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := k.withTimeout(ctx)
	defer cancel()
	if err := k.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("nats: delete %s: %w", key, err)
	}
	return nil
}

// Close releases the connection obtained from the Connector.
func (k *KVStore) Close() {
	k.closeNc()
}

var _ kv.Store = (*KVStore)(nil)
