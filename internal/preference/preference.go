// Package preference stores whether failure alerts are enabled.
package preference

import (
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/nats-io/nats.go"
)

const (
	DefaultBucket = "failgate"
	DefaultKey    = "alerts.enabled"
)

// Store is a readable and writable enable flag.
type Store interface {
	Enabled() (bool, error)
	SetEnabled(enabled bool) error
}

// Static keeps the flag in memory.
type Static struct {
	v atomic.Bool
}

func NewStatic(enabled bool) *Static {
	s := &Static{}
	s.v.Store(enabled)
	return s
}

func (s *Static) Enabled() (bool, error) { return s.v.Load(), nil }

func (s *Static) SetEnabled(enabled bool) error {
	s.v.Store(enabled)
	return nil
}

// KV keeps the flag in a JetStream key-value bucket so that it survives
// restarts and can be flipped from other processes. A missing key means
// enabled.
type KV struct {
	kv  nats.KeyValue
	key string
}

// OpenKV binds to bucket, creating it when it does not exist yet.
func OpenKV(nc *nats.Conn, bucket, key string) (*KV, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	if bucket == "" {
		bucket = DefaultBucket
	}
	if key == "" {
		key = DefaultKey
	}
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "failgate alert preferences",
			History:     1,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open kv bucket %s: %w", bucket, err)
	}
	return &KV{kv: kv, key: key}, nil
}

func (k *KV) Enabled() (bool, error) {
	entry, err := k.kv.Get(k.key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", k.key, err)
	}
	enabled, err := strconv.ParseBool(string(entry.Value()))
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", k.key, err)
	}
	return enabled, nil
}

func (k *KV) SetEnabled(enabled bool) error {
	if _, err := k.kv.PutString(k.key, strconv.FormatBool(enabled)); err != nil {
		return fmt.Errorf("put %s: %w", k.key, err)
	}
	return nil
}
