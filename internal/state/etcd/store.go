package etcd

import (
	"context"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Store implements state.Store on the etcd keyspace.
type Store struct {
	client *clientv3.Client
}

// Get returns the value at key and whether the key exists.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("etcd get %s: %w", key, err)
	}
	if resp.Count == 0 {
		return nil, false, nil
	}
	return resp.Kvs[0].Value, true, nil
}

// Put writes value at key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.client.Put(ctx, key, string(value)); err != nil {
		return fmt.Errorf("etcd put %s: %w", key, err)
	}
	return nil
}

// PutIfAbsent creates key atomically: the write commits only when the
// key has never been created, so concurrent initializers race safely.
func (s *Store) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, string(value))).
		Commit()
	if err != nil {
		return false, fmt.Errorf("etcd create %s: %w", key, err)
	}
	return resp.Succeeded, nil
}

// Delete removes key. Absent keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("etcd delete %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes every key under prefix and returns the count.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	resp, err := s.client.Delete(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return 0, fmt.Errorf("etcd delete prefix %s: %w", prefix, err)
	}
	return int(resp.Deleted), nil
}

// List returns every key under prefix with its value.
func (s *Store) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	resp, err := s.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("etcd list %s: %w", prefix, err)
	}
	out := make(map[string][]byte, resp.Count)
	for _, kv := range resp.Kvs {
		out[string(kv.Key)] = kv.Value
	}
	return out, nil
}

// Client exposes the underlying etcd client so other coordination
// primitives, such as membership leases, can share the connection.
func (s *Store) Client() *clientv3.Client {
	return s.client
}

// Close closes the underlying etcd client.
func (s *Store) Close() error {
	return s.client.Close()
}
