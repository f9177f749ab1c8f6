package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"
)

// maxSwapAttempts bounds optimistic retries when a watched key changes
// under a compare-and-swap.
const maxSwapAttempts = 16

// RedisLedger stores references in a hash, the snapshot chain in a list
// and the journal as JSON entries in a second list, all under one key
// prefix.
type RedisLedger struct {
	client     redis.UniversalClient
	refsKey    string
	snapsKey   string
	journalKey string
	signer     Signer
}

// NewRedisLedger returns a ledger that keys everything under namespace.
func NewRedisLedger(client redis.UniversalClient, namespace string, signer Signer) *RedisLedger {
	if namespace == "" {
		namespace = "mango"
	}
	return &RedisLedger{
		client:     client,
		refsKey:    namespace + ":refs",
		snapsKey:   namespace + ":snapshots",
		journalKey: namespace + ":journal",
		signer:     signer,
	}
}

// OpenRedis connects to addr and checks the connection.
func OpenRedis(ctx context.Context, addr, password string, db int, namespace string, signer Signer) (*RedisLedger, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis ledger %s: %w", addr, err)
	}
	return NewRedisLedger(rdb, namespace, signer), nil
}

// Close closes the client.
func (r *RedisLedger) Close() error { return r.client.Close() }

func (r *RedisLedger) GetReference(ctx context.Context, name string) (string, error) {
	v, err := r.client.HGet(ctx, r.refsKey, name).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get ref %q: %w", name, err)
	}
	return v, nil
}

func (r *RedisLedger) SetReference(ctx context.Context, name, value string) error {
	entry, err := r.journalEntry(journalFor(name, value))
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if value == "" {
			pipe.HDel(ctx, r.refsKey, name)
		} else {
			pipe.HSet(ctx, r.refsKey, name, value)
		}
		pipe.RPush(ctx, r.journalKey, entry)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set ref %q: %w", name, err)
	}
	return nil
}

func (r *RedisLedger) DeleteReference(ctx context.Context, name string) error {
	return r.SetReference(ctx, name, "")
}

func (r *RedisLedger) CompareAndSwapReference(ctx context.Context, name, expected, next string) error {
	entry, err := r.journalEntry(journalFor(name, next))
	if err != nil {
		return err
	}

	swap := func(tx *redis.Tx) error {
		actual, err := tx.HGet(ctx, r.refsKey, name).Result()
		if errors.Is(err, redis.Nil) {
			actual, err = "", nil
		}
		if err != nil {
			return err
		}
		if actual != expected {
			return &MismatchError{Name: name, Expected: expected, Actual: actual}
		}
		if expected == "" && next == "" {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == "" {
				pipe.HDel(ctx, r.refsKey, name)
			} else {
				pipe.HSet(ctx, r.refsKey, name, next)
			}
			pipe.RPush(ctx, r.journalKey, entry)
			return nil
		})
		return err
	}

	for range maxSwapAttempts {
		err := r.client.Watch(ctx, swap, r.refsKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		var mismatch *MismatchError
		if err != nil && !errors.As(err, &mismatch) {
			return fmt.Errorf("compare-and-swap ref %q: %w", name, err)
		}
		return err
	}
	return fmt.Errorf("compare-and-swap ref %q: too much contention after %d attempts", name, maxSwapAttempts)
}

func (r *RedisLedger) ListReferenceNames(ctx context.Context) ([]string, error) {
	names, err := r.client.HKeys(ctx, r.refsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	slices.Sort(names)
	return names, nil
}

func (r *RedisLedger) AppendSnapshot(ctx context.Context, locator string) error {
	entry, err := r.journalEntry(JournalEntry{Op: OpSnapshot, Value: locator})
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, r.snapsKey, locator)
		pipe.RPush(ctx, r.journalKey, entry)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	return nil
}

func (r *RedisLedger) ListSnapshots(ctx context.Context) ([]string, error) {
	locs, err := r.client.LRange(ctx, r.snapsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return locs, nil
}

// Journal returns every journal entry, oldest first.
func (r *RedisLedger) Journal(ctx context.Context) ([]JournalEntry, error) {
	raw, err := r.client.LRange(ctx, r.journalKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	out := make([]JournalEntry, 0, len(raw))
	for _, s := range raw {
		var e JournalEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("decode journal entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *RedisLedger) journalEntry(e JournalEntry) (string, error) {
	e, err := signEntry(r.signer, e)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode journal entry: %w", err)
	}
	return string(b), nil
}
