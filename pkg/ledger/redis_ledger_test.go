package ledger

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// Redis tests need a live server; set MANGO_TEST_REDIS_ADDR to run them.
func redisAddr(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("MANGO_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MANGO_TEST_REDIS_ADDR not set")
	}
	return addr
}

func TestRedisLedger(t *testing.T) {
	addr := redisAddr(t)
	runLedgerSuite(t, func(t *testing.T) Ledger {
		client := redis.NewClient(&redis.Options{Addr: addr})
		ns := "mango-test-" + uuid.NewString()
		t.Cleanup(func() {
			ctx := context.Background()
			_ = client.Del(ctx, ns+":refs", ns+":snapshots", ns+":journal").Err()
			_ = client.Close()
		})
		return NewRedisLedger(client, ns, nil)
	})
}

func TestRedisLedgerJournal(t *testing.T) {
	addr := redisAddr(t)
	ctx := context.Background()
	ns := "mango-test-" + uuid.NewString()
	l, err := OpenRedis(ctx, addr, "", 0, ns, testSSHSigner(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = l.client.Del(ctx, ns+":refs", ns+":snapshots", ns+":journal").Err()
		_ = l.Close()
	})

	require.NoError(t, l.CompareAndSwapReference(ctx, "refs/heads/main", "", "abc"))
	require.NoError(t, l.AppendSnapshot(ctx, "snap"))

	journal, err := l.Journal(ctx)
	require.NoError(t, err)
	require.Len(t, journal, 2)
	for _, entry := range journal {
		_, err := VerifySSHSignature(entry.Payload(), entry.Signature)
		require.NoError(t, err)
	}
}
