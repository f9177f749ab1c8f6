package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/odvcencio/mango/pkg/blobstore"
	"github.com/odvcencio/mango/pkg/config"
	"github.com/odvcencio/mango/pkg/ledger"
	"github.com/odvcencio/mango/pkg/remote"
)

// session is everything one command invocation talks to.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	repo    *remote.Repo
	closers []io.Closer
}

// track registers v for Close if it holds resources.
func (s *session) track(v any) {
	if c, ok := v.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			s.logger.Warn("close failed", "error", err)
		}
	}
}

// commandContext applies --timeout to the command's context.
func commandContext(cmd *cobra.Command, opts *globalOptions) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.timeout > 0 {
		return context.WithTimeout(ctx, opts.timeout)
	}
	return context.WithCancel(ctx)
}

func openSession(ctx context.Context, cmd *cobra.Command, opts *globalOptions) (*session, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log, cmd.ErrOrStderr())
	s := &session{cfg: cfg, logger: logger}

	blobs, err := openBlobStore(ctx, cfg.Blobstore, s)
	if err != nil {
		s.Close()
		return nil, err
	}
	l, err := openLedger(ctx, cfg.Ledger, s)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.repo = remote.New(blobs, l, remote.Options{
		Logger:      logger,
		DefaultHead: cfg.Refs.DefaultHead,
	})
	logger.Debug("session opened",
		"session", s.repo.Session(),
		"config", cfg.Path,
		"blobstore", cfg.Blobstore.Backend,
		"ledger", cfg.Ledger.Backend,
	)
	return s, nil
}

func openBlobStore(ctx context.Context, cfg config.Blobstore, s *session) (blobstore.Store, error) {
	var (
		store blobstore.Store
		err   error
	)
	switch cfg.Backend {
	case "fs":
		store = blobstore.NewFSStore(cfg.Path)
	case "memory":
		store = blobstore.NewMemStore()
	case "s3":
		store, err = blobstore.NewS3Store(ctx, blobstore.S3StoreConfig{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
			Prefix:   cfg.Prefix,
		})
	case "gcs":
		store, err = blobstore.NewGCSStore(ctx, blobstore.GCSStoreConfig{
			Bucket: cfg.Bucket,
			Prefix: cfg.Prefix,
		})
	default:
		err = fmt.Errorf("unknown blobstore backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	// Track the backend itself; the decorators below do not forward Close.
	s.track(store)

	if cfg.Compression == "zstd" {
		store = blobstore.WithCompression(store)
	}
	return blobstore.WithRetry(store, blobstore.RetryOptions{
		MaxAttempts: cfg.MaxAttempts,
		Logger:      s.logger,
	}), nil
}

func openLedger(ctx context.Context, cfg config.Ledger, s *session) (ledger.Ledger, error) {
	var signer ledger.Signer
	if strings.TrimSpace(cfg.SigningKey) != "" {
		sshSigner, err := ledger.NewSSHSigner(cfg.SigningKey)
		if err != nil {
			return nil, err
		}
		s.logger.Debug("signing ledger journal", "key", sshSigner.Path())
		signer = sshSigner
	}

	var l ledger.Ledger
	switch cfg.Backend {
	case "memory":
		l = ledger.NewMemLedger(signer)
	case "sqlite":
		if err := ensureParentDir(cfg.DSN); err != nil {
			return nil, err
		}
		sqlLedger, err := ledger.OpenSQL(ctx, ledger.DialectSQLite, cfg.DSN, signer)
		if err != nil {
			return nil, err
		}
		s.track(sqlLedger)
		l = sqlLedger
	case "postgres":
		sqlLedger, err := ledger.OpenSQL(ctx, ledger.DialectPostgres, cfg.DSN, signer)
		if err != nil {
			return nil, err
		}
		s.track(sqlLedger)
		l = sqlLedger
	case "redis":
		redisLedger, err := ledger.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Namespace, signer)
		if err != nil {
			return nil, err
		}
		s.track(redisLedger)
		l = redisLedger
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}

	if cfg.WritesPerSecond > 0 {
		l = ledger.WithRateLimit(l, rate.NewLimiter(rate.Limit(cfg.WritesPerSecond), cfg.Burst))
	}
	return l, nil
}

// ensureParentDir creates the directory holding a sqlite database file.
func ensureParentDir(dsn string) error {
	if dsn == "" || strings.HasPrefix(dsn, "file:") || strings.Contains(dsn, ":memory:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger directory %q: %w", dir, err)
	}
	return nil
}
