package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ldcasilang/sui-portfolio/internal/app"
	"github.com/ldcasilang/sui-portfolio/internal/authpw"
	"github.com/ldcasilang/sui-portfolio/internal/cache"
	"github.com/ldcasilang/sui-portfolio/internal/chain"
	"github.com/ldcasilang/sui-portfolio/internal/config"
	"github.com/ldcasilang/sui-portfolio/internal/export"
	"github.com/ldcasilang/sui-portfolio/internal/locator"
	"github.com/ldcasilang/sui-portfolio/internal/notify"
	"github.com/ldcasilang/sui-portfolio/internal/store"
	"github.com/ldcasilang/sui-portfolio/internal/submit"
	"github.com/ldcasilang/sui-portfolio/internal/syncer"
)

// runtime holds every wired component for one process.
type runtime struct {
	cfg     config.Config
	logger  *zap.Logger
	client  *chain.Client
	cache   cache.Store
	locator *locator.Locator
	engine  *syncer.Engine
	hub     *notify.Hub
	service *app.Service
	owner   string

	db    *sql.DB
	email *notify.EmailSink
}

func newRuntime(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *runtime, err error) {
	rt := &runtime{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	opts := []chain.Option{
		chain.WithLogger(logger.Named("chain")),
		chain.WithHTTPClient(&http.Client{Timeout: cfg.RPCTimeout}),
		chain.WithRetries(uint64(cfg.RPCRetries), 0),
		chain.WithGasBudget(cfg.GasBudget),
	}
	rt.owner = cfg.OwnerAddress
	if cfg.SignerKey != "" {
		signer, err := chain.ParseEd25519Key(cfg.SignerKey)
		if err != nil {
			return nil, fmt.Errorf("signer key: %w", err)
		}
		opts = append(opts, chain.WithSigner(signer))
		if rt.owner == "" {
			rt.owner = signer.Address()
		}
		logger.Info("signer loaded", zap.String("address", signer.Address()))
	}
	rt.client = chain.NewClient(cfg.RPCURL, opts...)

	cacheStore, err := openCache(ctx, cfg, logger.Named("cache"))
	if err != nil {
		return nil, err
	}
	rt.cache = cacheStore

	rt.hub = notify.NewHub(0)
	sinks := notify.Multi{rt.hub, notify.LogSink{Logger: logger.Named("notify")}}
	emailCfg := notify.EmailConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	}
	if cfg.NotifyEmail != "" {
		emailCfg.To = []string{cfg.NotifyEmail}
	}
	if emailCfg.IsConfigured() {
		rt.email = notify.NewEmailSink(emailCfg, logger.Named("email"))
		sinks = append(sinks, rt.email)
	}

	explorer := cfg.ExplorerBase()
	rt.locator = locator.New(rt.client, rt.cache, cfg.FallbackObjectID, logger.Named("locator"))
	submitter := submit.New(rt.client, rt.cache, sinks, submit.Config{
		PackageID:   cfg.PackageID,
		Module:      cfg.Module,
		ExplorerURL: explorer,
	}, logger.Named("submit"))
	rt.engine = syncer.New(rt.client, rt.locator, submitter, rt.cache, sinks, syncer.Options{
		Owner:        rt.owner,
		TypeTag:      cfg.TypeTag(),
		PollInterval: cfg.PollInterval,
		ExplorerURL:  explorer,
	}, logger.Named("sync"))

	var ledger app.Ledger
	if cfg.DatabaseURL != "" {
		if rt.db, err = store.Open(ctx, cfg.DatabaseURL); err != nil {
			return nil, err
		}
		if err := store.ApplyMigrations(ctx, rt.db, cfg.MigrationsDir); err != nil {
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
		ledger = store.NewLedger(rt.db)
	}

	gate, err := authpw.NewGate(cfg.AdminPassword, cfg.AdminPasswordHash)
	if err != nil {
		return nil, err
	}
	secret := cfg.TokenSecret
	if secret == "" {
		secret = randomSecret()
		if gate.Configured() {
			logger.Warn("PORTFOLIO_TOKEN_SECRET not set; admin tokens will not survive a restart")
		}
	}

	rt.service = app.New(app.Options{TokenSecret: secret, AccessTTL: cfg.AccessTTL}, app.Deps{
		Engine:   rt.engine,
		Cache:    rt.cache,
		Ledger:   ledger,
		Hub:      rt.hub,
		Exporter: export.NewService(logger.Named("export")),
		Gate:     gate,
	}, logger.Named("app"))
	return rt, nil
}

func openCache(ctx context.Context, cfg config.Config, logger *zap.Logger) (cache.Store, error) {
	switch cfg.Cache {
	case config.CacheRedis:
		s, err := cache.NewRedisStore(cfg.RedisURL, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.CacheSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		s, err := cache.OpenSQLite(ctx, cfg.SQLitePath, cache.WithSQLiteLogger(logger))
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.CacheMemory:
		return cache.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache)
	}
}

func (rt *runtime) Close() {
	if rt.engine != nil {
		rt.engine.Close()
	}
	var errs []error
	if rt.email != nil {
		rt.email.Close()
	}
	if rt.cache != nil {
		errs = append(errs, rt.cache.Close())
	}
	if rt.db != nil {
		errs = append(errs, rt.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		rt.logger.Warn("shutdown error", zap.Error(err))
	}
}

func randomSecret() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
