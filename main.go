// main.go
package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/ViniZap4/lumi-notes/auth"
	"github.com/ViniZap4/lumi-notes/config"
	httphandlers "github.com/ViniZap4/lumi-notes/http"
	"github.com/ViniZap4/lumi-notes/logging"
	"github.com/ViniZap4/lumi-notes/metrics"
	"github.com/ViniZap4/lumi-notes/notes"
	"github.com/ViniZap4/lumi-notes/storage"
	"github.com/ViniZap4/lumi-notes/storage/memory"
	"github.com/ViniZap4/lumi-notes/storage/postgres"
	"github.com/ViniZap4/lumi-notes/token"
	"github.com/ViniZap4/lumi-notes/ws"
)

func main() {
	configPath := pflag.String("config", "", "path to a YAML config file")
	addr := pflag.String("addr", "", "listen address, overrides the config")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("failed to load config")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	log, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("failed to set up logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	identities, noteStore, db, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	if db != nil {
		defer db.Close()
	}

	codec, err := token.NewCodec([]byte(cfg.SigningSecret), cfg.TokenLifetime)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token codec")
	}

	hasher := auth.NewHasher(auth.HashParams{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
	})
	accounts, err := auth.NewAccounts(identities, hasher, codec)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create accounts")
	}

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	deps := httphandlers.Deps{
		Notes:       notes.NewRepository(noteStore),
		Accounts:    accounts,
		Resolver:    auth.NewResolver(codec, identities),
		Hub:         hub,
		Metrics:     metrics.New(),
		Log:         log,
		CORSOrigins: cfg.CORSOrigins,
	}
	if db != nil {
		deps.Ping = db.PingContext
	}
	server := httphandlers.NewServer(deps)

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("lumi-notes listening")
		errc <- server.App().Listen(cfg.Addr)
	}()

	select {
	case err := <-errc:
		if err != nil {
			log.Fatal().Err(err).Msg("server stopped")
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Error().Err(err).Msg("shutdown failed")
	}
}

// openStores picks postgres when a database URL is configured and the
// in-memory stores otherwise. The returned db is nil for memory stores.
func openStores(ctx context.Context, cfg config.Config, log zerolog.Logger) (storage.IdentityStore, storage.NoteStore, *sql.DB, error) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("no database_url configured, using in-memory storage; data is lost on restart")
		return memory.NewIdentityStore(), memory.NewNoteStore(), nil, nil
	}

	if cfg.Migrate {
		applied, err := postgres.Migrate(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info().Bool("applied", applied).Msg("migrations checked")
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return postgres.NewIdentityStore(db), postgres.NewNoteStore(db), db, nil
}
