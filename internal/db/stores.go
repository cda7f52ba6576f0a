package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/geocoder89/memberhub/internal/auth"
	"github.com/geocoder89/memberhub/internal/config"
	"github.com/geocoder89/memberhub/internal/observability"
	"github.com/geocoder89/memberhub/internal/redisclient"
	"github.com/geocoder89/memberhub/internal/repo/memory"
	mongorepo "github.com/geocoder89/memberhub/internal/repo/mongo"
	"github.com/geocoder89/memberhub/internal/repo/postgres"
	"github.com/geocoder89/memberhub/internal/session"
)

const memorySweepEvery = time.Minute

// Stores holds the credential and session stores selected by configuration
// and the connections behind them.
type Stores struct {
	Users    auth.UserStore
	Sessions session.Store

	mongoDB *mongo.Database
	closers []func(context.Context) error
	log     *slog.Logger
}

// OpenUsers opens only the credential store. The admin CLI needs nothing else.
func OpenUsers(ctx context.Context, cfg config.Config, log *slog.Logger) (*Stores, error) {
	s := &Stores{log: log}

	if err := s.openUsers(ctx, cfg); err != nil {
		_ = s.Close(context.Background())
		return nil, err
	}
	return s, nil
}

// Open opens both stores. With prom set every store call is timed.
func Open(ctx context.Context, cfg config.Config, log *slog.Logger, prom *observability.Prom) (*Stores, error) {
	s := &Stores{log: log}

	if err := s.openUsers(ctx, cfg); err != nil {
		_ = s.Close(context.Background())
		return nil, err
	}

	if err := s.openSessions(ctx, cfg); err != nil {
		_ = s.Close(context.Background())
		return nil, err
	}

	if prom != nil {
		s.Users = instrumentedUsers{next: s.Users, prom: prom, backend: cfg.UserStore}
		s.Sessions = instrumentedSessions{next: s.Sessions, prom: prom, backend: cfg.SessionStore}
	}

	return s, nil
}

func (s *Stores) openUsers(ctx context.Context, cfg config.Config) error {
	switch cfg.UserStore {
	case config.StoreMongo:
		mdb, err := s.mongo(cfg)
		if err != nil {
			return err
		}

		repo := mongorepo.NewUsersRepo(mdb)
		if err := repo.EnsureIndexes(ctx); err != nil {
			// legacy collections may already hold duplicate emails; login
			// still refuses ambiguous matches
			s.log.Warn("email index not created", "err", err)
		}
		s.Users = repo

	case config.StorePostgres:
		pool, err := NewPool(cfg.DBURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		s.closers = append(s.closers, func(context.Context) error {
			pool.Close()
			return nil
		})

		repo := postgres.NewUsersRepo(pool)
		if err := repo.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate users table: %w", err)
		}
		s.Users = repo

	case config.StoreMemory:
		s.Users = memory.NewUsersRepo()

	default:
		return fmt.Errorf("unknown user store %q", cfg.UserStore)
	}

	s.log.Info("credential store ready", "backend", cfg.UserStore)
	return nil
}

func (s *Stores) openSessions(ctx context.Context, cfg config.Config) error {
	switch cfg.SessionStore {
	case config.StoreRedis:
		rc, err := redisclient.Connect(ctx, redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return err
		}
		s.closers = append(s.closers, func(context.Context) error { return rc.Close() })
		s.Sessions = rc.SessionStore()

	case config.StoreMongo:
		mdb, err := s.mongo(cfg)
		if err != nil {
			return err
		}

		store := session.NewMongoStore(mdb)
		if err := store.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("session indexes: %w", err)
		}
		s.Sessions = store

	case config.StoreMemory:
		store := session.NewMemoryStore(memorySweepEvery)
		s.closers = append(s.closers, func(context.Context) error { return store.Close() })
		s.Sessions = store

	default:
		return fmt.Errorf("unknown session store %q", cfg.SessionStore)
	}

	s.log.Info("session store ready", "backend", cfg.SessionStore)
	return nil
}

// mongo connects on first use; both stores share one client.
func (s *Stores) mongo(cfg config.Config) (*mongo.Database, error) {
	if s.mongoDB != nil {
		return s.mongoDB, nil
	}

	client, mdb, err := NewMongo(cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return nil, err
	}

	s.closers = append(s.closers, client.Disconnect)
	s.mongoDB = mdb
	return mdb, nil
}

// Close releases connections in reverse order of opening.
func (s *Stores) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
