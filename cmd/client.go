package cmd

import (
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/cscsync/internal/bootstrap"
	"github.com/example/cscsync/internal/config"
	"github.com/example/cscsync/internal/localstore"
	"github.com/example/cscsync/internal/logger"
	"github.com/example/cscsync/internal/progress"
	"github.com/example/cscsync/internal/syncclient"
	"github.com/example/cscsync/internal/todayunique"
)

// clientApp is the client engine wired for one CLI invocation, which plays
// the role of one page load.
type clientApp struct {
	cfg        *config.ClientConfig
	kv         *localstore.SQLiteKV
	store      *localstore.Store
	boot       *bootstrap.Bootstrapper
	engine     *progress.Engine
	reconciler *todayunique.Reconciler
	loc        *time.Location
	log        *zap.SugaredLogger
}

func openClient(cmd *cobra.Command) (*clientApp, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	cfg.LocalDB = flagOr(cmd, "local", cfg.LocalDB)
	cfg.ServerURL = flagOr(cmd, "server", cfg.ServerURL)
	cfg.Identity = flagOr(cmd, "identity", cfg.Identity)

	log, err := logger.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	kv, err := localstore.OpenSQLite(cfg.LocalDB)
	if err != nil {
		return nil, errors.Wrap(err, "open local store")
	}
	store := localstore.New(kv, log)

	client := syncclient.New(cfg.ServerURL,
		syncclient.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		syncclient.WithIdentity(cfg.IdentityHeader, cfg.Identity),
		syncclient.WithLogger(log),
	)
	cached := func() (bootstrap.Credentials, bool) {
		key, user, ok := store.CachedSession(cfg.Identity)
		return bootstrap.Credentials{User: user, Key: key}, ok
	}
	boot := bootstrap.New(bootstrap.Cached(cached, client.Handshake(false)),
		bootstrap.WithLogger(log),
		bootstrap.OnReady(func(s bootstrap.Session) { store.SetSessionKey(s.Key, s.User) }),
	)
	reconciler := todayunique.New(store, client, boot, nil, log)
	engine := progress.New(store, client, boot,
		progress.WithLogger(log),
		progress.WithClock(time.Now, loc),
		progress.WithQualifier(reconciler),
	)

	return &clientApp{
		cfg:        cfg,
		kv:         kv,
		store:      store,
		boot:       boot,
		engine:     engine,
		reconciler: reconciler,
		loc:        loc,
		log:        log,
	}, nil
}

func (a *clientApp) Close() {
	a.log.Sync()
	a.kv.Close()
}
