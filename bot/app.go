// Package bot wires the access-control and relay core to the Telegram
// runtime: configuration, state storage selection, credential resolution, and
// handler registration.
package bot

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	corebootstrap "gatebot/core/bootstrap"
	corecmd "gatebot/core/cmd"
	coretelegram "gatebot/core/telegram"
	"gatebot/core/telegram/router"
	"gatebot/gate/access"
	"gatebot/gate/passkey"
	"gatebot/gate/relay"
	"gatebot/gate/state"
)

// App holds the composed bot: shared store, domain components, and the
// command/callback registry.
type App struct {
	cfg    *Config
	token  string
	db     *sqlx.DB
	store  *state.Store
	msgr   *Messenger
	access *access.Controller
	relay  *relay.Router
	reg    *coretelegram.Registry
}

// Bootstrap initializes infrastructure and composes the application. It is
// shaped to plug into the shared cmd runner.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("bot: unexpected config type %T", carrier)
	}

	res, err := corebootstrap.Run(corebootstrap.Options{
		Config:         cfg.CoreConfig(),
		Database:       cfg.Database,
		EnableDatabase: cfg.Gate.Storage == StoragePostgres,
	})
	if err != nil {
		return nil, err
	}

	var persister state.Persister
	if cfg.Gate.Storage == StoragePostgres {
		persister = state.NewPGStore(res.DB)
	} else {
		persister = state.NewFileStore(cfg.Gate.StatePath)
	}

	store, err := state.Open(persister, cfg.Core.Telegram.AdminID)
	if err != nil {
		return nil, err
	}
	if err := applyGateOverrides(store, cfg.Gate); err != nil {
		return nil, err
	}

	token, err := ResolveToken(cfg, store)
	if err != nil {
		return nil, err
	}

	msgr := NewMessenger()
	keys := passkey.NewManager(store)

	app := &App{
		cfg:    cfg,
		token:  token,
		db:     res.DB,
		store:  store,
		msgr:   msgr,
		access: access.NewController(store, keys, msgr),
		relay:  relay.NewRouter(store, msgr),
		reg:    coretelegram.NewRegistry(),
	}
	app.registerCommands()
	app.registerCallbacks()
	return app, nil
}

// applyGateOverrides pushes config-level passkey settings into the persisted
// state so the document stays the single source of truth at runtime.
func applyGateOverrides(store *state.Store, gc GateConfig) error {
	if gc.PasskeyLength == 0 && gc.PasskeyTimeoutMinutes == 0 {
		return nil
	}
	return store.Do(func(tx *state.Txn) error {
		st := tx.State()
		if gc.PasskeyLength > 0 && st.PasskeyLength != gc.PasskeyLength {
			st.PasskeyLength = gc.PasskeyLength
			tx.Dirty()
		}
		if gc.PasskeyTimeoutMinutes > 0 && st.PasskeyTimeoutMinutes != gc.PasskeyTimeoutMinutes {
			st.PasskeyTimeoutMinutes = gc.PasskeyTimeoutMinutes
			tx.Dirty()
		}
		return nil
	})
}

// TelegramRunOptions assembles the runtime options for the shared cmd runner.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	core := a.cfg.CoreConfig()

	routes := router.CommandRoutes(a.reg, router.CommandRouteOptions{
		AdminID: core.Telegram.AdminID,
	})
	routes = append(routes, router.CallbackRoute(a.reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoute(a.reg, router.TextOptions{}))

	return coretelegram.RunOptions{
		Config:      core,
		Token:       a.token,
		Registry:    a.reg,
		Middlewares: coretelegram.DefaultMiddlewares(core, nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.msgr.Bind(rt.Bot, rt.Dispatcher)
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			if a.db != nil {
				return a.db.Close()
			}
			return nil
		},
	}, nil
}
