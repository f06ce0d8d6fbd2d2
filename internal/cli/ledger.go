package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/ledgerd/internal/config"
	"github.com/roach88/ledgerd/internal/engine"
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/publish"
	"github.com/roach88/ledgerd/internal/store"
)

// resolveEnv loads the environment and applies flag overrides.
func (o *RootOptions) resolveEnv() (config.Env, error) {
	var files []string
	if o.EnvFile != "" {
		files = append(files, o.EnvFile)
	}
	env, err := config.LoadEnv(files...)
	if err != nil {
		return config.Env{}, WrapExitError(ExitCommandError, "failed to load environment", err)
	}
	if o.Database != "" {
		env.DB = o.Database
	}
	if o.Driver != "" {
		if o.Driver != store.DriverCGO && o.Driver != store.DriverPureGo {
			return config.Env{}, NewExitError(ExitCommandError,
				fmt.Sprintf("unsupported driver %q (want %s or %s)", o.Driver, store.DriverCGO, store.DriverPureGo))
		}
		env.Driver = o.Driver
	}
	if o.Genesis != "" {
		env.Genesis = o.Genesis
	}
	return env, nil
}

// ledger is an engine rebuilt from the persisted log.
type ledger struct {
	env     config.Env
	genesis engine.Genesis
	store   *store.Store
	engine  *engine.Engine
	redis   *redis.Client
	logger  *slog.Logger
}

// openLedger opens the store, pins the genesis and replays the log. With
// writable set, the store is attached as recorder and, when
// LEDGERD_REDIS_ADDR is set, receipts are published to the event stream.
func openLedger(ctx context.Context, opts *RootOptions, writable bool) (*ledger, error) {
	env, err := opts.resolveEnv()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger()

	g, err := loadGenesis(env.Genesis)
	if err != nil {
		return nil, err
	}
	hash, err := g.Hash()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to hash genesis", err)
	}

	logger.Debug("opening database", "path", env.DB, "driver", env.Driver)
	st, err := store.OpenWithDriver(env.Driver, env.DB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	l := &ledger{env: env, genesis: g, store: st, logger: logger}

	if err := st.PinGenesis(ctx, hash); err != nil {
		l.Close()
		if errors.Is(err, store.ErrGenesisMismatch) {
			return nil, WrapExitError(ExitCommandError, "genesis does not match database", err)
		}
		return nil, WrapExitError(ExitCommandError, "failed to pin genesis", err)
	}

	log, err := st.ReadLog(ctx)
	if err != nil {
		l.Close()
		return nil, WrapExitError(ExitCommandError, "failed to read log", err)
	}

	engOpts := []engine.Option{engine.WithLogger(logger)}
	if writable {
		engOpts = append(engOpts, engine.WithRecorder(st))
		if env.RedisAddr != "" {
			client, err := publish.Dial(ctx, env.RedisAddr)
			if err != nil {
				l.Close()
				return nil, WrapExitError(ExitCommandError, "failed to connect to redis", err)
			}
			l.redis = client
			engOpts = append(engOpts, engine.WithObserver(
				publish.New(client, env.RedisStream, publish.WithLogger(logger)),
			))
		}
	}

	eng, err := engine.Replay(ctx, g, log, engOpts...)
	if err != nil {
		l.Close()
		return nil, WrapExitError(ExitFailure, "log does not replay", err)
	}
	l.engine = eng
	logger.Debug("ledger ready", "seq", eng.Seq(), "state_root", eng.StateRoot())
	return l, nil
}

// Close releases the store and the redis client.
func (l *ledger) Close() {
	if l.redis != nil {
		if err := l.redis.Close(); err != nil {
			l.logger.Error("error closing redis client", "error", err)
		}
	}
	if err := l.store.Close(); err != nil {
		l.logger.Error("error closing database", "error", err)
	}
}

func loadGenesis(path string) (engine.Genesis, error) {
	g, err := config.LoadGenesis(path)
	if err != nil {
		return engine.Genesis{}, WrapExitError(ExitCommandError, "failed to load genesis", err)
	}
	return g, nil
}

// parseRef splits "module.name".
func parseRef(ref string) (module, name string, err error) {
	module, name, ok := strings.Cut(ref, ".")
	if !ok || module == "" || name == "" {
		return "", "", NewExitError(ExitCommandError, fmt.Sprintf("expected module.name, got %q", ref))
	}
	return module, name, nil
}

// parseArgs decodes a JSON object flag, keeping integers exact.
func parseArgs(raw string) (ir.Object, error) {
	obj, err := ir.ParseObject([]byte(raw))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --args JSON", err)
	}
	return obj, nil
}
