package cli

import (
	"fmt"

	"github.com/daryltucker/cache-bench/internal/config"
	"github.com/daryltucker/cache-bench/internal/engine"
	"github.com/daryltucker/cache-bench/internal/generator"
	"github.com/daryltucker/cache-bench/internal/model"
	"github.com/daryltucker/cache-bench/internal/store"
	"github.com/daryltucker/cache-bench/internal/store/cosmos"
)

// openStore connects to an account; tests swap it for an in-memory store.
var openStore config.Opener = cosmos.Open

// env is everything a command needs after config loading.
type env struct {
	cfg    *config.Config
	runner *engine.Runner
	open   config.Opener
	suites map[string]*engine.Suite
}

func loadEnv(apply func(*config.Config)) (*env, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if apply != nil {
		apply(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	gen := generator.New(0)
	prov := engine.NewProvisioner(cfg.Throughput, cfg.EngineIngest(), gen)
	return &env{
		cfg:    cfg,
		runner: engine.NewRunner(prov, gen, cfg.EngineWorkload()),
		open:   sharedOpener(openStore),
		suites: map[string]*engine.Suite{},
	}, nil
}

// sharedOpener opens each account once so every suite reuses its client.
func sharedOpener(open config.Opener) config.Opener {
	clients := map[string]store.Client{}
	return func(conn model.Connection) (store.Client, error) {
		if c, ok := clients[conn.Account]; ok {
			return c, nil
		}
		c, err := open(conn)
		if err != nil {
			return nil, err
		}
		clients[conn.Account] = c
		return c, nil
	}
}

// suite builds name once; descriptors keep their cached containers across calls.
func (e *env) suite(name string) (*engine.Suite, error) {
	if s, ok := e.suites[name]; ok {
		return s, nil
	}
	ds, err := e.cfg.Descriptors(name, e.open)
	if err != nil {
		return nil, err
	}
	s := engine.NewSuite(name, e.runner, ds...)
	e.suites[name] = s
	return s, nil
}
