package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/zjrosen/reactor/internal/config"
	"github.com/zjrosen/reactor/internal/demo"
	"github.com/zjrosen/reactor/internal/flags"
	"github.com/zjrosen/reactor/internal/log"
	"github.com/zjrosen/reactor/internal/reactor"
	"github.com/zjrosen/reactor/internal/scheduler"
	"github.com/zjrosen/reactor/internal/tracing"
	"github.com/zjrosen/reactor/internal/watcher"
)

// callTimeout bounds how long a command waits for the event loop.
const callTimeout = 5 * time.Second

// session runs a library tree on its own event loop. Every method that
// touches the tree hops onto the loop goroutine first.
type session struct {
	loop       *scheduler.Loop
	tree       *reactor.Tree
	lib        *demo.Library
	provider   *tracing.Provider
	watcher    *watcher.Watcher
	configPath string

	ctx    context.Context
	cancel context.CancelFunc
}

// startSession starts the loop and builds an unmounted library tree. With
// watch set and a config file in use, edits to the file are applied to the
// running tree.
func startSession(ctx context.Context, cfg config.Config, configPath string, watch bool, opts ...demo.Option) (*session, error) {
	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &session{
		loop:       scheduler.NewLoop(),
		provider:   provider,
		configPath: configPath,
		ctx:        ctx,
		cancel:     cancel,
	}

	treeOpts := []reactor.TreeOption{
		reactor.WithConfig(cfg.Reactor),
		reactor.WithFlags(flags.New(cfg.Flags)),
	}
	if provider.Enabled() {
		treeOpts = append(treeOpts, reactor.WithTracer(provider.Tracer()))
	}
	s.tree = reactor.NewTree(s.loop, treeOpts...)
	s.lib = demo.New(opts...)

	go s.loop.Run(ctx)
	if err := s.loop.WaitForReady(ctx); err != nil {
		s.Close()
		return nil, err
	}

	if watch && cfg.Watch.Enabled && configPath != "" {
		if err := s.watch(cfg.Watch.Debounce); err != nil {
			log.ErrorErr(log.CatWatcher, "config watch disabled", err, "path", configPath)
		}
	}
	return s, nil
}

func (s *session) watch(debounce time.Duration) error {
	wcfg := watcher.DefaultConfig(s.configPath)
	if debounce > 0 {
		wcfg.Debounce = debounce
	}
	w, err := watcher.New(wcfg)
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		_ = w.Stop()
		return err
	}
	s.watcher = w

	go func() {
		for {
			select {
			case <-s.ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				s.reload()
			}
		}
	}()
	return nil
}

// reload applies the config file to the running tree. An invalid file is
// logged and the previous tuning kept.
func (s *session) reload() {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		log.ErrorErr(log.CatConfig, "config reload rejected", err, "path", s.configPath)
		return
	}
	s.tree.Reload(cfg.Reactor, flags.New(cfg.Flags))
}

// do runs fn on the loop and waits for it.
func (s *session) do(fn func()) error {
	ctx, cancel := context.WithTimeout(s.ctx, callTimeout)
	defer cancel()
	return s.loop.DoAndWait(ctx, fn)
}

// waitFor polls cond on the loop until it holds or timeout passes.
func (s *session) waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		var ok bool
		if err := s.do(func() { ok = cond() }); err != nil {
			return false
		}
		if ok {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Mount mounts the library and waits until its catalog is subscribed.
func (s *session) Mount() error {
	var err error
	if doErr := s.do(func() { err = s.tree.Mount(s.lib) }); doErr != nil {
		return doErr
	}
	if err != nil {
		return err
	}
	if !s.waitFor(callTimeout, func() bool { return s.lib.Catalog().State() == reactor.Connected }) {
		return fmt.Errorf("library did not become ready within %s", callTimeout)
	}
	return nil
}

// Unmount unmounts the library and waits out its unlisten delay.
func (s *session) Unmount() error {
	var err error
	if doErr := s.do(func() { err = s.lib.Unmount() }); doErr != nil {
		return doErr
	}
	if err != nil {
		return err
	}
	s.waitFor(callTimeout, func() bool { return s.lib.Reactor().State() == reactor.Unmounted })
	return nil
}

// Remount implements inspector.Driver.
func (s *session) Remount() error {
	var err error
	if doErr := s.do(func() {
		if uerr := s.lib.Unmount(); uerr != nil {
			log.Warn(log.CatReactor, "remount of an unmounted library", "error", uerr)
		}
		err = s.tree.Mount(s.lib)
	}); doErr != nil {
		return doErr
	}
	return err
}

// AddBook implements inspector.Driver.
func (s *session) AddBook(title string) (demo.Book, error) {
	var (
		book demo.Book
		err  error
	)
	if doErr := s.do(func() { book, err = s.lib.AddBook(title) }); doErr != nil {
		return demo.Book{}, doErr
	}
	return book, err
}

// CreateMember implements inspector.Driver.
func (s *session) CreateMember(name string) (string, error) {
	var (
		id  string
		err error
	)
	if doErr := s.do(func() { id, err = s.lib.CreateMember(name) }); doErr != nil {
		return "", doErr
	}
	return id, err
}

// Stats implements inspector.Driver.
func (s *session) Stats() (demo.Stats, error) {
	var (
		stats demo.Stats
		err   error
	)
	if doErr := s.do(func() { stats, err = s.lib.Stats() }); doErr != nil {
		return demo.Stats{}, doErr
	}
	return stats, err
}

// Flags implements inspector.Driver.
func (s *session) Flags() *flags.Registry {
	return s.tree.Flags()
}

// SetFlag implements inspector.Driver. The flag is written to the config
// file when there is one, then applied to the tree.
func (s *session) SetFlag(name string, on bool) error {
	next := s.tree.Flags().With(name, on)
	if s.configPath != "" {
		if err := config.SaveFlags(s.configPath, next.All()); err != nil {
			return err
		}
	}
	s.tree.Reload(s.tree.Config(), next)
	return nil
}

// Close stops the watcher, the loop and the tracer.
func (s *session) Close() {
	if s.watcher != nil {
		_ = s.watcher.Stop()
	}
	s.cancel()
	s.loop.Stop()
	s.tree.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.provider.Shutdown(ctx); err != nil {
		log.ErrorErr(log.CatConfig, "tracer shutdown failed", err)
	}
}
