// Package rina is the public API: a Core process hosts one or more
// namespaces' isolation domains behind Unix-socket control devices,
// bundling the process-wide singletons every accepted connection's
// dispatcher needs (§12 "pkg/rina: public API: Core, Config,
// RegisterFactory, OpenControlDevice"). It generalizes the teacher's
// single-device CreateAndServe/StopAndDelete lifecycle to a multi-
// namespace daemon: construction order still rolls back on partial
// failure, and teardown still waits for every listener's goroutines to
// exit before returning.
package rina

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	coreerr "github.com/dif-systems/rina-core/errors"
	"github.com/dif-systems/rina-core/internal/broadcast"
	"github.com/dif-systems/rina-core/internal/dm"
	"github.com/dif-systems/rina-core/internal/factory"
	"github.com/dif-systems/rina-core/internal/flowalloc"
	"github.com/dif-systems/rina-core/internal/logging"
	"github.com/dif-systems/rina-core/internal/metrics"
	"github.com/dif-systems/rina-core/internal/transport"
)

// Config configures a Core. The zero value is valid: FlowDelWaitMs
// defaults to lifecycle.DefaultFlowDelWaitMs and PrivilegedUIDs defaults
// to root-only, matching transport.Config's own defaults.
type Config struct {
	// FlowDelWaitMs overrides the put-queue grace period every namespace's
	// FlowLifecycle is built with. Zero means the spec default.
	FlowDelWaitMs int64

	// PrivilegedUIDs grants uipcp/admin capability to control devices
	// connecting from these uids, in addition to uid 0.
	PrivilegedUIDs map[uint32]bool

	Logger *logging.Logger
}

// Core bundles the process-wide singletons a running daemon needs: the
// namespace-keyed DM manager, the factory registry plugins register
// against, the flow allocator and update broadcaster every dispatcher
// shares, and the Prometheus registry that scrapes them live.
type Core struct {
	Manager   *dm.Manager
	Factories *factory.Registry
	FlowAlloc *flowalloc.Allocator
	Broadcast *broadcast.Broadcaster
	Metrics   *metrics.Registry

	cfg Config
	log *logging.Logger

	mu        sync.Mutex
	listeners map[string]*transport.Listener
	group     *errgroup.Group
	groupCtx  context.Context
	cancel    context.CancelFunc
}

// New builds a Core ready to register factories and open control
// devices. Nothing is listening yet — New only wires the singletons,
// mirroring the teacher's DefaultParams/createController split between
// "describe what to build" and "actually build it".
func New(cfg Config) *Core {
	log := cfg.Logger
	if log == nil {
		log = logging.Default().With("component", "rina.core")
	}

	factories := factory.NewRegistry()
	b := broadcast.New()
	dmCfg := dm.DefaultConfig()
	if cfg.FlowDelWaitMs > 0 {
		dmCfg.FlowDelWaitMs = cfg.FlowDelWaitMs
	}
	mgr := dm.NewManager(factories, dmCfg, b.Hook)
	flowAlloc := flowalloc.NewAllocator(factories)
	reg := metrics.NewRegistry(mgr)

	ctx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(ctx)

	return &Core{
		Manager:   mgr,
		Factories: factories,
		FlowAlloc: flowAlloc,
		Broadcast: b,
		Metrics:   reg,
		cfg:       cfg,
		log:       log,
		listeners: make(map[string]*transport.Listener),
		group:     group,
		groupCtx:  groupCtx,
		cancel:    cancel,
	}
}

// RegisterFactory adds f to the Core's factory registry (§4.E). Must be
// called before any IPCP_CREATE names f.DIFType.
func (c *Core) RegisterFactory(f *factory.Factory) error {
	return c.Factories.Register(f)
}

// OpenControlDevice binds socketPath and starts accepting connections for
// namespace, supervised by the Core's errgroup so Close can wait for it
// to exit cleanly. Returns the bound Listener; callers needing to close
// one namespace's socket early may call Listener.Close directly instead
// of tearing down the whole Core.
func (c *Core) OpenControlDevice(namespace, socketPath string) (*transport.Listener, error) {
	ln, err := transport.Listen(transport.Config{
		Namespace:      namespace,
		SocketPath:     socketPath,
		Manager:        c.Manager,
		Factories:      c.Factories,
		FlowAlloc:      c.FlowAlloc,
		Broadcast:      c.Broadcast,
		PrivilegedUIDs: c.cfg.PrivilegedUIDs,
		Recorder:       c.Metrics,
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if _, exists := c.listeners[namespace]; exists {
		c.mu.Unlock()
		ln.Close()
		return nil, coreerr.New("rina.OpenControlDevice", coreerr.Busy, "namespace already has a control device open")
	}
	c.listeners[namespace] = ln
	c.mu.Unlock()

	c.group.Go(func() error {
		err := ln.Serve(c.groupCtx)
		c.log.Info("control device stopped serving", "namespace", namespace, "err", err)
		return err
	})

	c.log.Info("control device listening", "namespace", namespace, "socket", socketPath)
	return ln, nil
}

// MetricsHandler serves the Core's Prometheus registry in the text
// exposition format, for cmd/rina-cored to mount at /metrics.
func (c *Core) MetricsHandler() http.Handler {
	return c.Metrics.Handler()
}

// Namespaces lists every namespace with a currently open control device.
func (c *Core) Namespaces() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.listeners))
	for ns := range c.listeners {
		out = append(out, ns)
	}
	return out
}

// Close cancels every open listener's Serve loop and blocks until all of
// them have exited, mirroring the teacher's StopAndDelete: cancel first,
// then wait for the workers it started to actually finish before
// returning control to the caller.
func (c *Core) Close() error {
	c.cancel()

	c.mu.Lock()
	listeners := make([]*transport.Listener, 0, len(c.listeners))
	for _, ln := range c.listeners {
		listeners = append(listeners, ln)
	}
	c.mu.Unlock()

	for _, ln := range listeners {
		if err := ln.Close(); err != nil {
			c.log.Warn("error closing control device", "err", err)
		}
	}

	if err := c.group.Wait(); err != nil {
		return fmt.Errorf("rina: core shutdown: %w", err)
	}
	return nil
}
