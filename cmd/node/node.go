package main

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"AgentBounty/internal/api"
	"AgentBounty/internal/bounty"
	"AgentBounty/internal/escrow"
	"AgentBounty/internal/events"
	"AgentBounty/internal/logger"
	"AgentBounty/internal/metrics"
	"AgentBounty/internal/registry"
	"AgentBounty/internal/storage"
	"AgentBounty/internal/types"
)

// Node represents a running AgentBounty node.
type Node struct {
	cfg      *Config
	storage  *storage.Storage
	bus      *events.Bus
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	machine  *bounty.Machine
	api      *api.Server
	stopLog  func() // stopLog unsubscribes the event logger
}

// NewNode creates and initializes a new node.
func NewNode(cfg *Config) (*Node, error) {
	n := &Node{cfg: cfg}

	if err := n.initStorage(); err != nil {
		return nil, err
	}

	if err := n.initMachine(); err != nil {
		n.Close()
		return nil, err
	}

	if cfg.Bootstrap {
		if err := n.bootstrap(); err != nil {
			n.Close()
			return nil, err
		}
	}

	n.api = api.New(cfg.HTTPAddress, n.machine, api.Options{
		Bus:      n.bus,
		Gatherer: n.registry,
		Faucet:   cfg.Faucet,
	})

	return n, nil
}

// initStorage initializes the Pebble storage.
func (n *Node) initStorage() error {
	if err := os.MkdirAll(n.cfg.DataPath, 0755); err != nil {
		return fmt.Errorf("create data directory:\n%w", err)
	}

	db, err := storage.New(filepath.Join(n.cfg.DataPath, "db"))
	if err != nil {
		return fmt.Errorf("init storage:\n%w", err)
	}

	n.storage = db

	return nil
}

// initMachine wires the state machine to the event bus and metrics.
func (n *Node) initMachine() error {
	vault, err := n.cfg.feeVault()
	if err != nil {
		return err
	}

	n.bus = events.NewBus(n.cfg.EventBuffer)

	n.registry = prometheus.NewRegistry()
	n.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	n.metrics = metrics.New(n.registry, n.bus.Dropped)

	var locked uint64
	err = n.storage.View(func(r storage.Reader) error {
		var err error
		locked, err = escrow.TotalEscrowed(r)
		return err
	})
	if err != nil {
		return fmt.Errorf("read escrow total:\n%w", err)
	}
	n.metrics.SetLocked(locked)

	n.machine = bounty.New(n.storage,
		bounty.WithFeeVault(vault),
		bounty.WithObserver(n.metrics),
		bounty.WithBus(n.bus),
	)

	return nil
}

// bootstrap initializes the protocol with the node key as authority.
// An existing singleton is kept as is.
func (n *Node) bootstrap() error {
	var authority types.Pubkey
	copy(authority[:], n.cfg.PrivateKey.Public().(ed25519.PublicKey))

	_, err := n.machine.Initialize(authority)
	if errors.Is(err, registry.ErrAlreadyInitialized) {
		logger.Info("protocol already initialized")
		return nil
	}

	if err != nil {
		return fmt.Errorf("initialize protocol:\n%w", err)
	}

	return nil
}

// Run starts the node and blocks until shutdown signal.
func (n *Node) Run() error {
	start := time.Now()
	report, err := n.machine.Audit()
	switch {
	case errors.Is(err, registry.ErrNotInitialized):
		logger.Warn("protocol not initialized, waiting for POST /protocol/initialize")
	case err != nil:
		n.Close()
		return fmt.Errorf("audit state:\n%w", err)
	case !report.OK():
		for _, v := range report.Violations {
			logger.Error("invariant violated", "detail", v)
		}
		n.Close()
		return fmt.Errorf("state audit found %d violations", len(report.Violations))
	default:
		logger.Info("state audit passed",
			"bounties", report.Bounties,
			"escrowed", report.Escrowed,
			"events", report.Events,
			logger.Timed(start),
		)
	}

	ch, cancel := n.bus.Subscribe()
	n.stopLog = cancel
	go n.processEvents(ch)

	if err := n.api.Start(); err != nil {
		n.Close()
		return fmt.Errorf("start api:\n%w", err)
	}

	return n.waitForShutdown()
}

// processEvents logs committed events until the subscription closes.
func (n *Node) processEvents(ch <-chan *events.Record) {
	log := logger.With("component", "events")

	for rec := range ch {
		log.Debug("event",
			"seq", rec.Seq,
			"kind", rec.Name(),
			"bounty", rec.BountyID,
			"actor", rec.Actor.Short(),
		)
	}
}

// waitForShutdown blocks until SIGINT or SIGTERM is received.
func (n *Node) waitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return n.Close()
}

// Close shuts down all node components gracefully.
func (n *Node) Close() error {
	if n.api != nil {
		n.api.Stop()
	}

	if n.stopLog != nil {
		n.stopLog()
	}

	if n.storage != nil {
		return n.storage.Close()
	}

	return nil
}
