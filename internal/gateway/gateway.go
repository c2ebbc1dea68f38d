// Package gateway runs the receive side: UDP in, reassembly, sinks out.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"firestige.xyz/schc/internal/config"
	"firestige.xyz/schc/internal/dispatch"
	"firestige.xyz/schc/internal/log"
	"firestige.xyz/schc/internal/metrics"
	"firestige.xyz/schc/internal/reassembly"
	"firestige.xyz/schc/internal/rules"
	"firestige.xyz/schc/internal/sink"
	"firestige.xyz/schc/internal/transport/udp"
)

const deliverTimeout = 5 * time.Second

// Option customizes a Gateway.
type Option func(*Gateway)

// WithSink replaces the sinks built from configuration.
func WithSink(s sink.Sink) Option {
	return func(g *Gateway) { g.sink = s }
}

// Gateway owns every receive-side component.
type Gateway struct {
	cfg    *config.Config
	rules  *rules.Table
	sink   sink.Sink
	logger log.Logger

	dispatcher *dispatch.Dispatcher
	listener   *udp.Listener
	metrics    *metrics.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the gateway from cfg. Nothing is bound until Start.
func New(cfg *config.Config, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		cfg:    cfg,
		logger: log.GetLogger().WithField("component", "gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}

	profile := cfg.ProfileSpec()
	policy, err := reassembly.ParseTTLPolicy(cfg.Reassembly.TTLPolicy)
	if err != nil {
		return nil, err
	}

	rc := reassembly.Config{
		Profile:        profile,
		TTL:            cfg.Reassembly.TTLTicks,
		Policy:         policy,
		MaxBuffers:     cfg.Reassembly.MaxBuffers,
		MaxPieces:      cfg.Reassembly.MaxPieces,
		IntegrityCheck: cfg.Reassembly.IntegrityCheck,
	}
	if cfg.RulesFile != "" {
		if g.rules, err = rules.Load(cfg.RulesFile, profile); err != nil {
			return nil, err
		}
		rc.Rules = g.rules
	}

	if g.sink == nil {
		if g.sink, err = sink.FromConfig(cfg.Sinks); err != nil {
			return nil, fmt.Errorf("failed to create sinks: %w", err)
		}
	}

	g.dispatcher, err = dispatch.New(dispatch.Config{
		Partitions: cfg.Reassembly.Partitions,
		QueueSize:  cfg.Reassembly.QueueSize,
		Reassembly: rc,
	}, g.handle)
	if err != nil {
		g.sink.Close()
		return nil, err
	}
	return g, nil
}

// Start binds the listener and the metrics server and begins serving.
func (g *Gateway) Start(ctx context.Context) error {
	if g.cfg.Metrics.Enabled {
		g.metrics = metrics.NewServer(g.cfg.Metrics.Listen, g.cfg.Metrics.Path)
		if err := g.metrics.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	l, err := udp.Listen(ctx, udp.ListenerConfig{
		Addr:        g.cfg.Transport.Listen,
		BatchSize:   g.cfg.Transport.BatchSize,
		MaxDatagram: g.cfg.Transport.MaxDatagram,
	})
	if err != nil {
		if g.metrics != nil {
			g.metrics.Stop(ctx)
		}
		return err
	}
	g.listener = l

	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel

	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		if err := l.Serve(runCtx, g.submit); err != nil {
			g.logger.WithError(err).Error("listener stopped")
		}
	}()
	go func() {
		defer g.wg.Done()
		g.dispatcher.Run(runCtx, g.cfg.Reassembly.TickInterval)
	}()

	g.logger.WithFields(map[string]interface{}{
		"listen":     l.Addr().String(),
		"profile":    g.cfg.Profile,
		"partitions": g.cfg.Reassembly.Partitions,
		"ttl_ticks":  g.cfg.Reassembly.TTLTicks,
		"ttl_policy": g.cfg.Reassembly.TTLPolicy,
	}).Info("gateway started")
	return nil
}

// Addr returns the UDP address fragments are received on.
func (g *Gateway) Addr() net.Addr {
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

// Stats returns the reassembly counters.
func (g *Gateway) Stats() reassembly.Stats { return g.dispatcher.Stats() }

// Stop stops receiving, drains queued fragments and closes the sinks.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.cancel != nil {
		g.cancel()
	}
	g.wg.Wait()

	var errs []error
	if g.listener != nil {
		errs = append(errs, g.listener.Close())
	}
	errs = append(errs, g.dispatcher.Close(), g.sink.Close())
	if g.metrics != nil {
		errs = append(errs, g.metrics.Stop(ctx))
	}

	s := g.dispatcher.Stats()
	g.logger.WithFields(map[string]interface{}{
		"completed":  s.Completed,
		"expired":    s.Expired,
		"duplicates": s.Duplicates,
		"malformed":  s.Malformed,
	}).Info("gateway stopped")
	return errors.Join(errs...)
}

// Run starts the gateway and blocks until ctx is done.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return g.Stop(context.Background())
}

func (g *Gateway) submit(raw []byte) {
	if err := g.dispatcher.Submit(raw); err != nil {
		metrics.FragmentsReceivedTotal.WithLabelValues(metrics.StatusRejected).Inc()
		g.logger.WithError(err).Warn("fragment dropped")
	}
}

func (g *Gateway) handle(res reassembly.Result, err error) {
	switch res.Status {
	case reassembly.StatusCompleted:
		g.deliver(res)
	case reassembly.StatusMalformed, reassembly.StatusUnknownRule, reassembly.StatusRejected:
		g.logger.WithError(err).WithField("key", res.Key.String()).Debug("fragment not accepted")
	case reassembly.StatusDuplicate:
		g.logger.WithField("key", res.Key.String()).Debug("duplicate fragment")
	}
}

func (g *Gateway) deliver(res reassembly.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	msg := sink.Message{Key: res.Key, Payload: res.Payload, CompletedAt: time.Now()}
	if err := g.sink.Deliver(ctx, msg); err != nil {
		g.logger.WithError(err).WithField("key", res.Key.String()).Error("message delivery failed")
	}
}
