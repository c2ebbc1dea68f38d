// Package dispatch spreads incoming fragments over partitions, each owning
// one reassembly manager, so that all fragments of a (rule, dtag) key are
// handled by the same goroutine.
package dispatch

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/serialx/hashring"

	"firestige.xyz/schc/internal/log"
	"firestige.xyz/schc/internal/reassembly"
	"firestige.xyz/schc/internal/schc"
)

var (
	ErrClosed    = errors.New("dispatch: closed")
	ErrQueueFull = errors.New("dispatch: partition queue is full")
)

// Handler receives the outcome of every fragment. It runs on the partition
// goroutine and must not block for long.
type Handler func(res reassembly.Result, err error)

// Config for a Dispatcher.
type Config struct {
	Partitions int
	QueueSize  int
	Reassembly reassembly.Config
}

type partition struct {
	id      int
	queue   chan []byte
	manager *reassembly.Manager
}

// Dispatcher routes fragments to partitions by consistent hash of
// "rule/dtag".
type Dispatcher struct {
	profile    schc.Profile
	partitions []*partition
	nodes      map[string]int
	ring       *hashring.HashRing
	handler    Handler

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	submitted int64
	processed int64
}

// New creates the partitions and starts their goroutines.
func New(cfg Config, handler Handler) (*Dispatcher, error) {
	if cfg.Partitions <= 0 {
		cfg.Partitions = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}

	d := &Dispatcher{
		profile:    cfg.Reassembly.Profile,
		partitions: make([]*partition, cfg.Partitions),
		nodes:      make(map[string]int, cfg.Partitions),
		handler:    handler,
	}

	names := make([]string, cfg.Partitions)
	for i := range d.partitions {
		m, err := reassembly.NewManager(cfg.Reassembly)
		if err != nil {
			return nil, err
		}
		d.partitions[i] = &partition{
			id:      i,
			queue:   make(chan []byte, cfg.QueueSize),
			manager: m,
		}
		names[i] = "partition-" + strconv.Itoa(i)
		d.nodes[names[i]] = i
	}
	d.ring = hashring.New(names)

	for _, p := range d.partitions {
		d.wg.Add(1)
		go d.run(p)
	}
	return d, nil
}

// Submit queues a raw fragment. The slice must not be modified afterwards.
func (d *Dispatcher) Submit(raw []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}

	p := d.route(raw)
	select {
	case p.queue <- raw:
		atomic.AddInt64(&d.submitted, 1)
		return nil
	default:
		return ErrQueueFull
	}
}

// route picks the partition for a fragment. Fragments whose header cannot be
// decoded go to partition 0, whose manager reports them as malformed.
func (d *Dispatcher) route(raw []byte) *partition {
	h, err := schc.Decode(d.profile, raw)
	if err != nil {
		return d.partitions[0]
	}
	return d.partitionFor(reassembly.Key{RuleID: h.RuleID, DTag: h.DTag})
}

func (d *Dispatcher) partitionFor(key reassembly.Key) *partition {
	node, ok := d.ring.GetNode(key.String())
	if !ok {
		return d.partitions[0]
	}
	return d.partitions[d.nodes[node]]
}

func (d *Dispatcher) run(p *partition) {
	defer d.wg.Done()
	logger := log.GetLogger().WithField("partition", p.id)
	logger.Debug("partition started")

	for raw := range p.queue {
		res, err := p.manager.OnFragment(raw)
		atomic.AddInt64(&d.processed, 1)
		if d.handler != nil {
			d.handler(res, err)
		}
	}
	logger.Debug("partition stopped")
}

// Purge ticks every partition's buffers once and returns the number expired.
func (d *Dispatcher) Purge() int {
	n := 0
	for _, p := range d.partitions {
		n += p.manager.Purge()
	}
	return n
}

// Run purges every interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Purge()
		}
	}
}

// Evict drops the in-flight buffer for key.
func (d *Dispatcher) Evict(key reassembly.Key) bool {
	return d.partitionFor(key).manager.Evict(key)
}

// Stats sums the counters of every partition.
func (d *Dispatcher) Stats() reassembly.Stats {
	var total reassembly.Stats
	for _, p := range d.partitions {
		s := p.manager.Stats()
		total.Active += s.Active
		total.Completed += s.Completed
		total.Duplicates += s.Duplicates
		total.Malformed += s.Malformed
		total.Rejected += s.Rejected
		total.Expired += s.Expired
		total.Evicted += s.Evicted
	}
	return total
}

// Pending returns the number of fragments submitted but not yet processed.
func (d *Dispatcher) Pending() int64 {
	return atomic.LoadInt64(&d.submitted) - atomic.LoadInt64(&d.processed)
}

// Close stops accepting fragments and waits for queued ones to be handled.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, p := range d.partitions {
		close(p.queue)
	}
	d.mu.Unlock()

	d.wg.Wait()
	log.GetLogger().Info("dispatcher closed")
	return nil
}
