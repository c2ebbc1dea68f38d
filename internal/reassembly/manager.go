package reassembly

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"firestige.xyz/schc/internal/log"
	"firestige.xyz/schc/internal/metrics"
	"firestige.xyz/schc/internal/schc"
)

const (
	DefaultTTL        = 60
	DefaultMaxBuffers = 4096
	DefaultMaxPieces  = 1024
)

// Key identifies one in-flight message.
type Key struct {
	RuleID uint32
	DTag   uint32
}

func (k Key) String() string { return fmt.Sprintf("%d/%d", k.RuleID, k.DTag) }

// Status classifies what OnFragment did with a fragment.
type Status int

const (
	StatusInProgress Status = iota
	StatusCompleted
	StatusDuplicate
	StatusMalformed
	StatusUnknownRule
	StatusRejected
)

var statusNames = [...]string{
	StatusInProgress:  metrics.StatusInProgress,
	StatusCompleted:   metrics.StatusCompleted,
	StatusDuplicate:   metrics.StatusDuplicate,
	StatusMalformed:   metrics.StatusMalformed,
	StatusUnknownRule: metrics.StatusUnknownRule,
	StatusRejected:    metrics.StatusRejected,
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Result is returned for every fragment. Payload is set only when Status is
// StatusCompleted.
type Result struct {
	Status  Status
	Key     Key
	Payload []byte
}

// TTLPolicy selects how a buffer's countdown behaves on new fragments.
type TTLPolicy int

const (
	// TTLAbsolute counts down from buffer creation.
	TTLAbsolute TTLPolicy = iota
	// TTLResetOnReceive restarts the countdown on every accepted fragment.
	TTLResetOnReceive
)

// ParseTTLPolicy accepts "absolute" and "reset_on_receive".
func ParseTTLPolicy(s string) (TTLPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "absolute":
		return TTLAbsolute, nil
	case "reset_on_receive", "reset-on-receive":
		return TTLResetOnReceive, nil
	default:
		return TTLAbsolute, fmt.Errorf("unknown ttl policy: %q", s)
	}
}

func (p TTLPolicy) String() string {
	if p == TTLResetOnReceive {
		return "reset_on_receive"
	}
	return "absolute"
}

// RuleFilter tells the manager which rule ids are provisioned.
type RuleFilter interface {
	Known(ruleID uint32) bool
}

// integrityRules is implemented by rule tables that enable the check
// sequence per rule.
type integrityRules interface {
	IntegrityCheck(ruleID uint32) bool
}

// Config for a Manager. Zero limits take the package defaults.
type Config struct {
	Profile    schc.Profile
	TTL        int
	Policy     TTLPolicy
	MaxBuffers int
	MaxPieces  int
	// IntegrityCheck expects a check sequence on every terminal fragment.
	IntegrityCheck bool
	// Rules, when set, rejects fragments for unprovisioned rule ids.
	Rules RuleFilter
}

// Stats are cumulative counters since the manager was created.
type Stats struct {
	Active     int
	Completed  uint64
	Duplicates uint64
	Malformed  uint64
	Rejected   uint64
	Expired    uint64
	Evicted    uint64
}

// Manager reassembles fragments for every (rule id, dtag) pair. All methods
// are safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	buffers map[Key]*Buffer
	stats   Stats
	logger  log.Logger
}

// NewManager validates cfg and returns an empty manager.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Profile.Validate(); err != nil {
		return nil, err
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxBuffers <= 0 {
		cfg.MaxBuffers = DefaultMaxBuffers
	}
	if cfg.MaxPieces <= 0 {
		cfg.MaxPieces = DefaultMaxPieces
	}
	return &Manager{
		cfg:     cfg,
		buffers: make(map[Key]*Buffer),
		logger:  log.GetLogger().WithField("component", "reassembly"),
	}, nil
}

// OnFragment feeds one raw fragment. Malformed, unknown-rule and rejected
// fragments are reported through both the Status and a wrapped error; every
// other outcome returns a nil error.
//
// A final fragment that finds no buffer for its key completes at once with
// its own payload. Without an integrity check this means a final fragment
// that overtakes its continuations is delivered alone and the continuations
// then start a new buffer. With an integrity check it completes at once only
// when the check sequence matches, so any arrival order reassembles.
func (m *Manager) OnFragment(raw []byte) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.onFragment(raw)
	metrics.FragmentsReceivedTotal.WithLabelValues(res.Status.String()).Inc()
	switch res.Status {
	case StatusCompleted:
		m.stats.Completed++
		metrics.MessagesCompletedTotal.Inc()
		metrics.MessageBytes.Observe(float64(len(res.Payload)))
	case StatusDuplicate:
		m.stats.Duplicates++
	case StatusMalformed, StatusUnknownRule:
		m.stats.Malformed++
	case StatusRejected:
		m.stats.Rejected++
	}
	return res, err
}

func (m *Manager) onFragment(raw []byte) (Result, error) {
	p := m.cfg.Profile

	h, payload, err := schc.Split(p, raw)
	if err != nil {
		return Result{Status: StatusMalformed}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	key := Key{RuleID: h.RuleID, DTag: h.DTag}
	if err := p.Check(h); err != nil {
		return Result{Status: StatusMalformed, Key: key}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	last := h.IsFinal(p)
	if !last && h.FCN == 0 && p.MaxFCN() >= 1 {
		return Result{Status: StatusMalformed, Key: key}, fmt.Errorf("%w: fcn 0 is never sent", ErrMalformed)
	}

	if m.cfg.Rules != nil && !m.cfg.Rules.Known(h.RuleID) {
		return Result{Status: StatusUnknownRule, Key: key}, fmt.Errorf("%w: %d", ErrUnknownRule, h.RuleID)
	}

	integrity := m.integrity(h.RuleID)
	var sum uint32
	if last && integrity {
		if sum, payload, err = schc.SplitRCS(payload); err != nil {
			return Result{Status: StatusMalformed, Key: key}, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
	}

	b, ok := m.buffers[key]
	if !ok && last && (!integrity || schc.Checksum(payload) == sum) {
		// Whole message in one fragment.
		return Result{Status: StatusCompleted, Key: key, Payload: slices.Clone(payload)}, nil
	}

	if !ok {
		if len(m.buffers) >= m.cfg.MaxBuffers {
			return Result{Status: StatusRejected, Key: key}, fmt.Errorf("%w: %d buffers in progress", ErrReassemblyLimit, len(m.buffers))
		}
		b = NewBuffer(m.cfg.TTL, m.windowSize())
		m.buffers[key] = b
		metrics.ReassemblyActiveBuffers.Inc()
	}

	if b.Len() >= m.cfg.MaxPieces {
		m.evictLocked(key)
		return Result{Status: StatusRejected, Key: key}, fmt.Errorf("%w: %d pieces for %s", ErrReassemblyLimit, m.cfg.MaxPieces, key)
	}

	offset := int(p.MaxFCN() - h.FCN)
	pos := b.Position(h.Window, offset, last)
	if b.Receive(pos, last, payload) == Duplicate {
		return Result{Status: StatusDuplicate, Key: key}, nil
	}
	if last && integrity {
		b.SetChecksum(sum)
	}
	if m.cfg.Policy == TTLResetOnReceive {
		b.Touch()
	}

	if !b.IsComplete() {
		return Result{Status: StatusInProgress, Key: key}, nil
	}
	msg, err := b.Assemble()
	if err != nil {
		return Result{Status: StatusInProgress, Key: key}, nil
	}
	delete(m.buffers, key)
	metrics.ReassemblyActiveBuffers.Dec()
	return Result{Status: StatusCompleted, Key: key, Payload: msg}, nil
}

func (m *Manager) integrity(ruleID uint32) bool {
	if m.cfg.IntegrityCheck {
		return true
	}
	if r, ok := m.cfg.Rules.(integrityRules); ok {
		return r.IntegrityCheck(ruleID)
	}
	return false
}

func (m *Manager) windowSize() int {
	if !m.cfg.Profile.HasWindow() {
		return 0
	}
	return m.cfg.Profile.WindowSize()
}

// Purge ticks every buffer once and drops the expired ones. It returns the
// number of buffers dropped.
func (m *Manager) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for key, b := range m.buffers {
		if b.Tick() {
			continue
		}
		delete(m.buffers, key)
		expired++
		if m.logger.IsDebugEnabled() {
			m.logger.WithFields(map[string]interface{}{
				"key":    key.String(),
				"pieces": b.Len(),
				"bytes":  b.Bytes(),
			}).Debug("reassembly buffer expired")
		}
	}

	m.stats.Expired += uint64(expired)
	metrics.ReassemblyExpiredTotal.Add(float64(expired))
	metrics.ReassemblyActiveBuffers.Sub(float64(expired))
	return expired
}

// Evict drops the buffer for key immediately. It reports whether one existed.
func (m *Manager) Evict(key Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.evictLocked(key)
}

func (m *Manager) evictLocked(key Key) bool {
	b, ok := m.buffers[key]
	if !ok {
		return false
	}
	delete(m.buffers, key)
	m.stats.Evicted++
	metrics.ReassemblyActiveBuffers.Dec()
	metrics.ReassemblyEvictedTotal.Inc()
	m.logger.WithFields(map[string]interface{}{
		"key":    key.String(),
		"pieces": b.Len(),
	}).Debug("reassembly buffer evicted")
	return true
}

// Run calls Purge every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Purge()
		}
	}
}

// Active returns the number of buffers in progress.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffers)
}

// Stats returns a snapshot of the manager counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Active = len(m.buffers)
	return s
}
