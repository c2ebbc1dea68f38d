package rules

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"firestige.xyz/schc/internal/schc"
)

var ErrNoFreeDTag = errors.New("rules: no free dtag")

// DTagAllocator hands out datagram tags per rule in round-robin order. A tag
// stays reserved for the hold period after allocation so a receiver's
// partial buffer for the same (rule, dtag) cannot absorb a new message.
type DTagAllocator struct {
	mu    sync.Mutex
	max   uint32
	next  map[uint32]uint32
	inUse *cache.Cache // "rule/dtag" → struct{}
}

// NewDTagAllocator sizes the tag space from p's dtag field. A zero hold keeps
// tags reserved until Release.
func NewDTagAllocator(p schc.Profile, hold time.Duration) *DTagAllocator {
	return &DTagAllocator{
		max:   p.DTag.Max(),
		next:  make(map[uint32]uint32),
		inUse: cache.New(hold, hold*2),
	}
}

// Allocate reserves the next free dtag for rule.
func (a *DTagAllocator) Allocate(rule uint32) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.next[rule]
	for i := uint32(0); i <= a.max; i++ {
		d := (start + i) % (a.max + 1)
		k := key(rule, d)
		if _, found := a.inUse.Get(k); found {
			continue
		}
		a.inUse.Set(k, struct{}{}, cache.DefaultExpiration)
		a.next[rule] = (d + 1) % (a.max + 1)
		return d, nil
	}
	return 0, fmt.Errorf("%w: all %d tags of rule %d held", ErrNoFreeDTag, a.max+1, rule)
}

// Release frees dtag before its hold period ends.
func (a *DTagAllocator) Release(rule, dtag uint32) {
	a.inUse.Delete(key(rule, dtag))
}

// Held returns the number of reserved tags across all rules.
func (a *DTagAllocator) Held() int { return a.inUse.ItemCount() }

func key(rule, dtag uint32) string { return fmt.Sprintf("%d/%d", rule, dtag) }
