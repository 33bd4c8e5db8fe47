package aggregate

import (
	"math/big"
	"sort"
	"sync"

	"networth_aggregator/internal/domain/entity"
)

// Contribution is the last accepted report of one contributor.
type Contribution struct {
	Value  *big.Int      `json:"value"`
	Status entity.Status `json:"status"`
}

// Snapshot is a consistent, immutable view of a Sum.
type Snapshot struct {
	Name          string                  `json:"name"`
	Epoch         uint64                  `json:"epoch"`
	Seq           uint64                  `json:"seq"`
	Total         *big.Int                `json:"total"`
	Expected      int                     `json:"expected"`
	Reported      int                     `json:"reported"`
	Complete      bool                    `json:"complete"`
	Contributions map[string]Contribution `json:"contributions"`
	Pending       []string                `json:"pending,omitempty"`
}

// Listener receives a snapshot after every change that altered the sum.
// Listeners see snapshots in Seq order, one call at a time; a snapshot
// overtaken by a newer delivery is dropped. They must not call back into the Sum.
type Listener func(Snapshot)

// Sum is a running USD total over a fixed set of contributors.
// It is safe for concurrent use; reports commute, so arrival order does not matter.
type Sum struct {
	name string

	mu           sync.Mutex
	epoch        uint64
	contributors map[string]struct{}
	reported     map[string]Contribution
	// last known value per contributor, kept across error reports within an epoch
	values    map[string]*big.Int
	listeners []Listener
	seq       uint64

	notifyMu  sync.Mutex
	delivered uint64
}

// NewSum creates a sum expecting the given contributor keys. Epoch starts at 1.
func NewSum(name string, keys []string) *Sum {
	s := &Sum{
		name:     name,
		epoch:    1,
		reported: make(map[string]Contribution),
		values:   make(map[string]*big.Int),
	}
	s.contributors = keySet(keys)
	return s
}

// OnChange registers a listener. Listeners are called outside the state lock.
func (s *Sum) OnChange(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Epoch returns the current generation.
func (s *Sum) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Report records a contributor's value for the given epoch and returns whether the sum changed.
//
// Reports for a stale epoch or an unknown key are discarded. Loading reports
// leave the contributor pending. An error report with a nil value keeps the
// contributor's last known value (zero if it never succeeded). Repeating the
// previous value and status is a no-op.
func (s *Sum) Report(epoch uint64, key string, value *big.Int, status entity.Status) bool {
	if status == entity.StatusLoading {
		return false
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return false
	}
	if _, ok := s.contributors[key]; !ok {
		s.mu.Unlock()
		return false
	}

	next := value
	if next == nil {
		if status == entity.StatusError {
			next = s.values[key]
		}
		if next == nil {
			next = new(big.Int)
		}
	}
	next = new(big.Int).Set(next)

	if prev, ok := s.reported[key]; ok && prev.Status == status && prev.Value.Cmp(next) == 0 {
		s.mu.Unlock()
		return false
	}

	s.reported[key] = Contribution{Value: next, Status: status}
	s.values[key] = next
	s.seq++
	snap := s.snapshotLocked()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	s.notify(snap, listeners)
	return true
}

// Reset starts a new epoch. Reported values are cleared; when keys is non-nil
// it replaces the contributor set. Returns the new epoch.
func (s *Sum) Reset(keys []string) uint64 {
	s.mu.Lock()
	s.epoch++
	s.reported = make(map[string]Contribution)
	s.values = make(map[string]*big.Int)
	if keys != nil {
		s.contributors = keySet(keys)
	}
	epoch := s.epoch
	s.seq++
	snap := s.snapshotLocked()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	s.notify(snap, listeners)
	return epoch
}

// notify hands snap to the listeners unless a newer snapshot already went out.
func (s *Sum) notify(snap Snapshot, listeners []Listener) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if snap.Seq <= s.delivered {
		return
	}
	s.delivered = snap.Seq
	for _, l := range listeners {
		l(snap)
	}
}

// Total returns the sum of all reported values.
func (s *Sum) Total() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalLocked()
}

// Complete reports whether every contributor has settled to success or error.
func (s *Sum) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completeLocked()
}

// Snapshot returns a copy of the current state.
func (s *Sum) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Sum) totalLocked() *big.Int {
	total := new(big.Int)
	for _, c := range s.reported {
		total.Add(total, c.Value)
	}
	return total
}

func (s *Sum) completeLocked() bool {
	for key := range s.contributors {
		c, ok := s.reported[key]
		if !ok || !c.Status.Settled() {
			return false
		}
	}
	return true
}

func (s *Sum) snapshotLocked() Snapshot {
	contributions := make(map[string]Contribution, len(s.reported))
	for k, c := range s.reported {
		contributions[k] = Contribution{Value: new(big.Int).Set(c.Value), Status: c.Status}
	}
	var pending []string
	for key := range s.contributors {
		if _, ok := s.reported[key]; !ok {
			pending = append(pending, key)
		}
	}
	sort.Strings(pending)
	return Snapshot{
		Name:          s.name,
		Epoch:         s.epoch,
		Seq:           s.seq,
		Total:         s.totalLocked(),
		Expected:      len(s.contributors),
		Reported:      len(s.reported),
		Complete:      s.completeLocked(),
		Contributions: contributions,
		Pending:       pending,
	}
}

func keySet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}
