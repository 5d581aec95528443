package radio

import (
	"sync"

	"go.uber.org/atomic"
)

// state is the process-wide roster and status cells shared by the workers and the
// control loop. Reads are lock-free. mu only orders writers: a worker publish and a
// radio power change never interleave, so a publish from a previous epoch is dropped
// as a whole.
type state struct {
	roster  *Roster
	scan    scanCell
	connect connectCell
	epoch   *atomic.Uint64

	mu sync.Mutex
}

func newState() *state {
	return &state{
		roster:  NewRoster(),
		scan:    newScanCell(),
		connect: newConnectCell(),
		epoch:   atomic.NewUint64(0),
	}
}

// commit runs fn if epoch is still the current radio epoch and reports whether it ran.
// fn must not block.
func (s *state) commit(epoch uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch.Load() != epoch {
		return false
	}
	fn()
	return true
}

// reset starts a new radio epoch with both statuses disabled. discard, if not
// nil, runs under the lock before the epoch changes.
func (s *state) reset(discard func()) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if discard != nil {
		discard()
	}
	e := s.epoch.Inc()
	s.scan.Store(ScanDisabled)
	s.connect.Store(ConnectState{Phase: ConnectDisabled})
	return e
}
