package radio

import (
	"fmt"
	"net"
	"strings"

	"go.uber.org/atomic"
)

// Address is a Bluetooth hardware address in canonical "AA:BB:CC:DD:EE:FF" form.
// It is the only identity key for a Device.
type Address string

// ParseAddress validates s as a 6-byte hardware address and returns its canonical form.
func ParseAddress(s string) (Address, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("parse address %q: %w", s, err)
	}
	if len(hw) != 6 {
		return "", fmt.Errorf("parse address %q: not a 48-bit address", s)
	}
	return Address(strings.ToUpper(hw.String())), nil
}

func (a Address) String() string { return string(a) }

// Device is one remote device as seen during a scan cycle.
type Device struct {
	Address   Address
	Name      string
	Paired    bool
	Connected bool
}

// DisplayName returns the advertised name, or the address when the device has none.
func (d Device) DisplayName() string {
	if d.Name == "" {
		return d.Address.String()
	}
	return d.Name
}

// Snapshot is one published roster version. It is never modified after publication;
// callers that need to change devices must work on Clone.
type Snapshot struct {
	Version uint64
	Devices []Device
}

// Len returns the number of devices, treating a nil snapshot as empty.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Devices)
}

// Clone returns a private copy of the devices.
func (s *Snapshot) Clone() []Device {
	if s == nil {
		return nil
	}
	out := make([]Device, len(s.Devices))
	copy(out, s.Devices)
	return out
}

// Connected returns the first connected device, if any.
func (s *Snapshot) Connected() (Device, bool) {
	if s == nil {
		return Device{}, false
	}
	for _, d := range s.Devices {
		if d.Connected {
			return d, true
		}
	}
	return Device{}, false
}

// Roster holds the current Snapshot. Reads never block; writers replace the whole
// snapshot so a reader always sees a complete device list.
type Roster struct {
	current *atomic.Pointer[Snapshot]
	version *atomic.Uint64
}

// NewRoster returns an empty roster at version 0.
func NewRoster() *Roster {
	return &Roster{
		current: atomic.NewPointer(&Snapshot{}),
		version: atomic.NewUint64(0),
	}
}

// Load returns the current snapshot.
func (r *Roster) Load() *Snapshot {
	return r.current.Load()
}

// Store publishes devices as a new snapshot and returns its version.
// The slice is copied, so the caller may keep using its own.
func (r *Roster) Store(devices []Device) uint64 {
	s := &Snapshot{
		Version: r.version.Inc(),
		Devices: make([]Device, len(devices)),
	}
	copy(s.Devices, devices)
	r.current.Store(s)
	return s.Version
}
