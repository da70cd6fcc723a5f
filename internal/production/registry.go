package production

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/harelstate/statechart"
)

// sentinel errors, matching the teacher's internal/core.Registry errors.
var (
	ErrNotFound = fmt.Errorf("statechart/production: version or machine not found")
)

// MemoryRegistry is a process-local, in-memory Registry: every Register
// call appends a new monotonically-numbered version rather than
// overwriting, so Version/ListVersions can recover any prior snapshot. The
// teacher only declares the Registry interface (internal/core/registry.go)
// without a stdlib implementation; no third-party store appears anywhere
// in the retrieved pack for this concern, so a mutex-guarded map is the
// grounded choice here, matching the teacher's own preference for
// stdlib-only core-tier code.
type MemoryRegistry struct {
	mu       sync.Mutex
	versions map[string][]versionedSnapshot
}

type versionedSnapshot struct {
	version  string
	snapshot statechart.MachineSnapshot
}

// NewMemoryRegistry constructs an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{versions: map[string][]versionedSnapshot{}}
}

func (r *MemoryRegistry) Register(machineID string, snapshot statechart.MachineSnapshot) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := len(r.versions[machineID]) + 1
	version := strconv.Itoa(next)
	r.versions[machineID] = append(r.versions[machineID], versionedSnapshot{version: version, snapshot: snapshot})
	return version, nil
}

func (r *MemoryRegistry) Latest(machineID string) (statechart.MachineSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.versions[machineID]
	if len(list) == 0 {
		return statechart.MachineSnapshot{}, ErrNotFound
	}
	return list[len(list)-1].snapshot, nil
}

func (r *MemoryRegistry) Version(machineID, version string) (statechart.MachineSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.versions[machineID] {
		if v.version == version {
			return v.snapshot, nil
		}
	}
	return statechart.MachineSnapshot{}, ErrNotFound
}

func (r *MemoryRegistry) ListVersions(machineID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list, ok := r.versions[machineID]
	if !ok {
		return nil, ErrNotFound
	}
	versions := make([]string, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		versions = append(versions, list[i].version) // newest first
	}
	return versions, nil
}

func (r *MemoryRegistry) ListMachines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.versions))
	for id := range r.versions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
