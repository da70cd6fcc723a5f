package production

import (
	"testing"

	"github.com/harelstate/statechart"
)

func TestMemoryRegistryRegisterAndLatest(t *testing.T) {
	r := NewMemoryRegistry()

	v1, err := r.Register("traffic", statechart.MachineSnapshot{MachineID: "traffic", Active: []string{"traffic.red"}})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	v2, err := r.Register("traffic", statechart.MachineSnapshot{MachineID: "traffic", Active: []string{"traffic.green"}})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if v1 == v2 {
		t.Fatalf("expected distinct versions, got %q twice", v1)
	}

	latest, err := r.Latest("traffic")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Active[0] != "traffic.green" {
		t.Errorf("got %v, want latest to be traffic.green", latest.Active)
	}

	old, err := r.Version("traffic", v1)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if old.Active[0] != "traffic.red" {
		t.Errorf("got %v, want the v1 snapshot to still be traffic.red", old.Active)
	}
}

func TestMemoryRegistryUnknownMachineErrors(t *testing.T) {
	r := NewMemoryRegistry()
	if _, err := r.Latest("nope"); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestMemoryRegistryListVersionsNewestFirst(t *testing.T) {
	r := NewMemoryRegistry()
	r.Register("traffic", statechart.MachineSnapshot{MachineID: "traffic"})
	r.Register("traffic", statechart.MachineSnapshot{MachineID: "traffic"})
	r.Register("traffic", statechart.MachineSnapshot{MachineID: "traffic"})

	versions, err := r.ListVersions("traffic")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 3 || versions[0] != "3" || versions[2] != "1" {
		t.Errorf("got %v, want newest-first [3 2 1]", versions)
	}
}

func TestMemoryRegistryListMachinesSorted(t *testing.T) {
	r := NewMemoryRegistry()
	r.Register("zeta", statechart.MachineSnapshot{})
	r.Register("alpha", statechart.MachineSnapshot{})

	got := r.ListMachines()
	if len(got) != 2 || got[0] != "alpha" || got[1] != "zeta" {
		t.Errorf("got %v, want sorted [alpha zeta]", got)
	}
}
