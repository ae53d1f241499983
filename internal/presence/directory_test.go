package presence

import (
	"errors"
	"reflect"
	"testing"
)

func newDirectory(t *testing.T, participants ...Participant) *Directory {
	t.Helper()
	d := NewDirectory()
	for _, p := range participants {
		if err := d.Add(p); err != nil {
			t.Fatalf("add %q: %v", p.Name, err)
		}
	}
	return d
}

func TestAdd_KeepsInsertionOrder(t *testing.T) {
	d := newDirectory(t, Participant{Name: "carol"}, Participant{Name: "alice"}, Participant{Name: "bob"})

	var got []string
	for _, p := range d.Participants() {
		got = append(got, p.Name)
	}
	want := []string{"carol", "alice", "bob"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("participants = %v, want %v", got, want)
	}
}

func TestAdd_RejectsDuplicateName(t *testing.T) {
	d := newDirectory(t, Participant{Name: "alice"})

	err := d.Add(Participant{Name: "alice", Selected: true})
	if !errors.Is(err, ErrDuplicateParticipant) {
		t.Fatalf("expected ErrDuplicateParticipant, got %v", err)
	}
	if d.Len() != 1 {
		t.Errorf("Len = %d, want 1", d.Len())
	}
	if names := d.SelectedNames(true); len(names) != 0 {
		t.Errorf("rejected add changed the selection: %v", names)
	}
}

func TestAdd_RejectsSecondSelf(t *testing.T) {
	d := newDirectory(t, Participant{Name: "alice", Self: true})

	if err := d.Add(Participant{Name: "bob", Self: true}); !errors.Is(err, ErrSelfExists) {
		t.Fatalf("expected ErrSelfExists, got %v", err)
	}
	self, ok := d.Self()
	if !ok || self.Name != "alice" {
		t.Errorf("Self = %+v, %v; want alice", self, ok)
	}
}

func TestRemove_NeverLeavesDuplicates(t *testing.T) {
	d := NewDirectory()
	ops := []struct {
		add  bool
		name string
	}{
		{true, "a"}, {true, "b"}, {true, "a"}, {false, "a"}, {true, "a"},
		{true, "c"}, {false, "b"}, {true, "b"}, {true, "b"}, {false, "c"},
	}
	for _, op := range ops {
		if op.add {
			_ = d.Add(Participant{Name: op.name})
		} else {
			d.Remove(op.name)
		}

		seen := map[string]bool{}
		for _, p := range d.Participants() {
			if seen[p.Name] {
				t.Fatalf("duplicate %q after %+v", p.Name, op)
			}
			seen[p.Name] = true
		}
	}
}

func TestRemove_DeselectsFirst(t *testing.T) {
	d := newDirectory(t, Participant{Name: "alice", Self: true, Selected: true}, Participant{Name: "bob"})
	if selected, ok := d.ToggleSelection("bob"); !ok || !selected {
		t.Fatalf("toggle bob = %v, %v", selected, ok)
	}

	if n := d.Remove("bob"); n != 1 {
		t.Fatalf("Remove returned %d, want 1", n)
	}

	if _, ok := d.FindByName("bob"); ok {
		t.Error("bob still present")
	}
	if got := d.SelectedNames(true); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Errorf("selection = %v, want [alice]", got)
	}
}

func TestRemove_UnknownName(t *testing.T) {
	d := newDirectory(t, Participant{Name: "alice"})
	if n := d.Remove("zed"); n != 0 {
		t.Errorf("Remove returned %d, want 0", n)
	}
	if d.Len() != 1 {
		t.Errorf("Len = %d, want 1", d.Len())
	}
}

func TestFindByName_EmptyDirectory(t *testing.T) {
	d := NewDirectory()
	if _, ok := d.FindByName("anyone"); ok {
		t.Error("expected not found")
	}
	if _, ok := d.Self(); ok {
		t.Error("expected no self")
	}
	if _, ok := d.ToggleSelection("anyone"); ok {
		t.Error("expected toggle on empty directory to report not found")
	}
	if names := d.SelectedNames(false); len(names) != 0 {
		t.Errorf("SelectedNames = %v, want empty", names)
	}
}

func TestFindByName_ReturnsCopy(t *testing.T) {
	d := newDirectory(t, Participant{Name: "bob"})
	p, _ := d.FindByName("bob")
	p.Selected = true

	if got := d.SelectedNames(true); len(got) != 0 {
		t.Errorf("mutating the copy changed the directory: %v", got)
	}
}

func TestToggleSelection_TwiceRestoresMembership(t *testing.T) {
	d := newDirectory(t,
		Participant{Name: "alice", Self: true, Selected: true},
		Participant{Name: "bob"},
		Participant{Name: "carol"},
	)
	d.ToggleSelection("carol")

	for _, name := range []string{"alice", "bob", "carol"} {
		before := d.SelectedNames(true)
		d.ToggleSelection(name)
		d.ToggleSelection(name)
		after := d.SelectedNames(true)

		if contains(before, name) != contains(after, name) {
			t.Errorf("%s: membership %v -> %v", name, before, after)
		}
	}
}

func TestSelectedNames_SelectionOrderWithoutSelf(t *testing.T) {
	d := newDirectory(t,
		Participant{Name: "alice", Self: true, Selected: true},
		Participant{Name: "bob"},
		Participant{Name: "carol"},
		Participant{Name: "dave"},
	)
	d.ToggleSelection("dave")
	d.ToggleSelection("bob")

	if got, want := d.SelectedNames(false), []string{"dave", "bob"}; !reflect.DeepEqual(got, want) {
		t.Errorf("SelectedNames(false) = %v, want %v", got, want)
	}
	if got, want := d.SelectedNames(true), []string{"alice", "dave", "bob"}; !reflect.DeepEqual(got, want) {
		t.Errorf("SelectedNames(true) = %v, want %v", got, want)
	}
}

func TestSelectedNames_NeverIncludesSelf(t *testing.T) {
	d := newDirectory(t, Participant{Name: "alice", Self: true}, Participant{Name: "bob"})

	// Walk every selection state of the two participants.
	for i := 0; i < 4; i++ {
		if i&1 == 1 {
			d.ToggleSelection("alice")
		}
		if i&2 == 2 {
			d.ToggleSelection("bob")
		}
		if contains(d.SelectedNames(false), "alice") {
			t.Fatalf("state %d: self in SelectedNames(false)", i)
		}
	}
}

func TestReset(t *testing.T) {
	d := newDirectory(t, Participant{Name: "alice", Self: true, Selected: true}, Participant{Name: "bob"})
	d.Reset()

	if d.Len() != 0 {
		t.Errorf("Len = %d after Reset", d.Len())
	}
	if got := d.SelectedNames(true); len(got) != 0 {
		t.Errorf("selection = %v after Reset", got)
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
