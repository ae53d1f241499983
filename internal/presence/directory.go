// Package presence keeps the set of participants known to this client and
// the local call selection.
package presence

import (
	"errors"
	"sync"
)

var (
	// ErrDuplicateParticipant is returned by Add when the name is taken.
	ErrDuplicateParticipant = errors.New("participant already present")
	// ErrSelfExists is returned by Add when a second self participant is
	// added.
	ErrSelfExists = errors.New("self participant already present")
)

// Participant is a member of the presence set. Name is the identity key.
type Participant struct {
	Name     string
	Self     bool
	Selected bool
}

// Directory is an insertion-ordered set of participants with unique names.
// The selection is kept in the order participants were selected.
type Directory struct {
	mu           sync.Mutex
	participants []*Participant
	selection    []*Participant
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{}
}

// Add appends p. Adding a name that is already present is rejected and
// leaves the directory unchanged.
func (d *Directory) Add(p Participant) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, cur := range d.participants {
		if cur.Name == p.Name {
			return ErrDuplicateParticipant
		}
		if p.Self && cur.Self {
			return ErrSelfExists
		}
	}

	np := &Participant{Name: p.Name, Self: p.Self}
	d.participants = append(d.participants, np)
	if p.Selected {
		d.selectLocked(np)
	}
	return nil
}

// Remove deletes every participant named name, deselecting each first, and
// returns how many were removed.
func (d *Directory) Remove(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	kept := d.participants[:0]
	for _, p := range d.participants {
		if p.Name != name {
			kept = append(kept, p)
			continue
		}
		if p.Selected {
			d.deselectLocked(p)
		}
		removed++
	}
	for i := len(kept); i < len(d.participants); i++ {
		d.participants[i] = nil
	}
	d.participants = kept
	return removed
}

// FindByName returns a copy of the participant named name.
func (d *Directory) FindByName(name string) (Participant, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p := d.findLocked(name); p != nil {
		return *p, true
	}
	return Participant{}, false
}

// ToggleSelection flips the selected flag of the named participant and
// reports the new value. ok is false if nobody has that name.
func (d *Directory) ToggleSelection(name string) (selected bool, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := d.findLocked(name)
	if p == nil {
		return false, false
	}
	if p.Selected {
		d.deselectLocked(p)
	} else {
		d.selectLocked(p)
	}
	return p.Selected, true
}

// SelectedNames returns the names in the selection, in selection order.
// The self participant is left out unless includeSelf is set.
func (d *Directory) SelectedNames(includeSelf bool) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := make([]string, 0, len(d.selection))
	for _, p := range d.selection {
		if p.Self && !includeSelf {
			continue
		}
		names = append(names, p.Name)
	}
	return names
}

// Participants returns a snapshot in insertion order.
func (d *Directory) Participants() []Participant {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Participant, 0, len(d.participants))
	for _, p := range d.participants {
		out = append(out, *p)
	}
	return out
}

// Self returns the local participant, if it has been added.
func (d *Directory) Self() (Participant, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range d.participants {
		if p.Self {
			return *p, true
		}
	}
	return Participant{}, false
}

// Len returns the number of participants.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.participants)
}

// Reset drops every participant and the selection.
func (d *Directory) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.participants = nil
	d.selection = nil
}

func (d *Directory) findLocked(name string) *Participant {
	for _, p := range d.participants {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (d *Directory) selectLocked(p *Participant) {
	p.Selected = true
	d.selection = append(d.selection, p)
}

func (d *Directory) deselectLocked(p *Participant) {
	p.Selected = false
	for i, s := range d.selection {
		if s == p {
			d.selection = append(d.selection[:i], d.selection[i+1:]...)
			return
		}
	}
}
