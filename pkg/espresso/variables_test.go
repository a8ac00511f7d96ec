package espresso

import (
	"errors"
	"testing"
)

func TestVariableStore(t *testing.T) {
	vars := NewVariableStore()

	if _, err := vars.Get('x'); !errors.Is(err, ErrUndefinedVariable) {
		t.Fatalf("fresh store: expected UndefinedVariable, got %v", err)
	}

	if err := vars.Set('x', 42); err != nil {
		t.Fatal(err)
	}
	if err := vars.Set('X', -1); err != nil {
		t.Fatal(err)
	}

	if v, err := vars.Get('x'); err != nil || v != 42 {
		t.Errorf("Get('x') = %d, %v; want 42", v, err)
	}
	if v, err := vars.Get('X'); err != nil || v != -1 {
		t.Errorf("Get('X') = %d, %v; want -1", v, err)
	}
	if !vars.Defined('x') || vars.Defined('y') {
		t.Errorf("Defined reports wrong state")
	}

	if err := vars.Set('x', 7); err != nil {
		t.Fatal(err)
	}
	if v, _ := vars.Get('x'); v != 7 {
		t.Errorf("overwrite: got %d, want 7", v)
	}

	snap := vars.Snapshot()
	if len(snap) != 2 || snap['x'] != 7 || snap['X'] != -1 {
		t.Errorf("Snapshot() = %v", snap)
	}
}

func TestVariableStoreInvalidIdentifier(t *testing.T) {
	vars := NewVariableStore()
	for _, id := range []rune{'1', '_', 'é', '[', '`'} {
		if err := vars.Set(id, 1); !errors.Is(err, ErrInvalidIdentifier) {
			t.Errorf("Set(%q): expected InvalidIdentifier, got %v", id, err)
		}
		if _, err := vars.Get(id); !errors.Is(err, ErrInvalidIdentifier) {
			t.Errorf("Get(%q): expected InvalidIdentifier, got %v", id, err)
		}
	}
}

func TestSlotMapping(t *testing.T) {
	for i := 0; i < storeSize; i++ {
		idx, ok := slotIndex(slotName(i))
		if !ok || idx != i {
			t.Errorf("slot %d round-trips to %d (%v)", i, idx, ok)
		}
	}
	if idx, _ := slotIndex('A'); idx != 26 {
		t.Errorf("slotIndex('A') = %d, want 26", idx)
	}
}
