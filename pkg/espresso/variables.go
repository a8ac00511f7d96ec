package espresso

const storeSize = 26 * 2

type slot struct {
	value   int
	defined bool
}

// VariableStore holds the 52 single-letter variables of one run.
// a-z map to slots 0-25, A-Z to slots 26-51.
type VariableStore struct {
	slots [storeSize]slot
}

// NewVariableStore returns a store with every variable undefined.
func NewVariableStore() *VariableStore {
	return &VariableStore{}
}

func slotIndex(id rune) (int, bool) {
	switch {
	case id >= 'a' && id <= 'z':
		return int(id - 'a'), true
	case id >= 'A' && id <= 'Z':
		return int(id-'A') + 26, true
	}
	return 0, false
}

func slotName(i int) rune {
	if i < 26 {
		return rune('a' + i)
	}
	return rune('A' + i - 26)
}

// Get returns the value of id. It fails with UndefinedVariable if id was never
// assigned and with InvalidIdentifier if id is not an ASCII letter.
func (s *VariableStore) Get(id rune) (int, error) {
	i, ok := slotIndex(id)
	if !ok {
		return 0, newError(KindInvalidIdentifier, "%q is not a variable name (use a-z or A-Z)", id)
	}
	if !s.slots[i].defined {
		return 0, newError(KindUndefinedVariable, "variable %c has no value", id)
	}
	return s.slots[i].value, nil
}

// Set assigns value to id and marks it defined.
func (s *VariableStore) Set(id rune, value int) error {
	i, ok := slotIndex(id)
	if !ok {
		return newError(KindInvalidIdentifier, "%q is not a variable name (use a-z or A-Z)", id)
	}
	s.slots[i] = slot{value: value, defined: true}
	return nil
}

// Defined reports whether id currently holds a value.
func (s *VariableStore) Defined(id rune) bool {
	i, ok := slotIndex(id)
	return ok && s.slots[i].defined
}

// Snapshot returns the defined variables.
func (s *VariableStore) Snapshot() map[rune]int {
	vars := make(map[rune]int)
	for i, sl := range s.slots {
		if sl.defined {
			vars[slotName(i)] = sl.value
		}
	}
	return vars
}
