package doc

// Bias resolves ties when a mapped position sits exactly on the boundary of
// an insertion or deletion.
const (
	BiasLeft  = -1
	BiasRight = 1
)

// Change describes one replaced range in original-document coordinates.
type Change struct {
	Start   int
	OldSize int
	NewSize int
}

// StepMap records the position changes produced by a single step.
type StepMap struct {
	Changes []Change
}

// Map translates a position recorded before the step into its equivalent
// position after it.
func (m StepMap) Map(pos, bias int) int {
	diff := 0
	for _, ch := range m.Changes {
		if pos < ch.Start || (pos == ch.Start && bias < 0) {
			break
		}
		if pos >= ch.Start+ch.OldSize {
			diff += ch.NewSize - ch.OldSize
			continue
		}
		// Inside the replaced range: collapse to the chosen side.
		if bias < 0 {
			return ch.Start + diff
		}
		return ch.Start + ch.NewSize + diff
	}
	return pos + diff
}

// Deleted reports whether pos was inside a range the step removed.
func (m StepMap) Deleted(pos int) bool {
	for _, ch := range m.Changes {
		if pos > ch.Start && pos < ch.Start+ch.OldSize {
			return true
		}
	}
	return false
}

// Mapping composes the step maps of one or more transactions, oldest first.
type Mapping struct {
	Maps []StepMap
}

// Append adds a step map to the end of the mapping.
func (m *Mapping) Append(sm StepMap) {
	m.Maps = append(m.Maps, sm)
}

// AppendMapping concatenates another mapping.
func (m *Mapping) AppendMapping(other *Mapping) {
	m.Maps = append(m.Maps, other.Maps...)
}

// Map passes pos through every step map in order.
func (m *Mapping) Map(pos, bias int) int {
	for _, sm := range m.Maps {
		pos = sm.Map(pos, bias)
	}
	return pos
}

// Deleted reports whether any composed step removed the position.
func (m *Mapping) Deleted(pos int) bool {
	for _, sm := range m.Maps {
		if sm.Deleted(pos) {
			return true
		}
		pos = sm.Map(pos, BiasLeft)
	}
	return false
}
