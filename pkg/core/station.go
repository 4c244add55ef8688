package core

import "github.com/oisee/tomasulo-sim/pkg/isa"

// TagNone marks an operand slot holding a value rather than a ROB tag.
const TagNone = -1

// Station is one reservation-station slot. Each operand slot carries either
// a latched value or a tag naming the ROB entry that will produce it; the
// slot may start its countdown only once both tags are cleared. The store
// offset and the branch target live in distinct fields so a store can never
// clobber a control target.
type Station struct {
	Busy       bool
	Op         isa.Op
	TagJ, TagK int // pending ROB tags, TagNone when the value is present
	ValJ, ValK int
	Dest       int // ROB slot this station writes
	CyclesLeft int // remaining execution cycles, 0 before dispatch
	IssuePC    int
	Target     int // branch target address (conditional branches)
	Offset     int // store offset (SW)
}

// clear releases the slot.
func (s *Station) clear() {
	*s = Station{TagJ: TagNone, TagK: TagNone, Dest: TagNone}
}

// operandsReady reports whether both operand slots hold values.
func (s *Station) operandsReady() bool {
	return s.TagJ == TagNone && s.TagK == TagNone
}
