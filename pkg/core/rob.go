package core

import "github.com/oisee/tomasulo-sim/pkg/isa"

// ROBEntry is one reorder-buffer slot. Entries allocate at the tail and
// retire at the head; only the head may commit. For stores, Value holds the
// effective address computed at execute and StoreVal the data to write at
// commit. For control ops, Target and Taken record the resolved branch.
type ROBEntry struct {
	InUse    bool
	Ready    bool
	Op       isa.Op
	Dest     int // architectural destination register, isa.NoReg if none
	Value    int
	IssuePC  int
	Target   int
	Taken    bool
	StoreVal int
}

func (e *Engine) robFull() bool {
	return e.count >= e.cfg.ROBSize
}

func (e *Engine) robEmpty() bool {
	return e.count == 0
}

// allocROB claims the tail slot. Caller must have checked robFull.
func (e *Engine) allocROB(entry ROBEntry) int {
	idx := e.tail
	e.rob[idx] = entry
	e.tail = (e.tail + 1) % e.cfg.ROBSize
	e.count++
	return idx
}

// freeStation finds a non-busy station, or -1.
func (e *Engine) freeStation() int {
	for i := range e.stations {
		if !e.stations[i].Busy {
			return i
		}
	}
	return -1
}
