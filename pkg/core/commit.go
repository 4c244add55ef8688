package core

import (
	"fmt"

	"github.com/oisee/tomasulo-sim/pkg/isa"
)

// writeback runs the CDB broadcast and then commits up to CommitWidth
// entries from the ROB head.
func (e *Engine) writeback() {
	e.broadcast()

	for n := 0; n < e.cfg.CommitWidth; n++ {
		if !e.commitHead() {
			return
		}
	}
}

// broadcast forwards every ready in-use ROB value to the stations waiting
// on its tag. All ready entries broadcast in the same cycle; only stations
// are written, so the order is unobservable.
func (e *Engine) broadcast() {
	for i := range e.rob {
		if !e.rob[i].InUse || !e.rob[i].Ready {
			continue
		}
		for j := range e.stations {
			s := &e.stations[j]
			if !s.Busy {
				continue
			}
			if s.TagJ == i {
				s.ValJ = e.rob[i].Value
				s.TagJ = TagNone
			}
			if s.TagK == i {
				s.ValK = e.rob[i].Value
				s.TagK = TagNone
			}
		}
	}
}

// commitHead retires the head entry if it is ready. Returns false when the
// head cannot commit this cycle.
func (e *Engine) commitHead() bool {
	head := e.head
	entry := &e.rob[head]
	if !entry.InUse || !entry.Ready {
		return false
	}

	ev := CommitEvent{
		ROB:   head,
		Op:    entry.Op,
		Dest:  entry.Dest,
		Value: entry.Value,
		NewPC: -1,
	}

	switch {
	case entry.Op == isa.SW:
		ev.Addr = entry.Value
		ev.Data = entry.StoreVal
		if ev.Addr >= 0 && ev.Addr < len(e.mem) {
			e.mem[ev.Addr] = ev.Data
		} else {
			e.tracer.Note(fmt.Sprintf("store address %d out of range, dropped", ev.Addr))
		}

	case entry.Op == isa.HALT:
		e.halted = true

	case isa.IsControl(entry.Op):
		ev.Taken = entry.Taken
		if entry.Taken {
			ev.NewPC = e.redirect(entry)
			ev.Flushed = e.flush(entry.IssuePC)
			e.pc = ev.NewPC
		}
		if entry.Op == isa.JAL && entry.Dest != isa.NoReg {
			// The link value commits like any register result.
			e.regs[entry.Dest] = entry.Value
		}

	default: // arithmetic and LW
		if entry.Dest >= 0 && entry.Dest < len(e.regs) {
			e.regs[entry.Dest] = entry.Value
		}
	}

	entry.InUse = false
	entry.Ready = false
	e.head = (e.head + 1) % e.cfg.ROBSize
	e.count--
	e.commits++

	e.tracer.Commit(ev)
	return true
}

// redirect validates a taken branch's target. An out-of-range target falls
// back to the sequential PC, clamped to the last valid address, so a bad
// program keeps the simulator live instead of crashing it.
func (e *Engine) redirect(entry *ROBEntry) int {
	target := entry.Target
	if target >= 0 && target < len(e.prog) {
		return target
	}
	e.tracer.Note(fmt.Sprintf("branch target %d out of range (max %d)", target, len(e.prog)-1))
	next := entry.IssuePC + 1
	if next >= len(e.prog) {
		next = len(e.prog) - 1
	}
	return next
}

// flush removes every ROB entry younger than the committing branch and
// frees the stations feeding them. The branch is at the head when it
// commits and allocation is strictly in-order, so the younger entries are
// the contiguous run behind it; the tail rewinds to one past the branch.
func (e *Engine) flush(branchPC int) int {
	freed := 0
	for i := range e.rob {
		if i == e.head || !e.rob[i].InUse || e.rob[i].IssuePC <= branchPC {
			continue
		}
		e.rob[i] = ROBEntry{}
		freed++
		for j := range e.stations {
			if e.stations[j].Busy && e.stations[j].Dest == i {
				e.stations[j].clear()
			}
		}
	}
	e.count -= freed
	e.tail = (e.head + 1) % e.cfg.ROBSize
	if freed > 0 {
		e.flushes++
	}
	return freed
}
