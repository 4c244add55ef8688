package core

import (
	"fmt"

	"github.com/oisee/tomasulo-sim/pkg/isa"
)

// execute walks every busy station. A station with any outstanding tag
// waits; one whose tags just cleared loads the opcode latency and counts
// down in the same cycle, so a 1-cycle op completes the cycle its operands
// first arrive. The execute gate is the same for every opcode.
func (e *Engine) execute() {
	for i := range e.stations {
		s := &e.stations[i]
		if !s.Busy {
			continue
		}
		if !s.operandsReady() {
			continue
		}

		if s.CyclesLeft == 0 {
			s.CyclesLeft = isa.Latency(s.Op)
		}
		s.CyclesLeft--

		if s.CyclesLeft > 0 {
			e.tracer.Executing(i, s.Op, s.CyclesLeft)
			continue
		}
		e.complete(i, s)
	}
}

// complete computes the station's result, posts it to the ROB entry and
// releases the station.
func (e *Engine) complete(idx int, s *Station) {
	entry := &e.rob[s.Dest]
	ev := ExecEvent{Station: idx, ROB: s.Dest, Op: s.Op, Target: -1}

	switch s.Op {
	case isa.ADD:
		ev.Value = s.ValJ + s.ValK
	case isa.SUB:
		ev.Value = s.ValJ - s.ValK
	case isa.MUL:
		ev.Value = s.ValJ * s.ValK
	case isa.DIV:
		if s.ValK == 0 {
			ev.Value = 0
		} else {
			ev.Value = s.ValJ / s.ValK
		}

	case isa.LW:
		ev.Addr = s.ValJ + s.ValK
		if ev.Addr >= 0 && ev.Addr < len(e.mem) {
			ev.Value = e.mem[ev.Addr]
		} else {
			e.tracer.Note(fmt.Sprintf("load address %d out of range, result 0", ev.Addr))
			ev.Value = 0
		}

	case isa.SW:
		// The effective address becomes the ROB "result"; the data value
		// rides alongside and is applied to memory at commit.
		ev.Addr = s.ValJ + s.Offset
		ev.Value = ev.Addr
		ev.Data = s.ValK
		entry.StoreVal = s.ValK

	case isa.J:
		ev.Value = s.ValJ
		ev.Taken = true
		ev.Target = s.ValJ

	case isa.JAL:
		ev.Value = s.ValK // link: PC of issue + 1
		ev.Taken = true
		ev.Target = s.ValJ

	case isa.BEQ, isa.BNE, isa.BLT, isa.BGT:
		ev.Taken = compare(s.Op, s.ValJ, s.ValK)
		ev.Target = s.Target
		if ev.Taken {
			ev.Value = s.Target
		} else {
			ev.Value = s.IssuePC + 1
		}
	}

	entry.Value = ev.Value
	entry.Ready = true
	if isa.IsControl(s.Op) {
		entry.Target = ev.Target
		entry.Taken = ev.Taken
	}

	e.tracer.Executed(ev)
	s.clear()
}

func compare(op isa.Op, a, b int) bool {
	switch op {
	case isa.BEQ:
		return a == b
	case isa.BNE:
		return a != b
	case isa.BLT:
		return a < b
	default: // BGT
		return a > b
	}
}
