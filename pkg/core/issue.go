package core

import "github.com/oisee/tomasulo-sim/pkg/isa"

// issue dispatches up to IssueWidth instructions from the PC. A HALT only
// needs a ROB slot and arrives already ready; everything else needs both a
// free station and a free ROB slot or the PC stays put. The ROB is checked
// first so a double stall reports as "ROB full".
func (e *Engine) issue() {
	for issued := 0; issued < e.cfg.IssueWidth && e.pc < len(e.prog); issued++ {
		in := e.prog[e.pc]

		if in.Op == isa.HALT {
			if e.robFull() {
				e.stalls++
				e.tracer.Stall(e.pc, StallROBFull)
				return
			}
			rob := e.allocROB(ROBEntry{
				InUse:   true,
				Ready:   true,
				Op:      isa.HALT,
				Dest:    isa.NoReg,
				IssuePC: e.pc,
				Target:  -1,
			})
			e.tracer.Issue(e.pc, -1, rob, in)
			e.pc++
			return
		}

		if e.robFull() {
			e.stalls++
			e.tracer.Stall(e.pc, StallROBFull)
			return
		}
		st := e.freeStation()
		if st < 0 {
			e.stalls++
			e.tracer.Stall(e.pc, StallRSFull)
			return
		}

		s := &e.stations[st]
		s.clear()
		s.Busy = true
		s.Op = in.Op
		s.IssuePC = e.pc
		s.Target = -1

		// Rename before allocating the ROB slot so an instruction reading
		// its own destination register cannot tag itself.
		e.captureOperands(s, in)

		dest := isa.NoReg
		if isa.HasDest(in.Op) {
			dest = in.Rd
		}
		rob := e.allocROB(ROBEntry{
			InUse:   true,
			Op:      in.Op,
			Dest:    dest,
			IssuePC: e.pc,
			Target:  -1,
		})
		s.Dest = rob

		e.tracer.Issue(e.pc, st, rob, in)
		e.pc++
	}
}

// captureOperands fills the two operand slots, renaming register sources
// against in-flight ROB entries per opcode shape.
func (e *Engine) captureOperands(s *Station, in isa.Instruction) {
	switch {
	case in.Op == isa.LW:
		// Base register renames; the offset is an immediate and never
		// carries a tag.
		e.renameJ(s, in.Rs1)
		s.TagK = TagNone
		s.ValK = in.Imm

	case in.Op == isa.SW:
		// Both the base and the stored-data register rename; the offset
		// rides in its own field until execute.
		e.renameJ(s, in.Rs1)
		e.renameK(s, in.Rs2)
		s.Offset = in.Imm

	case in.Op == isa.J:
		s.TagJ = TagNone
		s.ValJ = in.Imm
		s.TagK = TagNone
		s.ValK = 0

	case in.Op == isa.JAL:
		s.TagJ = TagNone
		s.ValJ = in.Imm
		s.TagK = TagNone
		s.ValK = s.IssuePC + 1 // link value

	case isa.IsCondBranch(in.Op):
		e.renameJ(s, in.Rs1)
		e.renameK(s, in.Rs2)
		s.Target = in.Imm

	default: // arithmetic
		e.renameJ(s, in.Rs1)
		e.renameK(s, in.Rs2)
	}
}

// producerOf finds the youngest in-flight ROB entry writing reg, scanning
// from tail-1 back to head so the most recent producer wins even when the
// circular buffer has wrapped. A ready-but-uncommitted producer still
// yields a tag: the CDB phase forwards ready values every cycle until
// commit, so the value arrives without ever reading the register file
// stale. Returns TagNone when no in-flight entry writes reg.
func (e *Engine) producerOf(reg int) int {
	if reg == isa.NoReg {
		return TagNone
	}
	for n := 0; n < e.count; n++ {
		idx := (e.tail - 1 - n + e.cfg.ROBSize) % e.cfg.ROBSize
		if e.rob[idx].InUse && e.rob[idx].Dest == reg {
			return idx
		}
	}
	return TagNone
}

func (e *Engine) renameJ(s *Station, reg int) {
	if tag := e.producerOf(reg); tag != TagNone {
		s.TagJ = tag
		return
	}
	s.TagJ = TagNone
	if reg != isa.NoReg {
		s.ValJ = e.regs[reg]
	}
}

func (e *Engine) renameK(s *Station, reg int) {
	if tag := e.producerOf(reg); tag != TagNone {
		s.TagK = tag
		return
	}
	s.TagK = TagNone
	if reg != isa.NoReg {
		s.ValK = e.regs[reg]
	}
}
