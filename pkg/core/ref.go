package core

import "github.com/oisee/tomasulo-sim/pkg/isa"

// RunInOrder executes prog on a plain sequential interpreter with the same
// architectural semantics as the out-of-order core: same arithmetic, same
// division-by-zero and out-of-range rules, same branch conditions. It is
// the oracle the pipeline's final register file must agree with. The image
// map preloads data memory. Execution stops at HALT, past-the-end PC, or
// after maxSteps executed instructions to bound runaway loops.
func RunInOrder(prog []isa.Instruction, cfg Config, image map[int]int, maxSteps int) (regs, mem []int) {
	regs = make([]int, cfg.Registers)
	mem = make([]int, cfg.MemWords)
	for addr, val := range image {
		if addr >= 0 && addr < len(mem) {
			mem[addr] = val
		}
	}

	pc := 0
	for steps := 0; steps < maxSteps && pc >= 0 && pc < len(prog); steps++ {
		in := prog[pc]
		next := pc + 1
		taken := false

		switch in.Op {
		case isa.ADD:
			regs[in.Rd] = regs[in.Rs1] + regs[in.Rs2]
		case isa.SUB:
			regs[in.Rd] = regs[in.Rs1] - regs[in.Rs2]
		case isa.MUL:
			regs[in.Rd] = regs[in.Rs1] * regs[in.Rs2]
		case isa.DIV:
			if regs[in.Rs2] == 0 {
				regs[in.Rd] = 0
			} else {
				regs[in.Rd] = regs[in.Rs1] / regs[in.Rs2]
			}
		case isa.LW:
			addr := regs[in.Rs1] + in.Imm
			if addr >= 0 && addr < len(mem) {
				regs[in.Rd] = mem[addr]
			} else {
				regs[in.Rd] = 0
			}
		case isa.SW:
			addr := regs[in.Rs1] + in.Imm
			if addr >= 0 && addr < len(mem) {
				mem[addr] = regs[in.Rs2]
			}
		case isa.J:
			next = in.Imm
			taken = true
		case isa.JAL:
			regs[in.Rd] = pc + 1
			next = in.Imm
			taken = true
		case isa.BEQ, isa.BNE, isa.BLT, isa.BGT:
			if compare(in.Op, regs[in.Rs1], regs[in.Rs2]) {
				next = in.Imm
				taken = true
			}
		case isa.HALT:
			return regs, mem
		}

		if next < 0 || next >= len(prog) {
			if taken {
				// Same fallback the pipeline applies to a bad target.
				next = pc + 1
				if next >= len(prog) {
					next = len(prog) - 1
				}
				pc = next
				continue
			}
			return regs, mem
		}
		pc = next
	}
	return regs, mem
}
