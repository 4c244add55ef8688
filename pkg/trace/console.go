// Package trace renders core events as the human-readable per-cycle log:
// register bank, reservation-station table, and one line per issue,
// execute, commit, stall, and flush.
package trace

import (
	"fmt"
	"io"

	"github.com/oisee/tomasulo-sim/pkg/core"
	"github.com/oisee/tomasulo-sim/pkg/isa"
)

// Console writes the trace to Out and diagnostics to Err.
type Console struct {
	Out io.Writer
	Err io.Writer
}

// NewConsole builds a tracer over the given writers.
func NewConsole(out, err io.Writer) *Console {
	return &Console{Out: out, Err: err}
}

func (c *Console) BeginCycle(cycle int, regs []int, stations []core.Station) {
	if cycle > 1 {
		fmt.Fprintln(c.Out)
	}
	fmt.Fprintf(c.Out, "Cycle %d\n", cycle)
	c.printRegs(regs)
	c.printStations(stations)
}

func (c *Console) printRegs(regs []int) {
	fmt.Fprint(c.Out, "Registers: ")
	for i, v := range regs {
		if i > 0 {
			fmt.Fprint(c.Out, ", ")
		}
		fmt.Fprintf(c.Out, "R%d = %d", i, v)
	}
	fmt.Fprintln(c.Out)
}

func (c *Console) printStations(stations []core.Station) {
	fmt.Fprintln(c.Out, "------ Reservation Stations ------")
	fmt.Fprintln(c.Out, "ID | Op   | Busy | ROB | Vj | Vk | Qj | Qk")
	for i, s := range stations {
		op := ""
		if s.Busy {
			op = s.Op.String()
		}
		busy := "no"
		if s.Busy {
			busy = "yes"
		}
		fmt.Fprintf(c.Out, "%2d | %-4s | %4s | %3d | %2d | %2d | %2d | %2d\n",
			i, op, busy, s.Dest, s.ValJ, s.ValK, s.TagJ, s.TagK)
	}
	fmt.Fprintln(c.Out, "----------------------------------")
}

func (c *Console) Issue(pc, station, rob int, in isa.Instruction) {
	if station < 0 {
		fmt.Fprintf(c.Out, "Issue: PC=%d -> ROB[%d], HALT\n", pc, rob)
		return
	}
	fmt.Fprintf(c.Out, "Issue: PC=%d -> RS[%d], ROB[%d], %s\n", pc, station, rob, isa.Disassemble(in))
}

func (c *Console) Stall(pc int, reason core.StallReason) {
	fmt.Fprintf(c.Out, "Stall: %s (PC=%d)\n", reason, pc)
}

func (c *Console) Executing(station int, op isa.Op, cyclesLeft int) {
	fmt.Fprintf(c.Out, "Executing: RS[%d] (%s) cycles_left=%d\n", station, op, cyclesLeft)
}

func (c *Console) Executed(ev core.ExecEvent) {
	switch {
	case ev.Op == isa.LW:
		fmt.Fprintf(c.Out, "Execute: RS[%d] (LW) -> ROB[%d] (addr %d, value %d)\n",
			ev.Station, ev.ROB, ev.Addr, ev.Value)
	case ev.Op == isa.SW:
		fmt.Fprintf(c.Out, "Execute: RS[%d] (SW) -> ROB[%d] (addr %d, value %d)\n",
			ev.Station, ev.ROB, ev.Addr, ev.Data)
	case ev.Op == isa.J || ev.Op == isa.JAL:
		fmt.Fprintf(c.Out, "Execute: RS[%d] (%s) -> ROB[%d] (target %d)\n",
			ev.Station, ev.Op, ev.ROB, ev.Target)
	case isa.IsCondBranch(ev.Op):
		taken := "no"
		if ev.Taken {
			taken = "yes"
		}
		fmt.Fprintf(c.Out, "Execute: RS[%d] (%s) -> ROB[%d] (taken %s, target %d)\n",
			ev.Station, ev.Op, ev.ROB, taken, ev.Target)
	default:
		fmt.Fprintf(c.Out, "Execute: RS[%d] (%s) -> ROB[%d] (result %d)\n",
			ev.Station, ev.Op, ev.ROB, ev.Value)
	}
}

func (c *Console) Commit(ev core.CommitEvent) {
	switch {
	case ev.Op == isa.SW:
		fmt.Fprintf(c.Out, "Commit: SW (ROB[%d]) -> Mem[%d] = %d\n", ev.ROB, ev.Addr, ev.Data)
	case ev.Op == isa.HALT:
		fmt.Fprintf(c.Out, "Commit: HALT (ROB[%d]) -> simulation done\n", ev.ROB)
	case isa.IsControl(ev.Op):
		if ev.Taken {
			fmt.Fprintf(c.Out, "Commit: %s (ROB[%d]) -> PC = %d (flushed %d)\n",
				ev.Op, ev.ROB, ev.NewPC, ev.Flushed)
		} else {
			fmt.Fprintf(c.Out, "Commit: %s (ROB[%d]) -> not taken\n", ev.Op, ev.ROB)
		}
		if ev.Op == isa.JAL && ev.Dest != isa.NoReg {
			fmt.Fprintf(c.Out, "Commit: R%d <- %d (JAL link)\n", ev.Dest, ev.Value)
		}
	default:
		fmt.Fprintf(c.Out, "Commit: R%d <- %d (ROB[%d])\n", ev.Dest, ev.Value, ev.ROB)
	}
}

func (c *Console) Note(msg string) {
	fmt.Fprintf(c.Err, "note: %s\n", msg)
}

// FinalState prints the end-of-run register dump.
func (c *Console) FinalState(regs []int) {
	fmt.Fprintln(c.Out, "FINAL STATE")
	fmt.Fprint(c.Out, "Registers: ")
	for i, v := range regs {
		fmt.Fprintf(c.Out, "R%d = %d ", i, v)
	}
	fmt.Fprintln(c.Out)
}
