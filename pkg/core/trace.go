package core

import "github.com/oisee/tomasulo-sim/pkg/isa"

// StallReason distinguishes the two structural stalls.
type StallReason int

const (
	StallROBFull StallReason = iota
	StallRSFull
)

func (r StallReason) String() string {
	if r == StallROBFull {
		return "ROB full"
	}
	return "reservation stations full"
}

// ExecEvent describes a station finishing execution.
type ExecEvent struct {
	Station int
	ROB     int
	Op      isa.Op
	Value   int  // result written into the ROB entry
	Addr    int  // effective address (LW/SW)
	Data    int  // store data (SW)
	Taken   bool // control ops
	Target  int  // resolved control target
}

// CommitEvent describes the ROB head retiring.
type CommitEvent struct {
	ROB     int
	Op      isa.Op
	Dest    int // register written, isa.NoReg if none
	Value   int
	Addr    int // store address (SW)
	Data    int // store data (SW)
	Taken   bool
	NewPC   int // redirect target after a taken branch
	Flushed int // younger entries freed by the flush
}

// Tracer receives the observable per-cycle events. Rendering is up to the
// implementation; the core never prints. All slices passed in are copies.
type Tracer interface {
	BeginCycle(cycle int, regs []int, stations []Station)
	Issue(pc, station, rob int, in isa.Instruction) // station < 0 for HALT
	Stall(pc int, reason StallReason)
	Executing(station int, op isa.Op, cyclesLeft int)
	Executed(ev ExecEvent)
	Commit(ev CommitEvent)
	Note(msg string)
}

type nopTracer struct{}

func (nopTracer) BeginCycle(int, []int, []Station)  {}
func (nopTracer) Issue(int, int, int, isa.Instruction) {}
func (nopTracer) Stall(int, StallReason)            {}
func (nopTracer) Executing(int, isa.Op, int)        {}
func (nopTracer) Executed(ExecEvent)                {}
func (nopTracer) Commit(CommitEvent)                {}
func (nopTracer) Note(string)                       {}
