// Package core implements the out-of-order core: reservation stations, a
// reorder buffer, CDB broadcast, in-order commit and taken-branch flush.
// One Engine value is one independent simulation run; all cross references
// between stations and ROB entries are integer indices into fixed arrays.
package core

import (
	"fmt"

	"github.com/oisee/tomasulo-sim/pkg/isa"
)

// StopReason says why a run ended.
type StopReason int

const (
	StopNone       StopReason = iota
	StopHalt                  // HALT committed and the ROB drained
	StopProgramEnd            // PC ran past the program and the ROB drained
	StopCycleLimit            // safety cap reached
	StopNoProgress            // ROB occupancy frozen with an empty ROB
)

func (r StopReason) String() string {
	switch r {
	case StopHalt:
		return "halt"
	case StopProgramEnd:
		return "program end"
	case StopCycleLimit:
		return "cycle cap"
	case StopNoProgress:
		return "no progress"
	default:
		return "running"
	}
}

// Stats summarizes a finished run.
type Stats struct {
	Cycles  int
	Commits int
	Stalls  int
	Flushes int
	Reason  StopReason
}

// Engine is the complete microarchitectural state of one simulated core.
type Engine struct {
	cfg      Config
	prog     []isa.Instruction
	stations []Station
	rob      []ROBEntry
	regs     []int
	mem      []int

	pc    int
	head  int // ROB commit pointer
	tail  int // ROB issue pointer
	count int // ROB occupancy
	cycle int

	halted  bool // HALT has committed
	commits int
	stalls  int
	flushes int

	idleCycles int // consecutive cycles without observable progress

	tracer Tracer
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithTracer attaches a trace sink. The default discards all events.
func WithTracer(t Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithMemoryImage preloads data-memory words before the first cycle.
// Out-of-range addresses are ignored.
func WithMemoryImage(image map[int]int) Option {
	return func(e *Engine) {
		for addr, val := range image {
			if addr >= 0 && addr < len(e.mem) {
				e.mem[addr] = val
			}
		}
	}
}

// New builds an engine for prog. The program must fit instruction memory.
func New(prog []isa.Instruction, cfg Config, opts ...Option) (*Engine, error) {
	if len(prog) > cfg.InstrMem {
		return nil, fmt.Errorf("program has %d instructions, instruction memory holds %d", len(prog), cfg.InstrMem)
	}
	e := &Engine{
		cfg:      cfg,
		prog:     prog,
		stations: make([]Station, cfg.Stations),
		rob:      make([]ROBEntry, cfg.ROBSize),
		regs:     make([]int, cfg.Registers),
		mem:      make([]int, cfg.MemWords),
		cycle:    1,
		tracer:   nopTracer{},
	}
	for i := range e.stations {
		e.stations[i].clear()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Step simulates one cycle: Issue, Execute, then CDB broadcast and Commit.
// Phase ordering is load-bearing: Commit sees ready bits set by Execute in
// the same cycle, which permits a one-cycle turnaround under ideal
// conditions.
func (e *Engine) Step() {
	e.tracer.BeginCycle(e.cycle, e.Registers(), e.Stations())
	prevCount, prevCommits, prevPC := e.count, e.commits, e.pc

	if !e.halted && e.pc < len(e.prog) {
		e.issue()
	}
	e.execute()
	e.writeback()

	// A cycle makes progress when occupancy moves, something commits, or
	// the PC advances. Anything else is an idle spin, except that no cycle
	// counts as idle once HALT has committed.
	if e.count == prevCount && e.commits == prevCommits && e.pc == prevPC && !e.halted {
		e.idleCycles++
	} else {
		e.idleCycles = 0
	}
	e.cycle++
}

// Done reports whether the run has terminated and why.
func (e *Engine) Done() (bool, StopReason) {
	switch {
	case e.cycle > e.cfg.MaxCycles:
		return true, StopCycleLimit
	case e.idleCycles > e.cfg.NoProgress && e.robEmpty():
		return true, StopNoProgress
	case e.halted && e.robEmpty():
		return true, StopHalt
	case e.pc >= len(e.prog) && e.robEmpty():
		return true, StopProgramEnd
	}
	return false, StopNone
}

// Run steps the engine to termination and returns run statistics.
func (e *Engine) Run() Stats {
	for {
		if done, reason := e.Done(); done {
			return Stats{
				Cycles:  e.cycle - 1,
				Commits: e.commits,
				Stalls:  e.stalls,
				Flushes: e.flushes,
				Reason:  reason,
			}
		}
		e.Step()
	}
}

// Registers returns a copy of the architectural register file.
func (e *Engine) Registers() []int {
	out := make([]int, len(e.regs))
	copy(out, e.regs)
	return out
}

// Memory returns a copy of data memory.
func (e *Engine) Memory() []int {
	out := make([]int, len(e.mem))
	copy(out, e.mem)
	return out
}

// Stations returns a copy of the reservation-station pool.
func (e *Engine) Stations() []Station {
	out := make([]Station, len(e.stations))
	copy(out, e.stations)
	return out
}

// Reg returns one architectural register value.
func (e *Engine) Reg(i int) int { return e.regs[i] }

// MemAt returns one data-memory word, or 0 when out of range.
func (e *Engine) MemAt(addr int) int {
	if addr < 0 || addr >= len(e.mem) {
		return 0
	}
	return e.mem[addr]
}

// Cycle returns the current cycle number (1-based).
func (e *Engine) Cycle() int { return e.cycle }

// PC returns the current fetch address.
func (e *Engine) PC() int { return e.pc }

// Config returns the structural configuration.
func (e *Engine) Config() Config { return e.cfg }
