package core

import (
	"encoding/gob"
	"fmt"
	"io"

	"github.com/oisee/tomasulo-sim/pkg/isa"
)

// snapshotVersion is bumped whenever the encoded layout changes.
const snapshotVersion = 1

// snapshot is the gob image of a mid-run engine. The program travels with
// the state so a restored engine is self-contained.
type snapshot struct {
	Version  int
	Config   Config
	Program  []isa.Instruction
	Stations []Station
	ROB      []ROBEntry
	Regs     []int
	Mem      []int

	PC, Head, Tail, Count, Cycle int
	Halted                       bool
	Commits, Stalls, Flushes     int
	IdleCycles                   int
}

// Snapshot serializes the full engine state. A paused run can be resumed
// later with Restore; the tracer is not part of the state.
func (e *Engine) Snapshot(w io.Writer) error {
	return gob.NewEncoder(w).Encode(snapshot{
		Version:    snapshotVersion,
		Config:     e.cfg,
		Program:    e.prog,
		Stations:   e.stations,
		ROB:        e.rob,
		Regs:       e.regs,
		Mem:        e.mem,
		PC:         e.pc,
		Head:       e.head,
		Tail:       e.tail,
		Count:      e.count,
		Cycle:      e.cycle,
		Halted:     e.halted,
		Commits:    e.commits,
		Stalls:     e.stalls,
		Flushes:    e.flushes,
		IdleCycles: e.idleCycles,
	})
}

// Restore builds an engine from a Snapshot stream. Options (tracer, extra
// memory image) apply on top of the restored state.
func Restore(r io.Reader, opts ...Option) (*Engine, error) {
	var s snapshot
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", s.Version, snapshotVersion)
	}
	e := &Engine{
		cfg:        s.Config,
		prog:       s.Program,
		stations:   s.Stations,
		rob:        s.ROB,
		regs:       s.Regs,
		mem:        s.Mem,
		pc:         s.PC,
		head:       s.Head,
		tail:       s.Tail,
		count:      s.Count,
		cycle:      s.Cycle,
		halted:     s.Halted,
		commits:    s.Commits,
		stalls:     s.Stalls,
		flushes:    s.Flushes,
		idleCycles: s.IdleCycles,
		tracer:     nopTracer{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}
