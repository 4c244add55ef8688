package core

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/oisee/tomasulo-sim/pkg/isa"
)

func arith(op isa.Op, rd, rs1, rs2 int) isa.Instruction {
	return isa.Instruction{Op: op, Rd: rd, Rs1: rs1, Rs2: rs2}
}

func lw(rd, base, off int) isa.Instruction {
	return isa.Instruction{Op: isa.LW, Rd: rd, Rs1: base, Rs2: isa.NoReg, Imm: off}
}

func sw(src, base, off int) isa.Instruction {
	return isa.Instruction{Op: isa.SW, Rd: isa.NoReg, Rs1: base, Rs2: src, Imm: off}
}

func branch(op isa.Op, rs1, rs2, target int) isa.Instruction {
	return isa.Instruction{Op: op, Rd: isa.NoReg, Rs1: rs1, Rs2: rs2, Imm: target}
}

func jump(target int) isa.Instruction {
	return isa.Instruction{Op: isa.J, Rd: isa.NoReg, Rs1: isa.NoReg, Rs2: isa.NoReg, Imm: target}
}

func jal(rd, target int) isa.Instruction {
	return isa.Instruction{Op: isa.JAL, Rd: rd, Rs1: isa.NoReg, Rs2: isa.NoReg, Imm: target}
}

func halt() isa.Instruction {
	return isa.Instruction{Op: isa.HALT, Rd: isa.NoReg, Rs1: isa.NoReg, Rs2: isa.NoReg}
}

// runChecked steps the engine to completion, validating the structural
// invariants at every cycle boundary.
func runChecked(t *testing.T, prog []isa.Instruction, cfg Config, image map[int]int) (*Engine, Stats) {
	t.Helper()
	e, err := New(prog, cfg, WithMemoryImage(image))
	if err != nil {
		t.Fatal(err)
	}
	for {
		if done, reason := e.Done(); done {
			return e, Stats{
				Cycles:  e.cycle - 1,
				Commits: e.commits,
				Stalls:  e.stalls,
				Flushes: e.flushes,
				Reason:  reason,
			}
		}
		e.Step()
		if err := e.CheckInvariants(); err != nil {
			t.Fatalf("cycle %d: invariant violated: %v", e.cycle-1, err)
		}
	}
}

func wantRegs(t *testing.T, e *Engine, want map[int]int) {
	t.Helper()
	regs := e.Registers()
	for i, v := range regs {
		expected := want[i]
		if v != expected {
			t.Errorf("R%d = %d, want %d", i, v, expected)
		}
	}
}

func TestStraightLineAdd(t *testing.T) {
	prog := []isa.Instruction{
		arith(isa.ADD, 1, 0, 0),
		halt(),
	}
	e, stats := runChecked(t, prog, DefaultConfig(), nil)
	if stats.Reason != StopHalt {
		t.Fatalf("stop reason %v, want halt", stats.Reason)
	}
	wantRegs(t, e, map[int]int{1: 0})
	if stats.Commits != 2 {
		t.Errorf("commits = %d, want 2", stats.Commits)
	}
}

func TestLoadUseForwarding(t *testing.T) {
	prog := []isa.Instruction{
		lw(1, 0, 0),
		arith(isa.ADD, 2, 1, 1),
		halt(),
	}
	e, stats := runChecked(t, prog, DefaultConfig(), map[int]int{0: 7})
	if stats.Reason != StopHalt {
		t.Fatalf("stop reason %v, want halt", stats.Reason)
	}
	wantRegs(t, e, map[int]int{1: 7, 2: 14})
}

func TestRAWChainThroughROB(t *testing.T) {
	// MUL takes two cycles, so the ADD and SUB must wait on ROB tags.
	prog := []isa.Instruction{
		arith(isa.MUL, 1, 0, 0),
		arith(isa.ADD, 2, 1, 1),
		arith(isa.SUB, 3, 2, 1),
		halt(),
	}
	e, _ := runChecked(t, prog, DefaultConfig(), nil)
	wantRegs(t, e, map[int]int{1: 0, 2: 0, 3: 0})
}

func TestRAWChainMatchesReference(t *testing.T) {
	prog := []isa.Instruction{
		lw(1, 0, 0),
		arith(isa.MUL, 2, 1, 1),
		arith(isa.ADD, 3, 2, 1),
		arith(isa.SUB, 4, 3, 2),
		arith(isa.DIV, 5, 3, 1),
		halt(),
	}
	image := map[int]int{0: 3}
	e, _ := runChecked(t, prog, DefaultConfig(), image)
	refRegs, _ := RunInOrder(prog, DefaultConfig(), image, 1000)
	if !reflect.DeepEqual(e.Registers(), refRegs) {
		t.Errorf("pipeline regs %v, reference %v", e.Registers(), refRegs)
	}
}

func TestCommitsAllPastROBCapacity(t *testing.T) {
	// Six instructions through a 4-entry ROB.
	prog := []isa.Instruction{
		arith(isa.ADD, 1, 0, 0),
		arith(isa.ADD, 2, 0, 0),
		arith(isa.ADD, 3, 0, 0),
		arith(isa.ADD, 4, 0, 0),
		arith(isa.ADD, 5, 0, 0),
		halt(),
	}
	e, stats := runChecked(t, prog, DefaultConfig(), nil)
	if stats.Reason != StopHalt {
		t.Fatalf("stop reason %v, want halt", stats.Reason)
	}
	if stats.Commits != 6 {
		t.Errorf("commits = %d, want 6", stats.Commits)
	}
	wantRegs(t, e, map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0})
}

func TestROBFullStallsOnDependentChain(t *testing.T) {
	// A chain of dependent MULs drains the ROB slower than issue fills
	// it, so the 4-entry ROB must back-pressure the front end.
	prog := []isa.Instruction{
		lw(1, 0, 0),
		arith(isa.MUL, 2, 1, 1),
		arith(isa.MUL, 3, 2, 2),
		arith(isa.MUL, 4, 3, 3),
		arith(isa.MUL, 5, 4, 4),
		arith(isa.MUL, 6, 5, 5),
		arith(isa.MUL, 7, 6, 6),
		arith(isa.ADD, 1, 0, 0),
		halt(),
	}
	image := map[int]int{0: 2}
	e, stats := runChecked(t, prog, DefaultConfig(), image)
	if stats.Stalls == 0 {
		t.Error("expected structural stalls, got none")
	}
	refRegs, _ := RunInOrder(prog, DefaultConfig(), image, 1000)
	if !reflect.DeepEqual(e.Registers(), refRegs) {
		t.Errorf("pipeline regs %v, reference %v", e.Registers(), refRegs)
	}
	if e.Reg(4) != 256 || e.Reg(5) != 65536 {
		t.Errorf("chain results R4=%d R5=%d, want 256 65536", e.Reg(4), e.Reg(5))
	}
}

func TestTakenBranchFlushesWrongPath(t *testing.T) {
	// The branch waits on the two-cycle MUL, so the wrong-path load at
	// PC 2 issues speculatively; if it ever commits, R2 picks up the
	// sentinel from memory.
	prog := []isa.Instruction{
		arith(isa.MUL, 1, 0, 0),  // 0
		branch(isa.BEQ, 1, 0, 4), // 1: taken once the MUL resolves
		lw(2, 0, 0),              // 2: wrong path
		lw(2, 0, 0),              // 3: wrong path
		lw(3, 0, 1),              // 4
		halt(),                   // 5
	}
	image := map[int]int{0: 9, 1: 4}
	e, stats := runChecked(t, prog, DefaultConfig(), image)
	if stats.Reason != StopHalt {
		t.Fatalf("stop reason %v, want halt", stats.Reason)
	}
	if stats.Flushes == 0 {
		t.Error("expected a pipeline flush")
	}
	wantRegs(t, e, map[int]int{1: 0, 2: 0, 3: 4})
}

func TestBranchNotTakenNoFlush(t *testing.T) {
	prog := []isa.Instruction{
		branch(isa.BNE, 0, 0, 3), // never taken
		lw(1, 0, 0),
		halt(),
	}
	e, stats := runChecked(t, prog, DefaultConfig(), map[int]int{0: 5})
	if stats.Flushes != 0 {
		t.Errorf("flushes = %d, want 0", stats.Flushes)
	}
	wantRegs(t, e, map[int]int{1: 5})
}

func TestConditionalBranchComparisons(t *testing.T) {
	tests := []struct {
		name  string
		op    isa.Op
		a, b  int
		taken bool
	}{
		{"BEQ equal", isa.BEQ, 4, 4, true},
		{"BEQ unequal", isa.BEQ, 4, 5, false},
		{"BNE unequal", isa.BNE, 4, 5, true},
		{"BNE equal", isa.BNE, 4, 4, false},
		{"BLT less", isa.BLT, -1, 3, true},
		{"BLT greater", isa.BLT, 3, -1, false},
		{"BGT greater", isa.BGT, 3, -1, true},
		{"BGT less", isa.BGT, -1, 3, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// R1 and R2 are loaded with the operands; the branch skips
			// the sentinel load at PC 3 only when taken.
			prog := []isa.Instruction{
				lw(1, 0, 0),              // 0
				lw(2, 0, 1),              // 1
				branch(tc.op, 1, 2, 4),   // 2
				lw(3, 0, 2),              // 3: skipped when taken
				halt(),                   // 4
			}
			image := map[int]int{0: tc.a, 1: tc.b, 2: 77}
			e, _ := runChecked(t, prog, DefaultConfig(), image)
			sentinel := 77
			if tc.taken {
				sentinel = 0
			}
			if got := e.Reg(3); got != sentinel {
				t.Errorf("R3 = %d, want %d (taken=%v)", got, sentinel, tc.taken)
			}
		})
	}
}

func TestStoreLoadRoundTrip(t *testing.T) {
	prog := []isa.Instruction{
		lw(1, 0, 0),
		sw(1, 0, 0),
		lw(2, 0, 0),
		halt(),
	}
	e, _ := runChecked(t, prog, DefaultConfig(), map[int]int{0: 5})
	wantRegs(t, e, map[int]int{1: 5, 2: 5})
	if got := e.MemAt(0); got != 5 {
		t.Errorf("Mem[0] = %d, want 5", got)
	}
}

func TestStoreWritesAtCommitOnly(t *testing.T) {
	prog := []isa.Instruction{
		lw(1, 0, 0),  // R1 = 3
		sw(1, 0, 5),  // Mem[5] = 3
		halt(),
	}
	e, _ := runChecked(t, prog, DefaultConfig(), map[int]int{0: 3})
	if got := e.MemAt(5); got != 3 {
		t.Errorf("Mem[5] = %d, want 3", got)
	}
	refRegs, refMem := RunInOrder(prog, DefaultConfig(), map[int]int{0: 3}, 1000)
	if !reflect.DeepEqual(e.Registers(), refRegs) {
		t.Errorf("regs %v, reference %v", e.Registers(), refRegs)
	}
	if !reflect.DeepEqual(e.Memory(), refMem) {
		t.Error("memory disagrees with reference")
	}
}

func TestYoungestProducerWins(t *testing.T) {
	// Two in-flight writers of R1: the slow MUL (older) and the LW
	// (younger). The ADD must rename against the LW, not the MUL.
	prog := []isa.Instruction{
		arith(isa.MUL, 1, 0, 0), // 0: eventually R1 = 0
		lw(1, 0, 1),             // 1: R1 = 9, youngest producer
		arith(isa.ADD, 2, 1, 1), // 2: must see 9 -> R2 = 18
		halt(),
	}
	e, _ := runChecked(t, prog, DefaultConfig(), map[int]int{1: 9})
	wantRegs(t, e, map[int]int{1: 9, 2: 18})
}

func TestJumpAndLink(t *testing.T) {
	prog := []isa.Instruction{
		jal(1, 2),   // 0: R1 = 1, jump to 2
		lw(2, 0, 0), // 1: skipped
		halt(),      // 2
	}
	e, stats := runChecked(t, prog, DefaultConfig(), map[int]int{0: 8})
	if stats.Reason != StopHalt {
		t.Fatalf("stop reason %v, want halt", stats.Reason)
	}
	wantRegs(t, e, map[int]int{1: 1, 2: 0})
}

func TestUnconditionalJump(t *testing.T) {
	prog := []isa.Instruction{
		jump(2),     // 0
		lw(1, 0, 0), // 1: skipped
		halt(),      // 2
	}
	e, _ := runChecked(t, prog, DefaultConfig(), map[int]int{0: 8})
	wantRegs(t, e, map[int]int{1: 0})
}

func TestBackwardLoopHitsCycleCap(t *testing.T) {
	prog := []isa.Instruction{
		arith(isa.ADD, 1, 0, 0), // 0
		jump(0),                 // 1: loops forever
		halt(),                  // 2: unreachable
	}
	_, stats := runChecked(t, prog, DefaultConfig(), nil)
	if stats.Reason != StopCycleLimit {
		t.Fatalf("stop reason %v, want cycle cap", stats.Reason)
	}
	if stats.Cycles != DefaultConfig().MaxCycles {
		t.Errorf("cycles = %d, want %d", stats.Cycles, DefaultConfig().MaxCycles)
	}
}

func TestLoopWithExitCondition(t *testing.T) {
	// Count R1 down from 3 via SUB against a loaded constant, looping
	// with BGT until it reaches zero.
	prog := []isa.Instruction{
		lw(1, 0, 0),              // 0: R1 = 3
		lw(2, 0, 1),              // 1: R2 = 1
		arith(isa.SUB, 1, 1, 2),  // 2: R1 -= 1
		branch(isa.BGT, 1, 0, 2), // 3: loop while R1 > 0
		halt(),                   // 4
	}
	image := map[int]int{0: 3, 1: 1}
	e, stats := runChecked(t, prog, DefaultConfig(), image)
	if stats.Reason != StopHalt {
		t.Fatalf("stop reason %v, want halt", stats.Reason)
	}
	wantRegs(t, e, map[int]int{1: 0, 2: 1})
}

func TestDivisionByZeroYieldsZero(t *testing.T) {
	prog := []isa.Instruction{
		lw(1, 0, 0),             // R1 = 7
		arith(isa.DIV, 2, 1, 3), // R3 is zero -> R2 = 0
		arith(isa.DIV, 4, 1, 1), // R4 = 1
		halt(),
	}
	e, _ := runChecked(t, prog, DefaultConfig(), map[int]int{0: 7})
	wantRegs(t, e, map[int]int{1: 7, 2: 0, 4: 1})
}

func TestOutOfRangeLoadReadsZero(t *testing.T) {
	prog := []isa.Instruction{
		lw(1, 0, -5),
		halt(),
	}
	e, stats := runChecked(t, prog, DefaultConfig(), nil)
	if stats.Reason != StopHalt {
		t.Fatalf("stop reason %v, want halt", stats.Reason)
	}
	wantRegs(t, e, map[int]int{1: 0})
}

func TestOutOfRangeStoreDropped(t *testing.T) {
	prog := []isa.Instruction{
		lw(1, 0, 0),
		sw(1, 0, -1),
		halt(),
	}
	e, stats := runChecked(t, prog, DefaultConfig(), map[int]int{0: 3})
	if stats.Reason != StopHalt {
		t.Fatalf("stop reason %v, want halt", stats.Reason)
	}
	for addr, val := range e.Memory() {
		want := 0
		if addr == 0 {
			want = 3
		}
		if val != want {
			t.Errorf("Mem[%d] = %d, want %d", addr, val, want)
		}
	}
}

func TestInvalidBranchTargetFallsBack(t *testing.T) {
	// The taken branch targets address 99; the simulator must fall back
	// to the sequential PC instead of crashing, so the load still runs.
	prog := []isa.Instruction{
		branch(isa.BEQ, 0, 0, 99), // 0: taken, bad target
		lw(1, 0, 0),               // 1
		halt(),                    // 2
	}
	e, stats := runChecked(t, prog, DefaultConfig(), map[int]int{0: 6})
	if stats.Reason != StopHalt {
		t.Fatalf("stop reason %v, want halt", stats.Reason)
	}
	wantRegs(t, e, map[int]int{1: 6})
}

func TestHaltNeedsNoStation(t *testing.T) {
	// With a single station held by the two-cycle MUL, HALT must still
	// issue, because it only consumes a ROB slot.
	cfg := DefaultConfig()
	cfg.Stations = 1
	prog := []isa.Instruction{
		arith(isa.MUL, 1, 0, 0),
		halt(),
	}
	_, stats := runChecked(t, prog, cfg, nil)
	if stats.Reason != StopHalt {
		t.Fatalf("stop reason %v, want halt", stats.Reason)
	}
	if stats.Commits != 2 {
		t.Errorf("commits = %d, want 2", stats.Commits)
	}
}

func TestProgramWithoutHalt(t *testing.T) {
	prog := []isa.Instruction{
		arith(isa.ADD, 1, 0, 0),
		arith(isa.ADD, 2, 0, 0),
	}
	_, stats := runChecked(t, prog, DefaultConfig(), nil)
	if stats.Reason != StopProgramEnd {
		t.Fatalf("stop reason %v, want program end", stats.Reason)
	}
	if stats.Commits != 2 {
		t.Errorf("commits = %d, want 2", stats.Commits)
	}
}

func TestEmptyProgram(t *testing.T) {
	_, stats := runChecked(t, nil, DefaultConfig(), nil)
	if stats.Reason != StopProgramEnd {
		t.Fatalf("stop reason %v, want program end", stats.Reason)
	}
	if stats.Cycles != 0 {
		t.Errorf("cycles = %d, want 0", stats.Cycles)
	}
}

func TestDeterministicAcrossRuns(t *testing.T) {
	prog := []isa.Instruction{
		lw(1, 0, 0),
		arith(isa.MUL, 2, 1, 1),
		sw(2, 0, 3),
		arith(isa.SUB, 3, 2, 1),
		halt(),
	}
	image := map[int]int{0: 4}
	e1, s1 := runChecked(t, prog, DefaultConfig(), image)
	e2, s2 := runChecked(t, prog, DefaultConfig(), image)
	if !reflect.DeepEqual(e1.Registers(), e2.Registers()) {
		t.Error("register files differ across identical runs")
	}
	if !reflect.DeepEqual(e1.Memory(), e2.Memory()) {
		t.Error("data memories differ across identical runs")
	}
	if s1 != s2 {
		t.Errorf("stats differ: %+v vs %+v", s1, s2)
	}
}

func TestWideMachine(t *testing.T) {
	prog := []isa.Instruction{
		arith(isa.ADD, 1, 0, 0),
		arith(isa.ADD, 2, 0, 0),
		arith(isa.ADD, 3, 0, 0),
		arith(isa.ADD, 4, 0, 0),
		arith(isa.ADD, 5, 0, 0),
		arith(isa.ADD, 6, 0, 0),
		halt(),
	}
	wideE, wideStats := runChecked(t, prog, WideConfig(), nil)
	_, baseStats := runChecked(t, prog, DefaultConfig(), nil)

	wantRegs(t, wideE, map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0, 6: 0})
	if wideStats.Commits != 7 {
		t.Errorf("commits = %d, want 7", wideStats.Commits)
	}
	if wideStats.Cycles >= baseStats.Cycles {
		t.Errorf("wide machine took %d cycles, baseline %d", wideStats.Cycles, baseStats.Cycles)
	}
}

func TestWideMachineDependentChain(t *testing.T) {
	prog := []isa.Instruction{
		lw(1, 0, 0),
		arith(isa.ADD, 2, 1, 1),
		arith(isa.ADD, 3, 2, 2),
		arith(isa.ADD, 4, 3, 3),
		halt(),
	}
	image := map[int]int{0: 1}
	e, _ := runChecked(t, prog, WideConfig(), image)
	refRegs, _ := RunInOrder(prog, WideConfig(), image, 1000)
	if !reflect.DeepEqual(e.Registers(), refRegs) {
		t.Errorf("pipeline regs %v, reference %v", e.Registers(), refRegs)
	}
}

func TestSnapshotRestoreResumes(t *testing.T) {
	prog := []isa.Instruction{
		lw(1, 0, 0),
		arith(isa.MUL, 2, 1, 1),
		arith(isa.ADD, 3, 2, 1),
		halt(),
	}
	image := map[int]int{0: 5}

	full, err := New(prog, DefaultConfig(), WithMemoryImage(image))
	if err != nil {
		t.Fatal(err)
	}
	paused, err := New(prog, DefaultConfig(), WithMemoryImage(image))
	if err != nil {
		t.Fatal(err)
	}

	// Pause mid-flight, while the MUL is still executing.
	paused.Step()
	paused.Step()
	var buf bytes.Buffer
	if err := paused.Snapshot(&buf); err != nil {
		t.Fatal(err)
	}
	resumed, err := Restore(&buf)
	if err != nil {
		t.Fatal(err)
	}

	fullStats := full.Run()
	resumedStats := resumed.Run()

	if !reflect.DeepEqual(full.Registers(), resumed.Registers()) {
		t.Errorf("resumed regs %v, want %v", resumed.Registers(), full.Registers())
	}
	if fullStats.Cycles != resumedStats.Cycles {
		t.Errorf("resumed run ended at cycle %d, full run at %d", resumedStats.Cycles, fullStats.Cycles)
	}
}

func TestProgramTooLarge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InstrMem = 2
	prog := []isa.Instruction{
		arith(isa.ADD, 1, 0, 0),
		arith(isa.ADD, 2, 0, 0),
		halt(),
	}
	if _, err := New(prog, cfg); err == nil {
		t.Fatal("expected an instruction-memory overflow error")
	}
}
