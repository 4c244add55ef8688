// Package asm assembles the simulator's MIPS-like text format into decoded
// instructions. Two passes: the first collects label addresses so branches
// may reference labels defined later, the second decodes operands.
package asm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/oisee/tomasulo-sim/pkg/isa"
)

// Program is an assembled instruction stream plus its label table.
type Program struct {
	Instrs   []isa.Instruction
	Labels   map[string]int
	Warnings []string // non-fatal diagnostics: skipped lines, unknown mnemonics
}

// Assemble reads one instruction per line. Blank lines and lines starting
// with ';' or '#' are ignored; a line ending in ':' labels the address of
// the next instruction. Malformed operand lists are skipped with a warning;
// an out-of-range register index aborts with an error. numRegs bounds the
// accepted register indices (R0..R(numRegs-1)).
func Assemble(r io.Reader, numRegs int) (*Program, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading program: %w", err)
	}

	prog := &Program{Labels: make(map[string]int)}

	// Pass 1: label addresses. Labels bind to the next instruction, so
	// count instruction lines only.
	addr := 0
	for _, raw := range lines {
		line := stripComment(raw)
		if line == "" {
			continue
		}
		if name, ok := labelName(line); ok {
			prog.Labels[name] = addr
			continue
		}
		addr++
	}

	// Pass 2: decode.
	for n, raw := range lines {
		line := stripComment(raw)
		if line == "" {
			continue
		}
		if _, ok := labelName(line); ok {
			continue
		}

		in, err := prog.parseInstruction(line, numRegs)
		if err != nil {
			if _, oor := err.(regRangeError); oor {
				return nil, fmt.Errorf("line %d: %w", n+1, err)
			}
			prog.Warnings = append(prog.Warnings, fmt.Sprintf("line %d: %v (skipped)", n+1, err))
			continue
		}
		prog.Instrs = append(prog.Instrs, in)
		if in.Op == isa.HALT {
			break
		}
	}

	return prog, nil
}

// AssembleFile assembles a program from disk.
func AssembleFile(path string, numRegs int) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := Assemble(f, numRegs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// regRangeError aborts assembly: issuing an instruction with a bad register
// index would corrupt the register file at commit.
type regRangeError struct{ reg, max int }

func (e regRangeError) Error() string {
	return fmt.Sprintf("register R%d out of range (0..%d)", e.reg, e.max-1)
}

func stripComment(line string) string {
	for _, marker := range []string{";", "#"} {
		if i := strings.Index(line, marker); i >= 0 {
			line = line[:i]
		}
	}
	return strings.TrimSpace(line)
}

func labelName(line string) (string, bool) {
	if !strings.HasSuffix(line, ":") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimSuffix(line, ":")), true
}

// fields splits an operand list on commas and whitespace. "R1, R2,R3" and
// "R1 R2 R3" tokenize the same way.
func fields(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}

func (p *Program) parseInstruction(line string, numRegs int) (isa.Instruction, error) {
	toks := strings.Fields(line)
	mnemonic, rest := toks[0], strings.Join(toks[1:], " ")
	op, known := isa.FromMnemonic(mnemonic)
	if !known {
		// Unknown mnemonics decode as HALT, as the core expects.
		p.Warnings = append(p.Warnings, fmt.Sprintf("unknown mnemonic %q, treated as HALT", mnemonic))
		return isa.Instruction{Op: isa.HALT, Rd: isa.NoReg, Rs1: isa.NoReg, Rs2: isa.NoReg}, nil
	}
	args := fields(rest)

	in := isa.Instruction{Op: op, Rd: isa.NoReg, Rs1: isa.NoReg, Rs2: isa.NoReg}

	switch {
	case op == isa.HALT:
		return in, nil

	case isa.IsArith(op):
		if len(args) != 3 {
			return in, fmt.Errorf("%s wants Rd, Rs1, Rs2", op)
		}
		var err error
		if in.Rd, err = parseReg(args[0], numRegs); err != nil {
			return in, err
		}
		if in.Rs1, err = parseReg(args[1], numRegs); err != nil {
			return in, err
		}
		in.Rs2, err = parseReg(args[2], numRegs)
		return in, err

	case op == isa.LW:
		if len(args) != 3 {
			return in, fmt.Errorf("LW wants Rd, Rs1, imm")
		}
		var err error
		if in.Rd, err = parseReg(args[0], numRegs); err != nil {
			return in, err
		}
		if in.Rs1, err = parseReg(args[1], numRegs); err != nil {
			return in, err
		}
		in.Imm, err = strconv.Atoi(args[2])
		if err != nil {
			return in, fmt.Errorf("bad offset %q", args[2])
		}
		return in, nil

	case op == isa.SW:
		return p.parseStore(in, args, numRegs)

	case op == isa.J:
		if len(args) != 1 {
			return in, fmt.Errorf("J wants a target")
		}
		return p.resolveTarget(in, args[0])

	case op == isa.JAL:
		if len(args) != 2 {
			return in, fmt.Errorf("JAL wants Rd, target")
		}
		var err error
		if in.Rd, err = parseReg(args[0], numRegs); err != nil {
			return in, err
		}
		return p.resolveTarget(in, args[1])

	default: // conditional branches
		if len(args) != 3 {
			return in, fmt.Errorf("%s wants Rs1, Rs2, target", op)
		}
		var err error
		if in.Rs1, err = parseReg(args[0], numRegs); err != nil {
			return in, err
		}
		if in.Rs2, err = parseReg(args[1], numRegs); err != nil {
			return in, err
		}
		return p.resolveTarget(in, args[2])
	}
}

// parseStore accepts both store forms: "SW Rs2, imm(Rs1)" and
// "SW Rs2, Rs1, imm".
func (p *Program) parseStore(in isa.Instruction, args []string, numRegs int) (isa.Instruction, error) {
	if len(args) == 2 {
		// SW Rs2, imm(Rs1)
		src, err := parseReg(args[0], numRegs)
		if err != nil {
			return in, err
		}
		open := strings.Index(args[1], "(")
		if open < 0 || !strings.HasSuffix(args[1], ")") {
			return in, fmt.Errorf("bad store address %q", args[1])
		}
		imm, err := strconv.Atoi(args[1][:open])
		if err != nil {
			return in, fmt.Errorf("bad offset %q", args[1][:open])
		}
		base, err := parseReg(args[1][open+1:len(args[1])-1], numRegs)
		if err != nil {
			return in, err
		}
		in.Rs1, in.Rs2, in.Imm = base, src, imm
		return in, nil
	}
	if len(args) == 3 {
		// SW Rs2, Rs1, imm
		src, err := parseReg(args[0], numRegs)
		if err != nil {
			return in, err
		}
		base, err := parseReg(args[1], numRegs)
		if err != nil {
			return in, err
		}
		imm, err := strconv.Atoi(args[2])
		if err != nil {
			return in, fmt.Errorf("bad offset %q", args[2])
		}
		in.Rs1, in.Rs2, in.Imm = base, src, imm
		return in, nil
	}
	return in, fmt.Errorf("SW wants Rs2, imm(Rs1) or Rs2, Rs1, imm")
}

// resolveTarget fills Imm from a label or a literal address.
func (p *Program) resolveTarget(in isa.Instruction, target string) (isa.Instruction, error) {
	if addr, ok := p.Labels[target]; ok {
		in.Imm = addr
		in.Label = target
		return in, nil
	}
	addr, err := strconv.Atoi(target)
	if err != nil {
		return in, fmt.Errorf("unknown label or address %q", target)
	}
	in.Imm = addr
	return in, nil
}

func parseReg(tok string, numRegs int) (int, error) {
	if !strings.HasPrefix(tok, "R") {
		return 0, fmt.Errorf("expected register, got %q", tok)
	}
	n, err := strconv.Atoi(tok[1:])
	if err != nil {
		return 0, fmt.Errorf("bad register %q", tok)
	}
	if n < 0 || n >= numRegs {
		return 0, regRangeError{n, numRegs}
	}
	return n, nil
}
