package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/oisee/tomasulo-sim/pkg/asm"
	"github.com/oisee/tomasulo-sim/pkg/batch"
	"github.com/oisee/tomasulo-sim/pkg/core"
	"github.com/oisee/tomasulo-sim/pkg/isa"
	"github.com/oisee/tomasulo-sim/pkg/result"
	"github.com/oisee/tomasulo-sim/pkg/trace"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tomsim",
		Short: "Cycle-accurate Tomasulo/ROB out-of-order core simulator",
	}

	// run command
	var wide bool
	var stations, robSize, regs, memWords, issueWidth, commitWidth, maxCycles int
	var quiet bool
	var jsonOut string
	var memInit []string
	var check bool

	runCmd := &cobra.Command{
		Use:   "run [program]",
		Short: "Simulate an assembly program and print the per-cycle trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := buildConfig(cmd, wide, stations, robSize, regs, memWords,
				issueWidth, commitWidth, maxCycles)

			prog, err := asm.AssembleFile(args[0], cfg.Registers)
			if err != nil {
				return err
			}
			for _, w := range prog.Warnings {
				fmt.Fprintln(os.Stderr, w)
			}

			image, err := parseMemInit(memInit)
			if err != nil {
				return err
			}

			opts := []core.Option{core.WithMemoryImage(image)}
			var console *trace.Console
			if !quiet {
				console = trace.NewConsole(os.Stdout, os.Stderr)
				opts = append(opts, core.WithTracer(console))
			}

			engine, err := core.New(prog.Instrs, cfg, opts...)
			if err != nil {
				return err
			}
			stats := engine.Run()

			switch stats.Reason {
			case core.StopCycleLimit:
				fmt.Printf("Simulation exceeded %d cycles, aborting.\n", cfg.MaxCycles)
			case core.StopNoProgress:
				fmt.Println("No progress detected, stopping simulation.")
			}
			if console != nil {
				console.FinalState(engine.Registers())
			}
			fmt.Printf("Cycles: %d, commits: %d, stalls: %d, flushes: %d (%s)\n",
				stats.Cycles, stats.Commits, stats.Stalls, stats.Flushes, stats.Reason)

			if check {
				refRegs, _ := core.RunInOrder(prog.Instrs, cfg, image, 10_000)
				if mismatch := diffRegs(engine.Registers(), refRegs); mismatch != "" {
					return fmt.Errorf("pipeline disagrees with in-order reference: %s", mismatch)
				}
				fmt.Println("Check: final registers match the in-order reference.")
			}

			if jsonOut != "" {
				f, err := os.Create(jsonOut)
				if err != nil {
					return err
				}
				defer f.Close()
				if err := result.WriteJSON(f, result.Summarize(engine, stats)); err != nil {
					return err
				}
				fmt.Printf("Written to %s\n", jsonOut)
			}
			return nil
		},
	}
	addMachineFlags(runCmd, &wide, &stations, &robSize, &regs, &memWords,
		&issueWidth, &commitWidth, &maxCycles)
	runCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress the per-cycle trace")
	runCmd.Flags().StringVar(&jsonOut, "json", "", "Write the final state summary to a JSON file")
	runCmd.Flags().StringArrayVar(&memInit, "mem", nil, "Preload a data-memory word, addr=value (repeatable)")
	runCmd.Flags().BoolVar(&check, "check", false, "Compare final registers against the in-order reference")

	// disasm command
	disasmCmd := &cobra.Command{
		Use:   "disasm [program]",
		Short: "Assemble a program and print the decoded instructions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := asm.AssembleFile(args[0], core.DefaultConfig().Registers)
			if err != nil {
				return err
			}
			for _, w := range prog.Warnings {
				fmt.Fprintln(os.Stderr, w)
			}
			for pc, in := range prog.Instrs {
				fmt.Printf("%3d: %s\n", pc, isa.Disassemble(in))
			}
			return nil
		},
	}

	// batch command
	var numWorkers int
	var batchVerbose bool
	var batchWide bool

	batchCmd := &cobra.Command{
		Use:   "batch [programs...]",
		Short: "Run many programs in parallel and report each outcome",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := core.DefaultConfig()
			if batchWide {
				cfg = core.WideConfig()
			}
			outcomes := batch.Run(args, batch.Config{
				Core:       cfg,
				NumWorkers: numWorkers,
				Verbose:    batchVerbose,
			})
			failed := 0
			for _, o := range outcomes {
				if o.Err != nil {
					failed++
					fmt.Fprintf(os.Stderr, "%s: %v\n", o.Path, o.Err)
					continue
				}
				fmt.Printf("%s: %s, %d cycles, regs %v\n",
					o.Path, o.Summary.Reason, o.Summary.Cycles, o.Summary.Registers)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d programs failed", failed, len(outcomes))
			}
			return nil
		},
	}
	batchCmd.Flags().IntVar(&numWorkers, "workers", 0, "Number of workers (0 = NumCPU)")
	batchCmd.Flags().BoolVarP(&batchVerbose, "verbose", "v", false, "Print progress per completed run")
	batchCmd.Flags().BoolVar(&batchWide, "wide", false, "Use the 8-wide machine configuration")

	rootCmd.AddCommand(runCmd, disasmCmd, batchCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// addMachineFlags registers the structural machine flags shared by run.
func addMachineFlags(cmd *cobra.Command, wide *bool, stations, robSize, regs,
	memWords, issueWidth, commitWidth, maxCycles *int) {
	def := core.DefaultConfig()
	cmd.Flags().BoolVar(wide, "wide", false, "Use the 8-wide machine configuration")
	cmd.Flags().IntVar(stations, "stations", def.Stations, "Reservation station count")
	cmd.Flags().IntVar(robSize, "rob", def.ROBSize, "Reorder buffer capacity")
	cmd.Flags().IntVar(regs, "regs", def.Registers, "Architectural register count")
	cmd.Flags().IntVar(memWords, "mem-words", def.MemWords, "Data memory size in words")
	cmd.Flags().IntVar(issueWidth, "issue-width", def.IssueWidth, "Instructions issued per cycle")
	cmd.Flags().IntVar(commitWidth, "commit-width", def.CommitWidth, "Instructions committed per cycle")
	cmd.Flags().IntVar(maxCycles, "max-cycles", def.MaxCycles, "Cycle safety cap")
}

// buildConfig starts from the baseline or wide machine and applies any
// explicitly set structural flags on top.
func buildConfig(cmd *cobra.Command, wide bool, stations, robSize, regs,
	memWords, issueWidth, commitWidth, maxCycles int) core.Config {
	cfg := core.DefaultConfig()
	if wide {
		cfg = core.WideConfig()
	}
	if cmd.Flags().Changed("stations") {
		cfg.Stations = stations
	}
	if cmd.Flags().Changed("rob") {
		cfg.ROBSize = robSize
	}
	if cmd.Flags().Changed("regs") {
		cfg.Registers = regs
	}
	if cmd.Flags().Changed("mem-words") {
		cfg.MemWords = memWords
	}
	if cmd.Flags().Changed("issue-width") {
		cfg.IssueWidth = issueWidth
	}
	if cmd.Flags().Changed("commit-width") {
		cfg.CommitWidth = commitWidth
	}
	if cmd.Flags().Changed("max-cycles") {
		cfg.MaxCycles = maxCycles
	}
	return cfg
}

// parseMemInit parses repeated --mem addr=value flags.
func parseMemInit(specs []string) (map[int]int, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	image := make(map[int]int, len(specs))
	for _, spec := range specs {
		addrStr, valStr, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --mem value %q: use addr=value", spec)
		}
		addr, err := strconv.Atoi(strings.TrimSpace(addrStr))
		if err != nil {
			return nil, fmt.Errorf("invalid --mem address %q", addrStr)
		}
		val, err := strconv.Atoi(strings.TrimSpace(valStr))
		if err != nil {
			return nil, fmt.Errorf("invalid --mem value %q", valStr)
		}
		image[addr] = val
	}
	return image, nil
}

func diffRegs(got, want []int) string {
	for i := range got {
		if got[i] != want[i] {
			return fmt.Sprintf("R%d = %d, reference %d", i, got[i], want[i])
		}
	}
	return ""
}
