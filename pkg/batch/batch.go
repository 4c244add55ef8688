// Package batch runs many programs through independent engines in
// parallel. Runs never share state: workers take indices from the work
// channel, each writes only its own outcome slot, and a wait group plus an
// atomic progress counter track completion.
package batch

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/oisee/tomasulo-sim/pkg/asm"
	"github.com/oisee/tomasulo-sim/pkg/core"
	"github.com/oisee/tomasulo-sim/pkg/result"
)

// Config holds batch options.
type Config struct {
	Core       core.Config
	NumWorkers int  // defaults to NumCPU
	Verbose    bool // print one line per completed run
}

// Outcome pairs a program path with its run result or failure.
type Outcome struct {
	Path    string
	Summary result.Summary
	Err     error
}

// Run assembles and simulates every path. Outcomes keep input order.
func Run(paths []string, cfg Config) []Outcome {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = runtime.NumCPU()
	}

	outcomes := make([]Outcome, len(paths))
	ch := make(chan int, len(paths))
	for i := range paths {
		ch <- i
	}
	close(ch)

	var completed atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < cfg.NumWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range ch {
				outcomes[i] = runOne(paths[i], cfg.Core)
				n := completed.Add(1)
				if cfg.Verbose {
					if err := outcomes[i].Err; err != nil {
						fmt.Printf("  [%d/%d] %s: %v\n", n, len(paths), paths[i], err)
					} else {
						fmt.Printf("  [%d/%d] %s: %d cycles, %d commits (%s)\n",
							n, len(paths), paths[i],
							outcomes[i].Summary.Cycles, outcomes[i].Summary.Commits,
							outcomes[i].Summary.Reason)
					}
				}
			}
		}()
	}
	wg.Wait()

	return outcomes
}

func runOne(path string, cfg core.Config) Outcome {
	prog, err := asm.AssembleFile(path, cfg.Registers)
	if err != nil {
		return Outcome{Path: path, Err: err}
	}
	engine, err := core.New(prog.Instrs, cfg)
	if err != nil {
		return Outcome{Path: path, Err: err}
	}
	stats := engine.Run()
	return Outcome{Path: path, Summary: result.Summarize(engine, stats)}
}
