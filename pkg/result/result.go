// Package result holds the observable outcome of a simulation run and its
// JSON encoding.
package result

import (
	"encoding/json"
	"io"

	"github.com/oisee/tomasulo-sim/pkg/core"
)

// Summary is the final architectural state plus run statistics.
type Summary struct {
	Registers []int       `json:"registers"`
	Memory    map[int]int `json:"memory,omitempty"` // nonzero words only
	Cycles    int         `json:"cycles"`
	Commits   int         `json:"commits"`
	Stalls    int         `json:"stalls"`
	Flushes   int         `json:"flushes"`
	Reason    string      `json:"reason"`
}

// Summarize captures a finished engine's observable state.
func Summarize(e *core.Engine, stats core.Stats) Summary {
	s := Summary{
		Registers: e.Registers(),
		Cycles:    stats.Cycles,
		Commits:   stats.Commits,
		Stalls:    stats.Stalls,
		Flushes:   stats.Flushes,
		Reason:    stats.Reason.String(),
	}
	for addr, val := range e.Memory() {
		if val != 0 {
			if s.Memory == nil {
				s.Memory = make(map[int]int)
			}
			s.Memory[addr] = val
		}
	}
	return s
}

// WriteJSON writes a summary as indented JSON.
func WriteJSON(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// ReadJSON parses a summary written by WriteJSON.
func ReadJSON(r io.Reader) (Summary, error) {
	var s Summary
	err := json.NewDecoder(r).Decode(&s)
	return s, err
}
