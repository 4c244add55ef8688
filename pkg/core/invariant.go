package core

import "fmt"

// CheckInvariants validates the cross-structure consistency that must hold
// at every cycle boundary. It is meant for tests and debugging; a healthy
// engine never trips it.
func (e *Engine) CheckInvariants() error {
	inUse := 0
	for i := range e.rob {
		if e.rob[i].InUse {
			inUse++
		}
		if e.rob[i].Ready && !e.rob[i].InUse {
			return fmt.Errorf("rob[%d] ready but not in use", i)
		}
	}
	if inUse != e.count {
		return fmt.Errorf("rob occupancy %d but %d entries in use", e.count, inUse)
	}

	seen := make(map[int]int)
	for i := range e.rob {
		if !e.rob[i].InUse {
			continue
		}
		if prev, dup := seen[e.rob[i].IssuePC]; dup {
			return fmt.Errorf("rob[%d] and rob[%d] share issue PC %d", prev, i, e.rob[i].IssuePC)
		}
		seen[e.rob[i].IssuePC] = i
	}

	for i := range e.stations {
		s := &e.stations[i]
		if !s.Busy {
			continue
		}
		if s.Dest < 0 || s.Dest >= len(e.rob) || !e.rob[s.Dest].InUse {
			return fmt.Errorf("station %d targets rob[%d] which is not in use", i, s.Dest)
		}
		for _, tag := range []int{s.TagJ, s.TagK} {
			if tag == TagNone {
				continue
			}
			if tag < 0 || tag >= len(e.rob) {
				return fmt.Errorf("station %d holds tag %d out of range", i, tag)
			}
			if !e.rob[tag].InUse || e.rob[tag].Ready {
				return fmt.Errorf("station %d waits on rob[%d] which is not pending", i, tag)
			}
		}
	}
	return nil
}
