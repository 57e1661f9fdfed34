package system

import (
	"sort"
	"time"
)

// Runner executes systems in phase order each tick. Systems sharing a phase
// run in registration order.
type Runner struct {
	systems []System
	sorted  bool
	err     error
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 8),
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Tick runs one full frame. When a Stopper reports an error the remaining
// systems of the frame are skipped and the error is returned; every later
// Tick returns it again without running anything.
func (r *Runner) Tick(dt time.Duration) error {
	if r.err != nil {
		return r.err
	}
	r.ensureSorted()
	for _, s := range r.systems {
		s.Update(dt)
		if st, ok := s.(Stopper); ok {
			if err := st.Err(); err != nil {
				r.err = err
				return err
			}
		}
	}
	return nil
}

// TickPhase 只執行指定 Phase 的 System，忽略 Stopper 錯誤。
// 用於主迴圈停止後的最後一次輸出 flush。
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if s.Phase() == phase {
			s.Update(dt)
		}
	}
}

// Err is the error that stopped the runner, if any.
func (r *Runner) Err() error { return r.err }

func (r *Runner) ensureSorted() {
	if r.sorted {
		return
	}
	sort.SliceStable(r.systems, func(i, j int) bool {
		return r.systems[i].Phase() < r.systems[j].Phase()
	})
	r.sorted = true
}
