package process

// Step fetches one coroutine for tid and polls it once. KernelScheduler
// coroutines that come back pending are re-queued here, without any
// external wake. It reports false when nothing was ready.
func (e *Executor) Step(tid int) (bool, error) {
	c, err := e.Fetch(tid)
	if err != nil || c == nil {
		return false, err
	}
	state, err := e.ExecuteOnce(tid, c)
	if err != nil {
		return true, err
	}
	if state == Pending && c.kind == KernelScheduler {
		if err := e.Wake(c.id); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Drain runs Step until no coroutine is ready or budget polls were made.
// A budget <= 0 means no limit, which never returns while a
// KernelScheduler coroutine keeps yielding.
func (e *Executor) Drain(tid int, budget int) (int, error) {
	n := 0
	for budget <= 0 || n < budget {
		ran, err := e.Step(tid)
		if err != nil {
			return n, err
		}
		if !ran {
			break
		}
		n++
	}
	return n, nil
}
