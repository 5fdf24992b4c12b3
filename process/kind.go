package process

type CoroutineKind uint8

const (
	// KernelScheduler coroutines are re-queued by the run loop whenever
	// they return pending.
	KernelScheduler CoroutineKind = iota
	KernelSyscall
	UserNormal
	Empty
)

func (k CoroutineKind) String() string {
	switch k {
	case KernelScheduler:
		return "KernelScheduler"
	case KernelSyscall:
		return "KernelSyscall"
	case UserNormal:
		return "UserNormal"
	case Empty:
		return "Empty"
	}
	return "Unknown"
}

func (k CoroutineKind) Valid() bool {
	return k <= Empty
}
