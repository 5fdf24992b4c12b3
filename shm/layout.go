package shm

import (
	"fmt"

	"github.com/silvernodes/silvernode-sched/utils/errutil"
)

const (
	PageSize = 4096
	WordSize = 8
)

// Layout is the set of control words every space that links the scheduler
// module carries at byte-identical virtual addresses. Loader, module and
// callers all agree on it; changing it breaks every one of them at once.
type Layout struct {
	Base       uint64 // control page
	PrioWord   uint64 // last published highest active priority
	BitmapWord uint64 // per-space priority bitmap
	HeapPtr    uint64 // pointer-to-heap-pointer of the module instance
	MsgArea    uint64 // inter-process message area, page aligned
	MsgPages   uint64
}

const (
	defaultBase = 0x86fff000
	defaultMsg  = 0x86ffd000
)

func DefaultLayout() Layout {
	return Layout{
		Base:       defaultBase,
		PrioWord:   defaultBase + 0x00,
		BitmapWord: defaultBase + 0x08,
		HeapPtr:    defaultBase + 0x10,
		MsgArea:    defaultMsg,
		MsgPages:   2,
	}
}

func (l Layout) Validate() error {
	if l.Base%PageSize != 0 {
		return errutil.NewWithCode(errutil.CodeMisaligned, fmt.Sprintf("control base %#x not page aligned", l.Base))
	}
	words := []struct {
		name string
		va   uint64
	}{
		{"prio", l.PrioWord},
		{"bitmap", l.BitmapWord},
		{"heap", l.HeapPtr},
	}
	seen := make(map[uint64]string, len(words))
	for _, w := range words {
		if w.va%WordSize != 0 {
			return errutil.NewWithCode(errutil.CodeMisaligned, fmt.Sprintf("%s word %#x not word aligned", w.name, w.va))
		}
		if w.va < l.Base || w.va >= l.Base+PageSize {
			return errutil.NewWithCode(errutil.CodeBadConf, fmt.Sprintf("%s word %#x outside control page", w.name, w.va))
		}
		if other, ok := seen[w.va]; ok {
			return errutil.NewWithCode(errutil.CodeBadConf, fmt.Sprintf("%s word overlaps %s at %#x", w.name, other, w.va))
		}
		seen[w.va] = w.name
	}
	if l.MsgPages > 0 {
		if l.MsgArea%PageSize != 0 {
			return errutil.NewWithCode(errutil.CodeMisaligned, fmt.Sprintf("message area %#x not page aligned", l.MsgArea))
		}
		end := l.MsgArea + l.MsgPages*PageSize
		if l.MsgArea <= l.Base && l.Base < end {
			return errutil.NewWithCode(errutil.CodeBadConf, "message area overlaps control page")
		}
	}
	return nil
}
