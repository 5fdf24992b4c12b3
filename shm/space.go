package shm

import (
	"fmt"
	"sync"

	"github.com/silvernodes/silvernode-sched/utils/errutil"
	"go.uber.org/atomic"
)

var (
	ErrPageFault  = errutil.NewWithCode(errutil.CodePageFault, "page fault")
	ErrMisaligned = errutil.NewWithCode(errutil.CodeMisaligned, "misaligned word access")
)

type page struct {
	words [PageSize / WordSize]atomic.Uint64
}

type pageTable map[uint64]*page

// Space is a simulated address space. Translation reads a copy-on-write
// page table, so word access never takes a lock; only Map and Unmap do.
type Space struct {
	id     int64
	name   string
	layout Layout
	table  atomic.Value
	sync.Mutex
}

var _spaceSeq atomic.Int64

func NewSpace(name string, layout Layout) *Space {
	s := new(Space)
	s.id = _spaceSeq.Inc()
	s.name = name
	s.layout = layout
	s.table.Store(pageTable{})
	return s
}

func (s *Space) Id() int64 {
	return s.id
}

func (s *Space) Name() string {
	return s.name
}

func (s *Space) Layout() Layout {
	return s.layout
}

func (s *Space) pages() pageTable {
	return s.table.Load().(pageTable)
}

// Map maps n fresh zeroed pages starting at va. Already mapped pages keep
// their contents.
func (s *Space) Map(va uint64, n int) error {
	if va%PageSize != 0 {
		return errutil.Extendf(ErrMisaligned, "map %#x", va)
	}
	s.Lock()
	defer s.Unlock()

	old := s.pages()
	next := make(pageTable, len(old)+n)
	for k, v := range old {
		next[k] = v
	}
	for i := 0; i < n; i++ {
		vpn := va/PageSize + uint64(i)
		if _, ok := next[vpn]; !ok {
			next[vpn] = new(page)
		}
	}
	s.table.Store(next)
	return nil
}

func (s *Space) Unmap(va uint64, n int) {
	s.Lock()
	defer s.Unlock()

	old := s.pages()
	next := make(pageTable, len(old))
	for k, v := range old {
		next[k] = v
	}
	for i := 0; i < n; i++ {
		delete(next, va/PageSize+uint64(i))
	}
	s.table.Store(next)
}

func (s *Space) Mapped(va uint64) bool {
	_, ok := s.pages()[va/PageSize]
	return ok
}

// MapControl maps the control page and message area of the space's layout.
func (s *Space) MapControl() error {
	if err := s.layout.Validate(); err != nil {
		return err
	}
	if err := s.Map(s.layout.Base, 1); err != nil {
		return err
	}
	if s.layout.MsgPages > 0 {
		return s.Map(s.layout.MsgArea, int(s.layout.MsgPages))
	}
	return nil
}

func (s *Space) translate(va uint64) (*atomic.Uint64, error) {
	if va%WordSize != 0 {
		return nil, errutil.Extendf(ErrMisaligned, "%s: va %#x", s.name, va)
	}
	p, ok := s.pages()[va/PageSize]
	if !ok {
		return nil, errutil.Extendf(ErrPageFault, "%s: va %#x", s.name, va)
	}
	return &p.words[(va%PageSize)/WordSize], nil
}

func (s *Space) Load(va uint64) (uint64, error) {
	w, err := s.translate(va)
	if err != nil {
		return 0, err
	}
	return w.Load(), nil
}

func (s *Space) Store(va uint64, v uint64) error {
	w, err := s.translate(va)
	if err != nil {
		return err
	}
	w.Store(v)
	return nil
}

func (s *Space) CAS(va uint64, old, new uint64) (bool, error) {
	w, err := s.translate(va)
	if err != nil {
		return false, err
	}
	return w.CAS(old, new), nil
}

// Word pins the word at va. The handle stays valid even if the page is
// later unmapped.
func (s *Space) Word(va uint64) (*Word, error) {
	w, err := s.translate(va)
	if err != nil {
		return nil, err
	}
	return &Word{va: va, w: w}, nil
}

func (s *Space) String() string {
	return fmt.Sprintf("space(%d:%s)", s.id, s.name)
}
