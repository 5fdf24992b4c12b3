package process

import (
	"fmt"
	"math"

	"github.com/silvernodes/silvernode-sched/utils/errutil"
	"go.uber.org/atomic"
)

type CoroutineId uint64

// idLimit is half of the id space; ids past it are never handed out.
const idLimit = math.MaxUint64 / 2

var ErrIdExhausted = errutil.NewWithCode(errutil.CodeIdExhausted, "coroutine id space exhausted")

func (id CoroutineId) String() string {
	return fmt.Sprintf("cid#%d", uint64(id))
}

type Generator struct {
	next atomic.Uint64
}

func NewGenerator() *Generator {
	return new(Generator)
}

// TryGenerate returns a fresh id, or ErrIdExhausted once half the id space
// has been consumed. Ids start at 1; 0 means "no coroutine".
func (g *Generator) TryGenerate() (CoroutineId, error) {
	n := g.next.Inc()
	if n > idLimit {
		g.next.Dec()
		return 0, ErrIdExhausted
	}
	return CoroutineId(n), nil
}

// Generate is TryGenerate for callers that treat exhaustion as fatal.
func (g *Generator) Generate() CoroutineId {
	id, err := g.TryGenerate()
	if err != nil {
		panic(err)
	}
	return id
}

var _gen = NewGenerator()

func Generate() CoroutineId {
	return _gen.Generate()
}
