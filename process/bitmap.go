package process

import (
	"math/bits"

	"github.com/silvernodes/silvernode-sched/shm"
)

// Bitmap keeps one "believed non-empty" bit per priority level in a shared
// control word. Readers take no lock and may see a stale value.
type Bitmap struct {
	word   *shm.Word
	levels int
}

func NewBitmap(word *shm.Word, levels int) *Bitmap {
	if word == nil {
		word = shm.NewLocalWord()
	}
	if levels > 64 {
		levels = 64
	}
	b := new(Bitmap)
	b.word = word
	b.levels = levels
	return b
}

func (b *Bitmap) Levels() int {
	return b.levels
}

// Set reports whether the bit was clear before.
func (b *Bitmap) Set(level int) bool {
	mask := uint64(1) << uint(level)
	return b.word.Or(mask)&mask == 0
}

func (b *Bitmap) Clear(level int) {
	b.word.AndNot(uint64(1) << uint(level))
}

func (b *Bitmap) Test(level int) bool {
	return b.word.Load()&(uint64(1)<<uint(level)) != 0
}

func (b *Bitmap) Bits() uint64 {
	return b.word.Load()
}

func (b *Bitmap) Empty() bool {
	return b.word.Load() == 0
}

// Lowest returns the numerically lowest, i.e. most urgent, set level.
func (b *Bitmap) Lowest() (int, bool) {
	v := b.word.Load()
	if v == 0 {
		return 0, false
	}
	return bits.TrailingZeros64(v), true
}
