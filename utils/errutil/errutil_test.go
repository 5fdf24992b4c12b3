package errutil

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeErrorMatching(t *testing.T) {
	sentinel := NewWithCode(CodeQueueFull, "ready queue full")
	wrapped := Extendf(sentinel, "spawn at level %d", 3)

	assert.True(t, Is(wrapped, sentinel))
	assert.True(t, Is(wrapped, NewWithCode(CodeQueueFull, "other text")))
	assert.False(t, Is(wrapped, NewWithCode(CodeNotFound, "ready queue full")))
	assert.Equal(t, CodeQueueFull, CodeOf(wrapped))
	assert.Equal(t, 0, CodeOf(New("plain")))
	assert.Same(t, sentinel, Cause(wrapped))
	assert.True(t, strings.HasPrefix(wrapped.Error(), "spawn at level 3: [1001]"))
}

func TestExtendWithCode(t *testing.T) {
	err := ExtendWithCode(CodeBadConf, "bad conf", errors.New("missing key"))
	assert.Equal(t, CodeBadConf, CodeOf(err))
	assert.Contains(t, err.Error(), "missing key")
}

func TestTryCatch(t *testing.T) {
	var caught error
	Try(func() {
		panic("boom")
	}, func(err error) {
		caught = err
	})
	assert.Error(t, caught)
	assert.Contains(t, caught.Error(), "boom")

	ran := false
	Try(func() { ran = true }, func(err error) {
		t.Fatalf("unexpected catch: %v", err)
	})
	assert.True(t, ran)

	var reported error
	CustomErrFunc(func(err error) { reported = err })
	defer CustomErrFunc(nil)
	Try(func() { panic("nobody catches") }, nil)
	assert.Contains(t, reported.Error(), "nobody catches")
}
