package id

import (
	"bytes"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_FormatAndTime(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	g := NewGenerator(WithClock(func() time.Time { return at }))

	s := g.Generate()
	assert.Len(t, s, 26)
	assert.True(t, IsValid(s))

	ts, err := Time(s)
	require.NoError(t, err)
	assert.Equal(t, at.UnixMilli(), ts.UnixMilli())
}

func TestGenerator_MonotonicWithinMillisecond(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	g := NewGenerator(
		WithClock(func() time.Time { return at }),
		WithEntropy(bytes.NewReader(bytes.Repeat([]byte{0x01}, 1024))),
	)

	ids := make([]string, 50)
	for i := range ids {
		ids[i] = g.Generate()
	}
	assert.True(t, sort.StringsAreSorted(ids))
}

func TestNewRequestID_Concurrent(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := NewRequestID()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
}

func TestIsValid(t *testing.T) {
	assert.False(t, IsValid(""))
	assert.False(t, IsValid("not-a-ulid"))
	assert.True(t, IsValid("01ARZ3NDEKTSV4RRFFQ69G5FAV"))
}
