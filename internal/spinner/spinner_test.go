package spinner_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/mudclient/internal/spinner"
)

func TestFrames_Distinct(t *testing.T) {
	seen := map[string]bool{}
	for _, f := range spinner.Frames {
		assert.False(t, seen[f], "frame %q repeated", f)
		seen[f] = true
	}
	assert.Len(t, seen, 10)
}

func TestIsFrame(t *testing.T) {
	assert.True(t, spinner.IsFrame(spinner.Frames[3]))
	assert.False(t, spinner.IsFrame(""))
	assert.False(t, spinner.IsFrame("The door creaks"))
	assert.False(t, spinner.IsFrame(spinner.Frames[0]+spinner.Frames[1]))
}

func TestNext_WrapsAround(t *testing.T) {
	assert.Equal(t, spinner.Frames[1], spinner.Next(spinner.Frames[0]))
	assert.Equal(t, spinner.Frames[0], spinner.Next(spinner.Frames[9]))
	assert.Equal(t, spinner.Frames[0], spinner.Next("not a frame"))
}

func TestPropertyFrameCycle(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 10000).Draw(t, "n")
		if spinner.Frame(n+10) != spinner.Frame(n) {
			t.Fatalf("cycle length is not 10 at n=%d", n)
		}
		if spinner.Next(spinner.Frame(n)) != spinner.Frame(n+1) {
			t.Fatalf("Next(Frame(%d)) != Frame(%d)", n, n+1)
		}
	})
}

func TestTimer_TicksRepeatedly(t *testing.T) {
	var ticks atomic.Int32
	tm := spinner.Start(5*time.Millisecond, func() { ticks.Add(1) })
	defer tm.Stop()

	assert.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestTimer_StopPreventsTicks(t *testing.T) {
	var ticks atomic.Int32
	tm := spinner.Start(30*time.Millisecond, func() { ticks.Add(1) })
	tm.Stop()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), ticks.Load())
	assert.True(t, tm.Stopped())
}

func TestTimer_StopIdempotent(t *testing.T) {
	tm := spinner.Start(50*time.Millisecond, func() {})
	tm.Stop()
	tm.Stop()
	tm.Stop()
}
