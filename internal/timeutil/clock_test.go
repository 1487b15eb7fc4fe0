package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}

	start := c.Now()
	c.Sleep(time.Millisecond)
	assert.GreaterOrEqual(t, c.Since(start), time.Millisecond)

	select {
	case <-c.After(time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("After did not fire")
	}
}

func TestMockClockSleepAdvances(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	c.Sleep(50 * time.Millisecond)
	c.Sleep(25 * time.Millisecond)

	assert.Equal(t, 75*time.Millisecond, c.Since(start))
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 25 * time.Millisecond}, c.Sleeps())
}

func TestMockClockAfter(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	ch := c.After(time.Second)
	select {
	case <-ch:
		t.Fatal("fired before the deadline")
	default:
	}

	c.Advance(500 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("fired before the deadline")
	default:
	}

	c.Advance(500 * time.Millisecond)
	select {
	case got := <-ch:
		assert.Equal(t, start.Add(time.Second), got)
	default:
		t.Fatal("did not fire at the deadline")
	}
}

func TestMockClockAfterZero(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	select {
	case <-c.After(0):
	default:
		t.Fatal("zero duration should fire immediately")
	}
}
