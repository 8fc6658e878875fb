package clock

import (
	"testing"
	"time"
)

func TestFakeClockAdvanceMovesNow(t *testing.T) {
	start := time.Unix(1700000000, 0).UTC()
	c := NewFakeClock(start)

	c.Advance(90 * time.Second)
	if got := c.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Fatalf("expected %v, got %v", start.Add(90*time.Second), got)
	}
}

func TestFakeTickerFiresOnAdvance(t *testing.T) {
	c := NewFakeClock(time.Unix(1700000000, 0))
	ticker := c.NewTicker(time.Minute)
	defer ticker.Stop()

	select {
	case <-ticker.C():
		t.Fatal("ticker fired before the interval elapsed")
	default:
	}

	c.Advance(time.Minute)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker did not fire after a full interval")
	}
}

func TestFakeTickerDropsBackedUpTicks(t *testing.T) {
	c := NewFakeClock(time.Unix(1700000000, 0))
	ticker := c.NewTicker(time.Minute)
	defer ticker.Stop()

	// Three intervals with no receiver: one buffered tick survives.
	c.Advance(3 * time.Minute)

	ticks := 0
	for {
		select {
		case <-ticker.C():
			ticks++
			continue
		default:
		}
		break
	}
	if ticks != 1 {
		t.Fatalf("expected one buffered tick, got %d", ticks)
	}
}

func TestFakeTickerStopSilences(t *testing.T) {
	c := NewFakeClock(time.Unix(1700000000, 0))
	ticker := c.NewTicker(time.Minute)
	ticker.Stop()

	c.Advance(5 * time.Minute)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker still fired")
	default:
	}
}
