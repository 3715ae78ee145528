package client

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: 2 * time.Second, Factor: 2}

	assert.Equal(t, 100*time.Millisecond, b.Next(0))
	assert.Equal(t, 200*time.Millisecond, b.Next(1))
	assert.Equal(t, 400*time.Millisecond, b.Next(2))
	assert.Equal(t, 2*time.Second, b.Next(10), "delay is capped at Max")
}

func TestBackoffJitterStaysBounded(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: 2 * time.Second, Factor: 2, Jitter: 0.5}

	for attempt := 0; attempt < 12; attempt++ {
		for i := 0; i < 50; i++ {
			d := b.Next(attempt)
			assert.GreaterOrEqual(t, d, b.Min)
			assert.LessOrEqual(t, d, b.Max)
		}
	}
}

func TestTypingNotifierDebounce(t *testing.T) {
	var typing, stops int32
	n := NewTypingNotifier(
		50*time.Millisecond,
		100*time.Millisecond,
		func() { atomic.AddInt32(&typing, 1) },
		func() { atomic.AddInt32(&stops, 1) },
	)

	// A burst of keystrokes inside one interval emits a single typing
	// event.
	for i := 0; i < 10; i++ {
		n.Keystroke()
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&typing))
	assert.EqualValues(t, 0, atomic.LoadInt32(&stops))

	// Continued input past the interval re-emits.
	time.Sleep(60 * time.Millisecond)
	n.Keystroke()
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 2, atomic.LoadInt32(&typing))

	// Going idle emits the trailing stop exactly once.
	time.Sleep(200 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&stops))
}

func TestTypingNotifierExplicitStop(t *testing.T) {
	var typing, stops int32
	n := NewTypingNotifier(
		50*time.Millisecond,
		time.Hour, // idle never fires in this test
		func() { atomic.AddInt32(&typing, 1) },
		func() { atomic.AddInt32(&stops, 1) },
	)

	n.Keystroke()
	n.Stop()
	n.Stop() // stop while inactive is a no-op
	time.Sleep(20 * time.Millisecond)

	assert.EqualValues(t, 1, atomic.LoadInt32(&typing))
	assert.EqualValues(t, 1, atomic.LoadInt32(&stops))
}

func TestTypingNotifierEmitsInOrder(t *testing.T) {
	var mu sync.Mutex
	var events []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			events = append(events, name)
			mu.Unlock()
		}
	}
	n := NewTypingNotifier(time.Millisecond, time.Hour, record("typing"), record("stop"))

	// Immediate stop after a keystroke must arrive after the typing
	// event, never before it.
	for i := 0; i < 100; i++ {
		n.Keystroke()
		n.Stop()
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 200)
	for i, e := range events {
		want := "typing"
		if i%2 == 1 {
			want = "stop"
		}
		if e != want {
			t.Fatalf("event %d = %q, want %q: emission order inverted", i, e, want)
		}
	}
	assert.Equal(t, "stop", events[len(events)-1])
}

func TestUnreadLedgerReconciliation(t *testing.T) {
	l := NewUnreadLedger("me")

	l.ApplyFetch(map[string]int{"c1": 2, "c2": 0})
	assert.Equal(t, 2, l.Count("c1"))
	assert.Equal(t, 2, l.Total())

	// Pushes between fetches raise the badge, except for own messages.
	l.ApplyPush("c2", "peer")
	l.ApplyPush("c2", "me")
	assert.Equal(t, 1, l.Count("c2"))
	assert.Equal(t, 3, l.Total())

	// Opening a conversation zeroes it locally, mirroring the server's
	// reset-on-fetch, and pushes for the open conversation do not count.
	l.Open("c1")
	assert.Equal(t, 0, l.Count("c1"))
	l.ApplyPush("c1", "peer")
	assert.Equal(t, 0, l.Count("c1"))

	// The next authoritative fetch wins, but never resurrects the open
	// conversation's badge.
	l.ApplyFetch(map[string]int{"c1": 5, "c2": 1})
	assert.Equal(t, 0, l.Count("c1"))
	assert.Equal(t, 1, l.Count("c2"))

	l.CloseConversation()
	l.ApplyPush("c1", "peer")
	assert.Equal(t, 1, l.Count("c1"))
}
