package session

import (
	"testing"
	"time"

	"github.com/onnwee/kick-herald/kickapi"
)

// fakeClock advances only when told to.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTracker(window time.Duration) (*Tracker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 8, 30, 18, 0, 0, 0, time.UTC)}
	return &Tracker{ResetWindow: window, Now: clk.now}, clk
}

func live(key string) kickapi.ChannelSnapshot {
	return kickapi.ChannelSnapshot{IsLive: true, SessionKey: key, Title: "Stream title", Category: "Chess"}
}

func offline() kickapi.ChannelSnapshot {
	return kickapi.ChannelSnapshot{IsLive: false}
}

func TestFirstLiveObservationAnnounces(t *testing.T) {
	tr, _ := newTracker(300 * time.Second)
	ann := tr.Observe(live("S1"))
	if ann == nil {
		t.Fatal("first live observation should announce")
	}
	if ann.SessionKey != "S1" || ann.Title != "Stream title" || ann.Category != "Chess" {
		t.Errorf("announcement = %+v, want snapshot fields carried over", ann)
	}
}

func TestIdempotentWhileLive(t *testing.T) {
	tr, clk := newTracker(300 * time.Second)
	if tr.Observe(live("S1")) == nil {
		t.Fatal("expected announcement on first live snapshot")
	}
	for i := 0; i < 5; i++ {
		clk.advance(2 * time.Minute)
		if ann := tr.Observe(live("S1")); ann != nil {
			t.Fatalf("snapshot %d re-announced: %+v", i, ann)
		}
	}
}

func TestIdempotentWithEmptyKey(t *testing.T) {
	tr, clk := newTracker(300 * time.Second)
	if tr.Observe(live("")) == nil {
		t.Fatal("expected announcement on first live snapshot")
	}
	clk.advance(2 * time.Minute)
	if ann := tr.Observe(live("")); ann != nil {
		t.Fatalf("keyless live run re-announced: %+v", ann)
	}
}

func TestOfflineEmitsNothing(t *testing.T) {
	tr, clk := newTracker(300 * time.Second)
	for i := 0; i < 3; i++ {
		if ann := tr.Observe(offline()); ann != nil {
			t.Fatalf("offline snapshot %d produced announcement: %+v", i, ann)
		}
		clk.advance(2 * time.Minute)
	}
}

func TestNewSessionKeyWhileLiveAnnouncesAgain(t *testing.T) {
	tr, clk := newTracker(300 * time.Second)
	if tr.Observe(live("A")) == nil {
		t.Fatal("expected announcement for session A")
	}
	clk.advance(2 * time.Minute)
	ann := tr.Observe(live("B"))
	if ann == nil {
		t.Fatal("changed session key while live should announce")
	}
	if ann.SessionKey != "B" {
		t.Errorf("announcement key = %q, want B", ann.SessionKey)
	}
}

func TestShortFlickerSameKeyDoesNotReannounce(t *testing.T) {
	tr, clk := newTracker(300 * time.Second)
	if tr.Observe(live("A")) == nil {
		t.Fatal("expected initial announcement")
	}
	clk.advance(2 * time.Minute)
	tr.Observe(offline())
	clk.advance(2 * time.Minute) // offline gap 2m < 5m window
	if ann := tr.Observe(live("A")); ann != nil {
		t.Fatalf("short flicker with same key re-announced: %+v", ann)
	}
}

func TestShortFlickerEmptyKeyDoesNotReannounce(t *testing.T) {
	tr, clk := newTracker(300 * time.Second)
	if tr.Observe(live("")) == nil {
		t.Fatal("expected initial announcement")
	}
	tr.Observe(offline())
	clk.advance(1 * time.Minute)
	if ann := tr.Observe(live("")); ann != nil {
		t.Fatalf("short flicker with empty key re-announced: %+v", ann)
	}
}

func TestShortFlickerNewKeyReannounces(t *testing.T) {
	// Policy decision: a genuine session key change is trusted over the
	// reset timer, so a quick restart with a new key announces again.
	tr, clk := newTracker(300 * time.Second)
	if tr.Observe(live("A")) == nil {
		t.Fatal("expected initial announcement")
	}
	tr.Observe(offline())
	clk.advance(1 * time.Minute)
	if ann := tr.Observe(live("B")); ann == nil {
		t.Fatal("flicker with new session key should re-announce")
	}
}

func TestLongOfflineResetsSession(t *testing.T) {
	tr, clk := newTracker(300 * time.Second)
	if tr.Observe(live("A")) == nil {
		t.Fatal("expected initial announcement")
	}
	tr.Observe(offline())
	clk.advance(6 * time.Minute) // past the 5m reset window
	if ann := tr.Observe(live("A")); ann == nil {
		t.Fatal("live after long offline gap should announce even with same key")
	}
}

func TestOfflineGapMeasuredFromFirstOfflineObservation(t *testing.T) {
	tr, clk := newTracker(300 * time.Second)
	tr.Observe(live("A"))
	tr.Observe(offline())
	clk.advance(3 * time.Minute)
	tr.Observe(offline()) // second offline must not restart the gap timer
	clk.advance(3 * time.Minute)
	if ann := tr.Observe(live("A")); ann == nil {
		t.Fatal("6m total offline gap should reset the session")
	}
}

func TestScenarioOfflineOfflineThenLiveRun(t *testing.T) {
	// [offline, offline, live(S1), live(S1), live(S1)] -> exactly one
	// announcement, on the third snapshot.
	tr, clk := newTracker(300 * time.Second)
	var got []*Announcement
	steps := []kickapi.ChannelSnapshot{offline(), offline(), live("S1"), live("S1"), live("S1")}
	for _, s := range steps {
		got = append(got, tr.Observe(s))
		clk.advance(2 * time.Minute)
	}
	count := 0
	for i, ann := range got {
		if ann != nil {
			count++
			if i != 2 {
				t.Errorf("announcement emitted at step %d, want step 2", i)
			}
		}
	}
	if count != 1 {
		t.Errorf("announcements = %d, want exactly 1", count)
	}
}

func TestFirstObservationOfflineThenLiveAnnounces(t *testing.T) {
	tr, clk := newTracker(300 * time.Second)
	tr.Observe(offline())
	clk.advance(1 * time.Minute) // well inside the reset window
	if ann := tr.Observe(live("")); ann == nil {
		t.Fatal("never-announced session should announce regardless of gap length")
	}
}

func TestDefaultClock(t *testing.T) {
	tr := &Tracker{ResetWindow: 300 * time.Second}
	if ann := tr.Observe(live("A")); ann == nil {
		t.Fatal("tracker with default clock should still announce")
	}
	if !tr.Announced() {
		t.Error("Announced() = false after announcement")
	}
}
