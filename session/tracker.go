// Package session decides when a stream of live/offline channel snapshots
// amounts to a new broadcast that deserves a notification. The tracker is the
// only stateful part of the poll cycle and performs no I/O, so every policy
// below is exercised by plain unit tests with a fake clock.
package session

import (
	"time"

	"github.com/onnwee/kick-herald/kickapi"
)

// Announcement is a notification intent: one broadcast session crossed from
// "not announced" to "announced". It carries what the formatter needs and is
// never stored.
type Announcement struct {
	Title      string
	Category   string
	SessionKey string
}

// Tracker is a small state machine over channel snapshots. It emits at most
// one Announcement per broadcast session.
//
// A session ends when either the channel stays offline for at least
// ResetWindow, or a live snapshot carries a different non-empty session key.
// A short offline flicker followed by the same (or an empty) key does not
// re-announce: a genuine session key is trusted over the reset timer.
type Tracker struct {
	// ResetWindow is the minimum offline duration after which a live
	// observation counts as a new session even with an unchanged key.
	ResetWindow time.Duration

	// Now is the tracker's clock; nil means time.Now.
	Now func() time.Time

	observed     bool
	announced    bool
	lastKey      string
	offlineSince time.Time
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Observe consumes one snapshot and returns a non-nil Announcement when a
// notification is due. It never blocks.
func (t *Tracker) Observe(snap kickapi.ChannelSnapshot) *Announcement {
	now := t.now()

	if !snap.IsLive {
		if t.offlineSince.IsZero() {
			t.offlineSince = now
		}
		t.observed = true
		// announced/lastKey survive the offline run so a flicker shorter
		// than ResetWindow cannot duplicate the announcement. The reset
		// check on the next live snapshot is what forgets them.
		return nil
	}

	newSession := !t.observed
	if !t.offlineSince.IsZero() && now.Sub(t.offlineSince) >= t.ResetWindow {
		newSession = true
	}
	if newSession {
		t.announced = false
		t.lastKey = ""
	}
	t.observed = true
	t.offlineSince = time.Time{}

	keyChanged := snap.SessionKey != "" && snap.SessionKey != t.lastKey
	if t.announced && !keyChanged {
		return nil
	}

	t.announced = true
	t.lastKey = snap.SessionKey
	return &Announcement{
		Title:      snap.Title,
		Category:   snap.Category,
		SessionKey: snap.SessionKey,
	}
}

// Retract undoes the effect of the last emitted Announcement after a failed
// delivery, so the next live observation tries again.
func (t *Tracker) Retract() {
	t.announced = false
	t.lastKey = ""
}

// Announced reports whether the current session has been announced.
func (t *Tracker) Announced() bool { return t.announced }
