package session

import (
	"testing"
	"time"
)

func newTestRegistry() *Registry {
	return NewRegistry(30*time.Minute, 5*time.Minute)
}

func TestRegistry_PutGetRemove(t *testing.T) {
	r := newTestRegistry()
	s := newTestSession(nil)

	r.Put(s)
	if r.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", r.Len())
	}

	got, ok := r.Get("CA123")
	if !ok || got != s {
		t.Error("expected to retrieve the registered session")
	}

	r.Remove("CA123")
	if _, ok := r.Get("CA123"); ok {
		t.Error("removed session should not be retrievable")
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := newTestRegistry()
	if _, ok := r.Get("CA999"); ok {
		t.Error("unknown call id should miss")
	}
}

func TestRegistry_SweepEvictsIdleSessions(t *testing.T) {
	r := newTestRegistry()
	base := time.Now()
	r.now = func() time.Time { return base }

	stale := newTestSession(nil)
	r.Put(stale)

	fresh := New("CA456", "+15550001111", "+15559998888", "inbound", Dependencies{})
	r.Put(fresh)

	// Touch the fresh session 20 minutes in so only the stale one ages out.
	r.now = func() time.Time { return base.Add(20 * time.Minute) }
	r.Get("CA456")

	r.now = func() time.Time { return base.Add(31 * time.Minute) }
	r.sweep()

	if _, ok := r.Get("CA123"); ok {
		t.Error("stale session should have been evicted")
	}
	if _, ok := r.Get("CA456"); !ok {
		t.Error("recently touched session should survive the sweep")
	}
}

func TestRegistry_GetRefreshesLastSeen(t *testing.T) {
	r := newTestRegistry()
	base := time.Now()
	r.now = func() time.Time { return base }

	r.Put(newTestSession(nil))

	// Reads keep the session alive past the original max age.
	r.now = func() time.Time { return base.Add(25 * time.Minute) }
	r.Get("CA123")

	r.now = func() time.Time { return base.Add(45 * time.Minute) }
	r.sweep()

	if _, ok := r.Get("CA123"); !ok {
		t.Error("session touched at 25m should survive a sweep at 45m")
	}
}

func TestRegistry_ListByBusiness(t *testing.T) {
	r := newTestRegistry()

	a := newTestSession(nil)
	a.BusinessID = "biz-1"
	b := New("CA456", "+15550001111", "+15559998888", "inbound", Dependencies{})
	b.BusinessID = "biz-2"
	r.Put(a)
	r.Put(b)

	sessions := r.ListByBusiness("biz-1")
	if len(sessions) != 1 || sessions[0] != a {
		t.Errorf("expected only biz-1 sessions, got %d", len(sessions))
	}
}

func TestRegistry_StartStop(t *testing.T) {
	r := NewRegistry(time.Minute, 10*time.Millisecond)
	r.Start()
	time.Sleep(30 * time.Millisecond)
	r.Stop()
}
