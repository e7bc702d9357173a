package ratelimiter

import (
	"testing"
	"time"
)

func TestMapLimiterPerKeyBurst(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 2})
	now := time.Unix(1_700_000_000, 0)
	if !l.Allow("a", now) || !l.Allow("a", now) {
		t.Fatal("burst of 2 should be allowed")
	}
	if l.Allow("a", now) {
		t.Fatal("third request in the same instant should be denied")
	}
	if !l.Allow("b", now) {
		t.Fatal("other keys have their own bucket")
	}
	if !l.Allow("a", now.Add(time.Second)) {
		t.Fatal("token should refill after one second")
	}
	st := l.Stats()
	if st.Keys != 2 || st.Denied != 1 || st.Allowed != 4 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestMapLimiterDisabled(t *testing.T) {
	l := New(Config{})
	if l != nil {
		t.Fatal("zero config should disable limiting")
	}
	for i := 0; i < 100; i++ {
		if !l.Allow("a", time.Now()) {
			t.Fatal("nil limiter must allow")
		}
	}
	if l.Stats() != (Stats{}) {
		t.Fatal("nil limiter has empty stats")
	}
}

func TestMapLimiterEvictsIdleKeys(t *testing.T) {
	l := New(Config{RPS: 1000, Burst: 1000, IdleTTL: time.Minute})
	start := time.Unix(1_700_000_000, 0)
	l.Allow("idle", start)
	later := start.Add(2 * time.Minute)
	for i := 0; i < sweepEvery; i++ {
		l.Allow("busy", later)
	}
	if st := l.Stats(); st.Keys != 1 {
		t.Fatalf("idle key should be evicted, have %d keys", st.Keys)
	}
}
