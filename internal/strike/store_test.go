package strike

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Guneet-Singh-Kalra/orbital/internal/geo"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := NewStore(client, time.Minute).WithClock(func() time.Time { return testNow })
	return s, mr
}

func sampleRecord(id string) Record {
	return NewRecord(id, "attacker", geo.LatLng{Lat: 1, Lng: 2}, testNow, 5*time.Second, []Victim{
		{PlayerID: "v1", Location: geo.LatLng{Lat: 1, Lng: 2}},
		{PlayerID: "v2", Location: geo.LatLng{Lat: 1.0001, Lng: 2}},
	})
}

func TestNewRecordDerivesResolveAt(t *testing.T) {
	victims := []Victim{{PlayerID: "v1"}}
	r := NewRecord("s1", "a", geo.LatLng{}, testNow, 3*time.Second, victims)
	if !r.ResolveAt.Equal(testNow.Add(3 * time.Second)) {
		t.Fatalf("unexpected resolveAt %v", r.ResolveAt)
	}
	if r.Status != StatusPending {
		t.Fatalf("expected pending, got %s", r.Status)
	}
	victims[0].PlayerID = "mutated"
	if r.FrozenVictims[0].PlayerID != "v1" {
		t.Fatal("record must own a copy of the victim list")
	}
	if !r.Involves("a") || !r.Involves("v1") || r.Involves("x") {
		t.Fatal("unexpected Involves result")
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)
	want := sampleRecord("s1")

	if err := s.Create(ctx, want); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != want.ID || got.AttackerID != want.AttackerID || got.Target != want.Target {
		t.Fatalf("identity fields differ: %+v", got)
	}
	if !got.ScheduledAt.Equal(want.ScheduledAt) || !got.ResolveAt.Equal(want.ResolveAt) || got.ChargeDuration != want.ChargeDuration {
		t.Fatalf("timing fields differ: %+v", got)
	}
	if len(got.FrozenVictims) != 2 || got.FrozenVictims[1] != want.FrozenVictims[1] {
		t.Fatalf("victims differ: %+v", got.FrozenVictims)
	}
	if got.Status != StatusPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}

	// resolveAt + grace from the fixed clock.
	if ttl := mr.TTL(recordKey("s1")); ttl != 5*time.Second+time.Minute {
		t.Errorf("unexpected ttl %v", ttl)
	}
}

func TestCreateNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	if err := s.Create(ctx, sampleRecord("s1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	other := sampleRecord("s1")
	other.AttackerID = "impostor"
	if err := s.Create(ctx, other); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	got, _ := s.Get(ctx, "s1")
	if got.AttackerID != "attacker" {
		t.Fatalf("record was overwritten: %s", got.AttackerID)
	}
}

func TestGetMissing(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClaimOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	if err := s.Create(ctx, sampleRecord("s1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	won, err := s.Claim(ctx, "s1")
	if err != nil || !won {
		t.Fatalf("first claim: won=%v err=%v", won, err)
	}
	won, err = s.Claim(ctx, "s1")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if won {
		t.Fatal("second claim must lose")
	}
	got, _ := s.Get(ctx, "s1")
	if got.Status != StatusResolved {
		t.Fatalf("expected resolved, got %s", got.Status)
	}
}

func TestConcurrentClaimHasOneWinner(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	if err := s.Create(ctx, sampleRecord("s1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.Claim(ctx, "s1")
			if err != nil {
				t.Errorf("claim: %v", err)
			}
			if won {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := wins.Load(); got != 1 {
		t.Fatalf("expected one winner, got %d", got)
	}
}

func TestClaimMissing(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Claim(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListDueTracksPending(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	early := NewRecord("early", "a", geo.LatLng{}, testNow, time.Second, nil)
	late := NewRecord("late", "a", geo.LatLng{}, testNow, time.Hour, nil)
	for _, r := range []Record{early, late} {
		if err := s.Create(ctx, r); err != nil {
			t.Fatalf("create %s: %v", r.ID, err)
		}
	}

	due, err := s.ListDue(ctx, testNow.Add(10*time.Second), 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 || due[0] != "early" {
		t.Fatalf("expected [early], got %v", due)
	}

	if _, err := s.Claim(ctx, "early"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	due, _ = s.ListDue(ctx, testNow.Add(2*time.Hour), 10)
	if len(due) != 1 || due[0] != "late" {
		t.Fatalf("claimed strike must leave the pending index, got %v", due)
	}
}

func TestCreateRejectsNonPending(t *testing.T) {
	s, _ := newTestStore(t)
	r := sampleRecord("s1")
	r.Status = StatusResolved
	if err := s.Create(context.Background(), r); err == nil {
		t.Fatal("expected error creating a resolved record")
	}
}

func TestForgetDropsExpiredRecordFromIndex(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)
	if err := s.Create(ctx, sampleRecord("s1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := s.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected record expired, got %v", err)
	}

	if err := s.Forget(ctx, "s1"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if due, _ := s.ListDue(ctx, testNow.Add(time.Hour), 10); len(due) != 0 {
		t.Fatalf("expected empty pending index, got %v", due)
	}
}
