package service

import (
	"testing"
	"time"

	"github.com/fleetops/fleetbot/internal/core/domain"
)

func TestSessions_OneDialogPerPrincipal(t *testing.T) {
	s := NewSessions(time.Minute)
	s.Put("1", domain.Dialog{Step: domain.StepEnrollmentCode})
	s.Put("1", domain.Dialog{Step: domain.StepServerPick})

	d, ok := s.Get("1")
	if !ok || d.Step != domain.StepServerPick {
		t.Fatalf("expected the replacing dialog, got %+v ok=%v", d, ok)
	}
	if _, ok := s.Get("2"); ok {
		t.Fatal("other principals must have no dialog")
	}
	if !s.Clear("1") {
		t.Fatal("Clear must report an existing dialog")
	}
	if s.Clear("1") {
		t.Fatal("Clear must report a missing dialog")
	}
}

func TestSessions_IdleExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSessions(10 * time.Minute)
	s.now = func() time.Time { return now }

	s.Put("1", domain.Dialog{Step: domain.StepEnrollmentTOTP})
	s.Put("2", domain.Dialog{Step: domain.StepServerPick})
	s.Track("1", MessageRef{ChatID: 1, MessageID: 10})

	now = now.Add(5 * time.Minute)
	s.Put("2", domain.Dialog{Step: domain.StepServerAction})

	now = now.Add(6 * time.Minute)
	if _, ok := s.Get("1"); ok {
		t.Fatal("dialog idle past the timeout must expire")
	}
	if _, ok := s.Get("2"); !ok {
		t.Fatal("refreshed dialog must survive")
	}

	ids := s.Sweep()
	if len(ids) != 1 || ids[0] != "1" {
		t.Fatalf("sweep must report principals with orphaned ephemeral messages, got %v", ids)
	}
	refs := s.TakeEphemeral("1")
	if len(refs) != 1 || refs[0].MessageID != 10 {
		t.Fatalf("unexpected refs %v", refs)
	}
	if len(s.TakeEphemeral("1")) != 0 {
		t.Fatal("TakeEphemeral must forget returned refs")
	}
}

func TestSessions_ZeroTimeoutNeverExpires(t *testing.T) {
	now := time.Now()
	s := NewSessions(0)
	s.now = func() time.Time { return now }
	s.Put("1", domain.Dialog{Step: domain.StepGroupID})
	now = now.Add(24 * time.Hour)
	if _, ok := s.Get("1"); !ok {
		t.Fatal("dialog must not expire without a timeout")
	}
}
