package session

import (
	"testing"
	"time"
)

func TestNewSessionHasIdentityAndStartTime(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if s.ID == "" {
		t.Error("expected a session ID, got empty string")
	}
	if s.StartedAt.IsZero() {
		t.Error("expected StartedAt to be set")
	}
	if s.MessagesSent != 0 || s.MessagesReceived != 0 || s.Reconnects != 0 {
		t.Error("expected all counters to start at zero")
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	s1, _ := New()
	s2, _ := New()

	if s1.ID == s2.ID {
		t.Error("two sessions got the same ID — that should never happen")
	}
}

func TestRecordSentAndReceived(t *testing.T) {
	s, _ := New()
	s.RecordSent()
	s.RecordSent()
	s.RecordReceived()

	if s.MessagesSent != 2 {
		t.Errorf("expected 2 sent, got %d", s.MessagesSent)
	}
	if s.MessagesReceived != 1 {
		t.Errorf("expected 1 received, got %d", s.MessagesReceived)
	}
}

func TestRecordHeartbeatSeedsAverageOnFirstSample(t *testing.T) {
	s, _ := New()
	s.RecordHeartbeat(100 * time.Millisecond)

	if s.AvgLatency != 100*time.Millisecond {
		t.Errorf("expected avg latency to seed at first sample, got %v", s.AvgLatency)
	}
	if s.LastHeartbeat.IsZero() {
		t.Error("expected LastHeartbeat to be set")
	}
}

func TestRecordHeartbeatSmoothsSubsequentSamples(t *testing.T) {
	s, _ := New()
	s.RecordHeartbeat(100 * time.Millisecond)
	s.RecordHeartbeat(200 * time.Millisecond)

	if s.AvgLatency <= 100*time.Millisecond || s.AvgLatency >= 200*time.Millisecond {
		t.Errorf("expected smoothed average strictly between samples, got %v", s.AvgLatency)
	}
}

func TestBeginReconnectIncrementsAttempt(t *testing.T) {
	s, _ := New()
	s.BeginReconnect()
	s.BeginReconnect()

	if s.CurrentAttempt != 2 {
		t.Errorf("expected CurrentAttempt 2, got %d", s.CurrentAttempt)
	}
}

func TestResumedResetsAttemptButKeepsCounters(t *testing.T) {
	s, _ := New()
	s.RecordSent()
	s.RecordSent()
	s.BeginReconnect()
	s.BeginReconnect()

	s.Resumed()

	if s.CurrentAttempt != 0 {
		t.Errorf("expected attempt reset to 0, got %d", s.CurrentAttempt)
	}
	if s.Reconnects != 1 {
		t.Errorf("expected Reconnects 1, got %d", s.Reconnects)
	}
	if s.MessagesSent != 2 {
		t.Errorf("expected sent counter preserved across resume, got %d", s.MessagesSent)
	}
}
