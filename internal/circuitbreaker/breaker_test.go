package circuitbreaker

import (
	"testing"
	"time"
)

func TestBreakerStartsClosed(t *testing.T) {
	b := New(3, time.Minute)
	if !b.Allow("chainwatch") {
		t.Error("unknown provider should be allowed")
	}
	if b.State("chainwatch") != StateClosed {
		t.Errorf("state = %s, want closed", b.State("chainwatch"))
	}
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := New(3, time.Minute)

	b.RecordFailure("chainwatch")
	b.RecordFailure("chainwatch")
	if b.State("chainwatch") != StateClosed {
		t.Fatal("circuit opened before threshold")
	}
	if !b.Allow("chainwatch") {
		t.Fatal("lookups must flow below threshold")
	}

	b.RecordFailure("chainwatch")
	if b.State("chainwatch") != StateOpen {
		t.Fatalf("state = %s, want open after 3 failures", b.State("chainwatch"))
	}
	if b.Allow("chainwatch") {
		t.Error("open circuit must reject lookups")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := New(3, time.Minute)

	b.RecordFailure("chainwatch")
	b.RecordFailure("chainwatch")
	b.RecordSuccess("chainwatch")
	b.RecordFailure("chainwatch")
	b.RecordFailure("chainwatch")

	if b.State("chainwatch") != StateClosed {
		t.Error("non-consecutive failures must not trip the circuit")
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b := New(1, 10*time.Millisecond)

	b.RecordFailure("chainwatch")
	if b.State("chainwatch") != StateOpen {
		t.Fatal("circuit should be open")
	}

	time.Sleep(20 * time.Millisecond)

	// First call after the open duration is the probe.
	if !b.Allow("chainwatch") {
		t.Fatal("probe should be allowed after open duration")
	}
	if b.State("chainwatch") != StateHalfOpen {
		t.Fatalf("state = %s, want half_open", b.State("chainwatch"))
	}
	// No second probe while the first is in flight.
	if b.Allow("chainwatch") {
		t.Error("only one probe may run at a time")
	}

	b.RecordSuccess("chainwatch")
	if b.State("chainwatch") != StateClosed {
		t.Errorf("state = %s, want closed after successful probe", b.State("chainwatch"))
	}
	if !b.Allow("chainwatch") {
		t.Error("closed circuit must allow lookups")
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b := New(1, 10*time.Millisecond)

	b.RecordFailure("chainwatch")
	time.Sleep(20 * time.Millisecond)

	if !b.Allow("chainwatch") {
		t.Fatal("probe should be allowed")
	}
	b.RecordFailure("chainwatch")

	if b.State("chainwatch") != StateOpen {
		t.Errorf("state = %s, want open after failed probe", b.State("chainwatch"))
	}
	if b.Allow("chainwatch") {
		t.Error("re-opened circuit must reject lookups")
	}
}

func TestBreakerIsolatesProviders(t *testing.T) {
	b := New(1, time.Minute)

	b.RecordFailure("flaky")
	if b.Allow("flaky") {
		t.Error("tripped provider should be rejected")
	}
	if !b.Allow("healthy") {
		t.Error("other providers are unaffected")
	}
}
