package events

import (
	"testing"
	"time"
)

func TestFanoutStampsAndForwards(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	Fanout{a, nil, b}.Publish(Event{Type: DeviceDeleted, ID: "x"})

	ea, eb := a.Events(), b.Events()
	if len(ea) != 1 || len(eb) != 1 {
		t.Fatalf("expected one event per sink, got %d/%d", len(ea), len(eb))
	}
	if ea[0].At.IsZero() || ea[0].At.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", ea[0].At)
	}
	if ea[0] != eb[0] {
		t.Fatalf("sinks saw different events: %+v vs %+v", ea[0], eb[0])
	}
}
