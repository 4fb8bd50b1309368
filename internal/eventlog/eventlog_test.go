package eventlog

import (
	"context"
	"testing"
)

func TestEventTypeConstants(t *testing.T) {
	expectedEvents := map[EventType]string{
		EventCallIngested:          "call_ingested",
		EventInsightsStarted:       "insights_started",
		EventInsightsCompleted:     "insights_completed",
		EventModelFault:            "model_fault",
		EventRecommendationsServed: "recommendations_served",
		EventStreamStarted:         "stream_started",
		EventStreamStopped:         "stream_stopped",
		EventListenerAttached:      "listener_attached",
		EventListenerDetached:      "listener_detached",
		EventListenerDropped:       "listener_dropped",
	}

	for eventType, expectedValue := range expectedEvents {
		if string(eventType) != expectedValue {
			t.Errorf("EventType %q = %q, want %q", expectedValue, string(eventType), expectedValue)
		}
	}
}

func TestLog_NilPoolIsNoop(t *testing.T) {
	l := New(nil)

	if err := l.Log(context.Background(), "call-1", EventCallIngested, nil); err != nil {
		t.Errorf("Log with nil pool should be a no-op, got error: %v", err)
	}
	// Must not panic.
	l.LogAsync("call-1", EventStreamStarted, map[string]any{"listeners": 1})
}

func TestLog_EmptyCallIDIsNoop(t *testing.T) {
	l := New(nil)

	if err := l.Log(context.Background(), "", EventCallIngested, nil); err != nil {
		t.Errorf("Log with empty call ID should be a no-op, got error: %v", err)
	}
}
