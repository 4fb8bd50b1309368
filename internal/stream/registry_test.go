package stream

import (
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestRegistry_BroadcastReachesAllListeners(t *testing.T) {
	r := NewRegistry(testLogger())

	l1 := NewListener()
	l2 := NewListener()
	r.Register("call-1", l1)
	r.Register("call-1", l2)

	r.Broadcast("call-1", []byte("hello"))

	for i, l := range []Listener{l1, l2} {
		select {
		case msg := <-l:
			if string(msg) != "hello" {
				t.Errorf("listener %d got %q, want %q", i, msg, "hello")
			}
		default:
			t.Errorf("listener %d received nothing", i)
		}
	}
}

func TestRegistry_BroadcastScopedToCall(t *testing.T) {
	r := NewRegistry(testLogger())

	l1 := NewListener()
	l2 := NewListener()
	r.Register("call-1", l1)
	r.Register("call-2", l2)

	r.Broadcast("call-1", []byte("only for call-1"))

	if len(l2) != 0 {
		t.Error("listener on call-2 received a call-1 broadcast")
	}
	if len(l1) != 1 {
		t.Errorf("listener on call-1 has %d messages, want 1", len(l1))
	}
}

func TestRegistry_UnregisterLastListenerDropsEntry(t *testing.T) {
	r := NewRegistry(testLogger())

	l := NewListener()
	r.Register("call-1", l)
	r.Unregister("call-1", l)

	if n := r.ListenerCount("call-1"); n != 0 {
		t.Errorf("ListenerCount = %d after unregister, want 0", n)
	}
	r.mu.RLock()
	_, exists := r.calls["call-1"]
	r.mu.RUnlock()
	if exists {
		t.Error("empty listener set should be dropped from the registry")
	}

	// Broadcast after the last listener left must be a silent no-op.
	r.Broadcast("call-1", []byte("into the void"))
}

func TestRegistry_UnregisterClosesListener(t *testing.T) {
	r := NewRegistry(testLogger())

	l := NewListener()
	r.Register("call-1", l)
	r.Unregister("call-1", l)

	if _, ok := <-l; ok {
		t.Error("listener channel should be closed after unregister")
	}
}

func TestRegistry_UnregisterUnknownListenerIsNoop(t *testing.T) {
	r := NewRegistry(testLogger())

	r.Unregister("call-1", NewListener())

	l := NewListener()
	r.Register("call-1", l)
	r.Unregister("call-1", NewListener()) // not a member
	if n := r.ListenerCount("call-1"); n != 1 {
		t.Errorf("ListenerCount = %d, want 1", n)
	}
}

func TestRegistry_SlowListenerDroppedOthersSurvive(t *testing.T) {
	r := NewRegistry(testLogger())

	slow := make(Listener) // unbuffered and never read: always full
	fast := NewListener()
	r.Register("call-1", slow)
	r.Register("call-1", fast)

	r.Broadcast("call-1", []byte("first"))

	if n := r.ListenerCount("call-1"); n != 1 {
		t.Errorf("ListenerCount = %d after dropping slow listener, want 1", n)
	}
	if _, ok := <-slow; ok {
		t.Error("dropped listener channel should be closed")
	}
	select {
	case msg := <-fast:
		if string(msg) != "first" {
			t.Errorf("fast listener got %q, want %q", msg, "first")
		}
	default:
		t.Error("fast listener should still receive the broadcast")
	}
}

func TestRegistry_DropHookFiresPerDroppedListener(t *testing.T) {
	r := NewRegistry(testLogger())

	var drops []string
	r.OnDrop(func(callID string) { drops = append(drops, callID) })

	slowA := make(Listener)
	slowB := make(Listener)
	fast := NewListener()
	r.Register("call-1", slowA)
	r.Register("call-1", slowB)
	r.Register("call-1", fast)

	r.Broadcast("call-1", []byte("first"))

	if len(drops) != 2 {
		t.Fatalf("drop hook fired %d times, want 2", len(drops))
	}
	for _, id := range drops {
		if id != "call-1" {
			t.Errorf("drop hook got call %q, want call-1", id)
		}
	}

	// Unregistering a healthy listener must not trip the hook.
	r.Unregister("call-1", fast)
	if len(drops) != 2 {
		t.Errorf("drop hook fired on Unregister, total %d", len(drops))
	}
}

func TestRegistry_OrderPreservedPerListener(t *testing.T) {
	r := NewRegistry(testLogger())

	l1 := NewListener()
	l2 := NewListener()
	r.Register("call-1", l1)
	r.Register("call-1", l2)

	const n = 20
	for i := 0; i < n; i++ {
		r.Broadcast("call-1", []byte(fmt.Sprintf("msg-%d", i)))
	}

	for name, l := range map[string]Listener{"l1": l1, "l2": l2} {
		for i := 0; i < n; i++ {
			msg := <-l
			if want := fmt.Sprintf("msg-%d", i); string(msg) != want {
				t.Fatalf("%s message %d = %q, want %q", name, i, msg, want)
			}
		}
	}
}

func TestRegistry_ConcurrentRegisterBroadcastUnregister(t *testing.T) {
	r := NewRegistry(testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			callID := fmt.Sprintf("call-%d", i%5)
			l := NewListener()
			r.Register(callID, l)
			r.Broadcast(callID, []byte("x"))
			// Drain whatever arrived before leaving.
			for len(l) > 0 {
				<-l
			}
			r.Unregister(callID, l)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		callID := fmt.Sprintf("call-%d", i)
		if n := r.ListenerCount(callID); n != 0 {
			t.Errorf("ListenerCount(%s) = %d after all goroutines done, want 0", callID, n)
		}
	}
}
