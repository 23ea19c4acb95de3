package chat

import "testing"

func TestFanoutDeliversFullContent(t *testing.T) {
	f := newStreamFanout()
	f.start("m1")

	var got []string
	unsub := f.subscribe("m1", func(full string) { got = append(got, full) })
	defer unsub()

	f.append("m1", "你")
	f.append("m1", "好")
	f.append("m1", "呀")

	// Initial replay of the empty buffer plus one full snapshot per delta.
	want := []string{"", "你", "你好", "你好呀"}
	if len(got) != len(want) {
		t.Fatalf("got %d notifications, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFanoutSubscribeMidStreamReplays(t *testing.T) {
	f := newStreamFanout()
	f.start("m1")
	f.append("m1", "one ")
	f.append("m1", "two ")
	f.append("m1", "three")

	var got string
	unsub := f.subscribe("m1", func(full string) { got = full })
	defer unsub()

	if got != "one two three" {
		t.Errorf("mid-stream subscribe replayed %q, want full buffer", got)
	}
}

func TestFanoutSingleSubscriber(t *testing.T) {
	f := newStreamFanout()
	f.start("m1")

	var first, second string
	f.subscribe("m1", func(full string) { first = full })
	f.subscribe("m1", func(full string) { second = full })

	f.append("m1", "x")

	if first != "" {
		t.Errorf("replaced subscriber still notified with %q", first)
	}
	if second != "x" {
		t.Errorf("active subscriber got %q, want %q", second, "x")
	}
}

func TestFanoutUnsubscribe(t *testing.T) {
	f := newStreamFanout()
	f.start("m1")

	calls := 0
	unsub := f.subscribe("m1", func(string) { calls++ })
	unsub()
	f.append("m1", "x")

	if calls != 1 {
		t.Errorf("got %d calls after unsubscribe, want only the initial replay", calls)
	}
}

func TestFanoutDiscardAndClear(t *testing.T) {
	f := newStreamFanout()
	f.start("m1")
	f.append("m1", "abc")

	f.discard("m1")
	if _, ok := f.content("m1"); ok {
		t.Error("content should be gone after discard")
	}

	f.start("m2")
	f.append("m2", "def")
	f.clearBuffers()
	if _, ok := f.content("m2"); ok {
		t.Error("content should be gone after clearBuffers")
	}
}

func TestFanoutSubscribeWithoutBuffer(t *testing.T) {
	f := newStreamFanout()

	called := false
	f.subscribe("missing", func(string) { called = true })

	if called {
		t.Error("subscriber must not fire before the stream starts")
	}

	// start replays to the waiting subscriber.
	f.start("missing")
	if !called {
		t.Error("start should replay to a pre-attached subscriber")
	}
}
