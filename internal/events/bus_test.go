package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan FlashStateEvent, 1)

	unsub := bus.Subscribe(func(e FlashStateEvent) {
		received <- e
	})
	defer unsub()

	bus.Publish(FlashStateEvent{AttemptID: "a1", State: "locked_pending"})

	select {
	case got := <-received:
		if got.State != "locked_pending" {
			t.Errorf("State = %q, want locked_pending", got.State)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan InputsStateEvent, 1)

	unsub := bus.Subscribe(func(e InputsStateEvent) {
		received <- e
	})

	bus.Publish(InputsStateEvent{Enabled: false})
	<-received

	unsub()

	bus.Publish(InputsStateEvent{Enabled: true})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	frames := make(chan bool, 1)
	messages := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ LEDFrameEvent) { frames <- true })
	defer unsub1()
	unsub2 := bus.Subscribe(func(_ StatusMessageEvent) { messages <- true })
	defer unsub2()

	bus.Publish(LEDFrameEvent{Mode: "loop"})
	<-frames

	select {
	case <-messages:
		t.Fatal("message subscriber received a frame")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 50
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)
	unsub := bus.Subscribe(func(_ LEDFrameEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range eventsPerGoroutine {
				bus.Publish(LEDFrameEvent{Mode: "loop", Step: i})
			}
		}()
	}
	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestForward_DeliversToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 1)

	unsub := Forward[StatusMessageEvent](bus, ch)
	defer unsub()

	bus.Publish(StatusMessageEvent{Target: "flash", Text: "ok"})

	select {
	case ev := <-ch:
		if msg, ok := ev.(StatusMessageEvent); !ok || msg.Text != "ok" {
			t.Errorf("got %#v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event not forwarded to channel")
	}
}

func TestBus_UnknownHandler(_ *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestForward_DropsWhenFull(t *testing.T) {
	bus := New()
	ch := make(chan any, 1)
	unsub := Forward[InputsStateEvent](bus, ch)
	defer unsub()

	bus.Publish(InputsStateEvent{Enabled: false})
	bus.Publish(InputsStateEvent{Enabled: true})

	time.Sleep(50 * time.Millisecond)
	if len(ch) != 1 {
		t.Fatalf("buffered = %d, want 1", len(ch))
	}
}
