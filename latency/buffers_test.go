package latency

import (
	"sync"
	"testing"
)

func TestEventBuffersBatchOrder(t *testing.T) {
	b := NewEventBuffers()
	b.RecordTouch(TouchSample{Micros: 1}, TouchSample{Micros: 2}, TouchSample{Micros: 3})
	b.RecordTouch(TouchSample{Micros: 4})
	b.RecordTouch()

	touches, triggers := b.Snapshot()
	if len(triggers) != 0 {
		t.Fatalf("unexpected triggers: %v", triggers)
	}
	for i, s := range touches {
		if s.Micros != int64(i+1) {
			t.Errorf("sample %d: got %d", i, s.Micros)
		}
	}
	if c := b.Counts(); c.Moves != 4 || c.Crossings != 0 {
		t.Errorf("counts: %+v", c)
	}
}

func TestEventBuffersConcurrentProducers(t *testing.T) {
	b := NewEventBuffers()

	const perProducer = 2000
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < perProducer; i += 4 {
			base := int64(i)
			b.RecordTouch(
				TouchSample{Micros: base},
				TouchSample{Micros: base + 1},
				TouchSample{Micros: base + 2},
				TouchSample{Micros: base + 3},
			)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < perProducer; i++ {
			b.RecordTrigger(TriggerEvent{Micros: int64(i), Dir: Direction(i % 2)})
		}
	}()
	wg.Wait()

	touches, triggers := b.Snapshot()
	if len(touches) != perProducer || len(triggers) != perProducer {
		t.Fatalf("got %d touches, %d triggers", len(touches), len(triggers))
	}
	for i := 1; i < len(touches); i++ {
		if touches[i].Micros < touches[i-1].Micros {
			t.Fatalf("touch order broken at %d", i)
		}
	}
	for i := 1; i < len(triggers); i++ {
		if triggers[i].Micros < triggers[i-1].Micros {
			t.Fatalf("trigger order broken at %d", i)
		}
	}
}

func TestEventBuffersFreezeDropsLateAppends(t *testing.T) {
	b := NewEventBuffers()
	b.RecordTouch(TouchSample{Micros: 1})
	b.RecordTrigger(TriggerEvent{Micros: 1})
	b.Freeze()

	if b.RecordTouch(TouchSample{Micros: 2}, TouchSample{Micros: 3}) {
		t.Error("touch accepted after freeze")
	}
	if b.RecordTrigger(TriggerEvent{Micros: 2}) {
		t.Error("trigger accepted after freeze")
	}
	touches, triggers := b.Snapshot()
	if len(touches) != 1 || len(triggers) != 1 {
		t.Errorf("snapshot changed after freeze: %d touches, %d triggers", len(touches), len(triggers))
	}
	if dt, dg := b.Dropped(); dt != 2 || dg != 1 {
		t.Errorf("dropped = %d, %d; want 2, 1", dt, dg)
	}

	b.Reset()
	if !b.RecordTouch(TouchSample{Micros: 5}) {
		t.Error("reset did not reopen buffers")
	}
	if dt, dg := b.Dropped(); dt != 0 || dg != 0 {
		t.Errorf("reset kept drop counters: %d, %d", dt, dg)
	}
	if c := b.Counts(); c.Moves != 1 || c.Crossings != 0 {
		t.Errorf("counts after reset: %+v", c)
	}
}

func TestEventBuffersResetAgainstReaders(t *testing.T) {
	b := NewEventBuffers()
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			// Writer keeps both buffers the same length.
			b.lockBoth()
			b.touch.samples = append(b.touch.samples, TouchSample{})
			b.trigger.events = append(b.trigger.events, TriggerEvent{})
			b.unlockBoth()
		}
	}()

	for i := 0; i < 500; i++ {
		if i%50 == 0 {
			b.Reset()
		}
		touches, triggers := b.Snapshot()
		if len(touches) != len(triggers) {
			close(stop)
			wg.Wait()
			t.Fatalf("observed partial state: %d touches, %d triggers", len(touches), len(triggers))
		}
	}
	close(stop)
	wg.Wait()
}
