package latency

import "sync"

// touchBuffer and triggerBuffer each carry their own lock so the two
// producers never contend with each other.
type touchBuffer struct {
	mu      sync.Mutex
	samples []TouchSample
	frozen  bool
	dropped int
}

type triggerBuffer struct {
	mu      sync.Mutex
	events  []TriggerEvent
	frozen  bool
	dropped int
}

// EventBuffers holds the touch samples and trigger events captured during a
// session. Appends are safe from any goroutine. Once frozen, further appends
// are dropped and counted so a snapshot never races a producer.
type EventBuffers struct {
	touch   touchBuffer
	trigger triggerBuffer
}

// NewEventBuffers returns empty, unfrozen buffers.
func NewEventBuffers() *EventBuffers {
	return &EventBuffers{}
}

// RecordTouch appends one callback's worth of samples: any historical
// sub-samples followed by the current one, in chronological order. The batch
// is appended under a single lock acquisition.
func (b *EventBuffers) RecordTouch(batch ...TouchSample) bool {
	if len(batch) == 0 {
		return true
	}
	b.touch.mu.Lock()
	defer b.touch.mu.Unlock()
	if b.touch.frozen {
		b.touch.dropped += len(batch)
		return false
	}
	b.touch.samples = append(b.touch.samples, batch...)
	return true
}

// RecordTrigger appends one beam crossing.
func (b *EventBuffers) RecordTrigger(ev TriggerEvent) bool {
	b.trigger.mu.Lock()
	defer b.trigger.mu.Unlock()
	if b.trigger.frozen {
		b.trigger.dropped++
		return false
	}
	b.trigger.events = append(b.trigger.events, ev)
	return true
}

// lockBoth acquires both buffer locks in a fixed order.
func (b *EventBuffers) lockBoth() {
	b.touch.mu.Lock()
	b.trigger.mu.Lock()
}

func (b *EventBuffers) unlockBoth() {
	b.trigger.mu.Unlock()
	b.touch.mu.Unlock()
}

// Reset clears both sequences and all counters and re-opens the buffers for
// appends. Readers never observe a half-cleared state.
func (b *EventBuffers) Reset() {
	b.lockBoth()
	defer b.unlockBoth()
	b.touch.samples = nil
	b.touch.frozen = false
	b.touch.dropped = 0
	b.trigger.events = nil
	b.trigger.frozen = false
	b.trigger.dropped = 0
}

// Freeze stops accepting appends. Any append already in progress completes
// before Freeze returns.
func (b *EventBuffers) Freeze() {
	b.lockBoth()
	defer b.unlockBoth()
	b.touch.frozen = true
	b.trigger.frozen = true
}

// Snapshot returns copies of both sequences taken under both locks.
func (b *EventBuffers) Snapshot() ([]TouchSample, []TriggerEvent) {
	b.lockBoth()
	defer b.unlockBoth()
	touches := make([]TouchSample, len(b.touch.samples))
	copy(touches, b.touch.samples)
	triggers := make([]TriggerEvent, len(b.trigger.events))
	copy(triggers, b.trigger.events)
	return touches, triggers
}

// Counts reports the live counters.
func (b *EventBuffers) Counts() Counts {
	b.lockBoth()
	defer b.unlockBoth()
	return Counts{
		Moves:     len(b.touch.samples),
		Crossings: len(b.trigger.events),
	}
}

// Dropped reports how many touch samples and trigger events arrived after
// the buffers were frozen.
func (b *EventBuffers) Dropped() (touches, triggers int) {
	b.lockBoth()
	defer b.unlockBoth()
	return b.touch.dropped, b.trigger.dropped
}
