package events

import "github.com/kelindar/event"

// Forward copies every T published on bus into ch until the returned
// function is called. Events published while ch is full are dropped.
func Forward[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// ForwardSession forwards the session lifecycle events and config reloads.
// SessionMetricsEvent is not included.
func ForwardSession(bus *Bus, ch chan<- any) func() {
	unsubs := []func(){
		Forward[SessionCreatedEvent](bus, ch),
		Forward[SessionStateChangedEvent](bus, ch),
		Forward[FlushDoneEvent](bus, ch),
		Forward[SessionSavedEvent](bus, ch),
		Forward[SessionDiscardedEvent](bus, ch),
		Forward[ConfigReloadedEvent](bus, ch),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
