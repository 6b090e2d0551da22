package captp

// Event is surfaced to callers of Session.RecvEvent: a FetchEvent for
// bootstrap activity that an application may want to observe as a stream
// rather than by registering swiss numbers ahead of time (spec §4.5), or
// an AbortEvent.
type Event interface {
	isEvent()
}

// FetchEvent reports that a peer fetched a swiss number with no registered
// object; the fetch has already been broken by the time this event fires
// (spec §8: "fetch of an unknown swiss errors"), so this is observational
// only — useful for logging which swiss numbers peers are probing for.
type FetchEvent struct {
	SwissNum []byte
}

func (FetchEvent) isEvent() {}

// AbortEvent reports that the session was aborted, by either side.
type AbortEvent struct {
	Local  bool
	Reason string
}

func (AbortEvent) isEvent() {}
