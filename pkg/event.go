package merger

// Trace is one pad's waveform within a correlated event.
type Trace struct {
	Address   HardwareAddress
	Entry     PadMapEntry
	Saturated bool
	Samples   []int16
}

// CorrelatedEvent groups the pad traces that fall inside one trigger's match
// window. An event without a trigger is an orphan, kept only when the orphan
// policy says so.
type CorrelatedEvent struct {
	ID        uint64
	Trigger   *TriggerRecord
	Timestamp uint64
	Traces    []Trace
}

func (e *CorrelatedEvent) IsOrphan() bool {
	return e.Trigger == nil
}
