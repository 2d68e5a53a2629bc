package merger

import (
	"errors"
	"fmt"
	"io"
	"math"
)

// FrameSource yields pad frames in nondecreasing timestamp order.
type FrameSource interface {
	NextFrame() (*GrawFrame, error)
}

// TriggerSource yields trigger records in acquisition order.
type TriggerSource interface {
	NextTrigger() (TriggerRecord, error)
}

// CorrelatorConfig fixes the match window half-width in clock ticks, the
// orphan policy and the frame buffer cap.
type CorrelatorConfig struct {
	Window    uint64
	Policy    OrphanPolicy
	BufferCap int
}

// Correlator pairs each trigger record with the pad frames whose timestamps
// fall inside the trigger's match window. Frames older than any window that
// could still claim them become orphans.
type Correlator struct {
	frames   FrameSource
	triggers TriggerSource
	padMap   *PadMap
	config   CorrelatorConfig

	buffer    []*GrawFrame
	lookahead *GrawFrame
	pending   []*CorrelatedEvent

	framesDone   bool
	triggersDone bool
	sawTrigger   bool
	lastTrigger  uint32
	haveLast     bool
	nextID       uint64
	runNumber    int

	triggerEvents    uint64
	orphanEvents     uint64
	framesMatched    uint64
	framesOrphaned   uint64
	fpnRejected      uint64
	unmappedChannels uint64
}

func NewCorrelator(runNumber int, frames FrameSource, triggers TriggerSource, padMap *PadMap, config CorrelatorConfig) *Correlator {
	return &Correlator{
		frames:    frames,
		triggers:  triggers,
		padMap:    padMap,
		config:    config,
		runNumber: runNumber,
	}
}

// NextEvent returns the next correlated event in emission order, and io.EOF
// once both streams are exhausted. Trigger ordering violations and an empty
// trigger stream are fatal.
func (c *Correlator) NextEvent() (*CorrelatedEvent, error) {
	for {
		if len(c.pending) > 0 {
			event := c.pending[0]
			c.pending = c.pending[1:]
			return event, nil
		}
		if c.triggersDone {
			if err := c.drainFrames(); err != nil {
				return nil, err
			}
			if len(c.pending) == 0 {
				return nil, io.EOF
			}
			continue
		}
		record, err := c.triggers.NextTrigger()
		if err == io.EOF {
			if !c.sawTrigger {
				return nil, &EmptyStreamError{RunNumber: c.runNumber, Stream: "trigger"}
			}
			c.triggersDone = true
			continue
		}
		if err != nil {
			return nil, err
		}
		if c.haveLast && record.EventID <= c.lastTrigger {
			return nil, &FormatError{
				Stream: "trigger",
				Reason: fmt.Sprintf("event counter went from %d to %d", c.lastTrigger, record.EventID),
			}
		}
		c.lastTrigger = record.EventID
		c.haveLast = true
		c.sawTrigger = true

		low := uint64(0)
		if record.Timestamp > c.config.Window {
			low = record.Timestamp - c.config.Window
		}
		high := record.Timestamp
		if high <= math.MaxUint64-c.config.Window {
			high += c.config.Window
		} else {
			high = math.MaxUint64
		}
		if err := c.fillBuffer(high); err != nil {
			return nil, err
		}

		cut := 0
		for cut < len(c.buffer) && c.buffer[cut].Header.Timestamp < low {
			cut++
		}
		c.queueOrphans(c.buffer[:cut])

		matched := cut
		for matched < len(c.buffer) && c.buffer[matched].Header.Timestamp <= high {
			matched++
		}
		event := c.buildEvent(&record, record.Timestamp, c.buffer[cut:matched])
		c.framesMatched += uint64(matched - cut)
		c.triggerEvents++
		c.buffer = append(c.buffer[:0], c.buffer[matched:]...)
		c.pending = append(c.pending, event)
	}
}

// fillBuffer pulls frames until the next one lies beyond high, keeping that
// one as lookahead for the following window.
func (c *Correlator) fillBuffer(high uint64) error {
	for !c.framesDone {
		if c.lookahead == nil {
			frame, err := c.frames.NextFrame()
			if err == io.EOF {
				c.framesDone = true
				return nil
			}
			if err != nil {
				return err
			}
			c.lookahead = frame
		}
		if c.lookahead.Header.Timestamp > high {
			return nil
		}
		if c.config.BufferCap > 0 && len(c.buffer) >= c.config.BufferCap {
			return &BufferOverflowError{Buffered: len(c.buffer), Cap: c.config.BufferCap}
		}
		c.buffer = append(c.buffer, c.lookahead)
		c.lookahead = nil
	}
	return nil
}

// drainFrames runs after the trigger stream ends: every remaining frame is an
// orphan by definition. The buffer is flushed whenever it reaches the cap so
// a long orphan tail cannot overflow it.
func (c *Correlator) drainFrames() error {
	for !c.framesDone {
		err := c.fillBuffer(math.MaxUint64)
		if err == nil {
			break
		}
		var overflow *BufferOverflowError
		if !errors.As(err, &overflow) {
			return err
		}
		c.queueOrphans(c.buffer)
		c.buffer = c.buffer[:0]
	}
	c.queueOrphans(c.buffer)
	c.buffer = c.buffer[:0]
	return nil
}

// queueOrphans groups orphaned frames by their hardware event counter and
// either emits them as degraded events or drops them, per the policy.
func (c *Correlator) queueOrphans(frames []*GrawFrame) {
	if len(frames) == 0 {
		return
	}
	c.framesOrphaned += uint64(len(frames))
	if c.config.Policy == OrphanDrop {
		return
	}
	start := 0
	for i := 1; i <= len(frames); i++ {
		if i == len(frames) || frames[i].Header.EventID != frames[start].Header.EventID {
			group := frames[start:i]
			event := c.buildEvent(nil, group[0].Header.Timestamp, group)
			c.orphanEvents++
			c.pending = append(c.pending, event)
			start = i
		}
	}
}

// buildEvent resolves each frame against the pad map, discarding fixed
// pattern noise channels and channels the map does not cover.
func (c *Correlator) buildEvent(trigger *TriggerRecord, timestamp uint64, frames []*GrawFrame) *CorrelatedEvent {
	event := &CorrelatedEvent{
		ID:        c.nextID,
		Trigger:   trigger,
		Timestamp: timestamp,
	}
	c.nextID++
	for _, frame := range frames {
		address := frame.Address()
		if address.IsFPN() {
			c.fpnRejected++
			continue
		}
		entry, ok := c.padMap.Resolve(address)
		if !ok {
			c.unmappedChannels++
			continue
		}
		event.Traces = append(event.Traces, Trace{
			Address:   address,
			Entry:     entry,
			Saturated: frame.Saturated(),
			Samples:   frame.Samples,
		})
	}
	return event
}

func (c *Correlator) TriggerEvents() uint64    { return c.triggerEvents }
func (c *Correlator) OrphanEvents() uint64     { return c.orphanEvents }
func (c *Correlator) FramesMatched() uint64    { return c.framesMatched }
func (c *Correlator) FramesOrphaned() uint64   { return c.framesOrphaned }
func (c *Correlator) FPNRejected() uint64      { return c.fpnRejected }
func (c *Correlator) UnmappedChannels() uint64 { return c.unmappedChannels }
