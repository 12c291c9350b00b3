package effect

import (
	"fmt"

	"nimbus/internal/audiobuf"
)

// Chain runs processors in series through intermediate buffers. It is
// itself a Processor, so a renderer can drive an encode/decode pair the
// same way it drives a single effect.
type Chain struct {
	stages []Processor
	mid    []*audiobuf.Buffer // mid[i] holds the output of stages[i]
}

var _ Processor = (*Chain)(nil)

// NewChain links stages in order. Every stage must share one frame size
// and accept the channel count of the stage before it.
func NewChain(stages ...Processor) (*Chain, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("chain needs at least one stage")
	}
	frame := stages[0].FrameSize()
	c := &Chain{stages: stages}
	for i, s := range stages {
		if s.FrameSize() != frame {
			return nil, fmt.Errorf("stage %d frame size %d differs from %d", i, s.FrameSize(), frame)
		}
		if i == 0 {
			continue
		}
		n := stages[i-1].OutputChannels()
		if req := s.InputChannels(); !req.Allows(n) {
			return nil, fmt.Errorf("stage %d: %w", i, &ChannelError{Expected: req, Actual: n})
		}
		c.mid = append(c.mid, audiobuf.WithShape(n, frame))
	}
	return c, nil
}

// dst returns the output buffer of stage i.
func (c *Chain) dst(i int, out *audiobuf.Buffer) *audiobuf.Buffer {
	if i == len(c.stages)-1 {
		return out
	}
	return c.mid[i]
}

func (c *Chain) Process(in, out *audiobuf.Buffer) (TailState, error) {
	cur := in
	for i, s := range c.stages {
		d := c.dst(i, out)
		if _, err := s.Process(cur, d); err != nil {
			return TailComplete, fmt.Errorf("stage %d: %w", i, err)
		}
		cur = d
	}
	return c.tail(), nil
}

// DrainTail drains the earliest draining stage and feeds its output
// through every later stage. Stages before it are idle and contribute
// silence, which is skipped.
func (c *Chain) DrainTail(out *audiobuf.Buffer) (TailState, error) {
	if c.State() != TailDraining {
		return TailComplete, ErrNotDraining
	}
	var cur *audiobuf.Buffer
	for i, s := range c.stages {
		d := c.dst(i, out)
		var err error
		switch {
		case cur != nil:
			_, err = s.Process(cur, d)
		case s.State() == TailDraining:
			_, err = s.DrainTail(d)
		default:
			continue
		}
		if err != nil {
			return TailRemaining, fmt.Errorf("stage %d: %w", i, err)
		}
		cur = d
	}
	return c.tail(), nil
}

func (c *Chain) tail() TailState {
	if c.State() == TailDraining {
		return TailRemaining
	}
	return TailComplete
}

func (c *Chain) InputChannels() ChannelRequirement { return c.stages[0].InputChannels() }
func (c *Chain) OutputChannels() int               { return c.stages[len(c.stages)-1].OutputChannels() }
func (c *Chain) FrameSize() int                    { return c.stages[0].FrameSize() }

// TailSize is the sum of the stage tails.
func (c *Chain) TailSize() int {
	n := 0
	for _, s := range c.stages {
		n += s.TailSize()
	}
	return n
}

// State is TailDraining while any stage is.
func (c *Chain) State() State {
	for _, s := range c.stages {
		if s.State() == TailDraining {
			return TailDraining
		}
	}
	return Idle
}

func (c *Chain) Reset() {
	for _, s := range c.stages {
		s.Reset()
	}
}

// Release releases every stage.
func (c *Chain) Release() {
	for _, s := range c.stages {
		s.Release()
	}
}
