package typing

import "time"

const (
	DefaultChunkSize  = 4
	DefaultEraseStep  = 25 * time.Millisecond
	DefaultRevealStep = 100 * time.Millisecond
	DefaultFinalDelay = 50 * time.Millisecond
)

// Options controls the pacing of a reveal sequence.
type Options struct {
	ChunkSize  int
	EraseStep  time.Duration
	RevealStep time.Duration
	FinalDelay time.Duration
}

// DefaultOptions returns the standard typing cadence.
func DefaultOptions() Options {
	return Options{
		ChunkSize:  DefaultChunkSize,
		EraseStep:  DefaultEraseStep,
		RevealStep: DefaultRevealStep,
		FinalDelay: DefaultFinalDelay,
	}
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.EraseStep < 0 {
		o.EraseStep = DefaultEraseStep
	}
	if o.RevealStep < 0 {
		o.RevealStep = DefaultRevealStep
	}
	if o.FinalDelay < 0 {
		o.FinalDelay = DefaultFinalDelay
	}
	return o
}

// Emission is one scheduled partial-text push.
type Emission struct {
	At    time.Duration
	Text  string
	Final bool
}

// Plan computes the emission schedule that backspaces previous and then
// types target chunk by chunk. The last emission is always the full target.
func Plan(previous, target string, opts Options) []Emission {
	opts = opts.withDefaults()

	prev := []rune(previous)
	next := []rune(target)

	plan := make([]Emission, 0, len(prev)+len(next)/opts.ChunkSize+1)
	var at time.Duration

	for n := len(prev) - 1; n >= 0; n-- {
		plan = append(plan, Emission{At: at, Text: string(prev[:n])})
		at += opts.EraseStep
	}

	for end := opts.ChunkSize; end < len(next); end += opts.ChunkSize {
		plan = append(plan, Emission{At: at, Text: string(next[:end])})
		at += opts.RevealStep
	}

	plan = append(plan, Emission{At: at + opts.FinalDelay, Text: target, Final: true})

	return plan
}
