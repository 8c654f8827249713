package preview

// NullPlayback is a headless ports.PlaybackHandle: it tracks the state it
// is given and produces no sound. Used when no real playback collaborator
// is wired in (batch use, tests).
type NullPlayback struct {
	source  string
	pos     int64
	playing bool
	level   float64
}

// NewNullPlayback creates a silent playback handle.
func NewNullPlayback() *NullPlayback { return &NullPlayback{} }

func (p *NullPlayback) SetSource(path string) error {
	p.source = path
	p.pos = 0
	p.playing = false
	return nil
}

func (p *NullPlayback) Play()  { p.playing = true }
func (p *NullPlayback) Pause() { p.playing = false }

func (p *NullPlayback) Stop() {
	p.playing = false
	p.pos = 0
}

func (p *NullPlayback) SetPosition(ms int64) { p.pos = ms }
func (p *NullPlayback) Position() int64      { return p.pos }

func (p *NullPlayback) SetOutputLevel(level float64) { p.level = level }

// OutputLevel exposes the last applied level for inspection.
func (p *NullPlayback) OutputLevel() float64 { return p.level }
