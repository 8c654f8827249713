package usecase

// Event is a completion message posted by a background worker, to be
// applied on the interactive goroutine via MixerService.Apply. Workers
// never touch track or transport state directly.
type Event interface {
	isEvent()
}

// ExtractionReady reports one track's preview extraction outcome.
type ExtractionReady struct {
	Generation uint64
	TrackIndex int
	Path       string
	Err        error
}

// KeyframesReady delivers the background keyframe scan result.
type KeyframesReady struct {
	Generation uint64
	Timestamps []int64
}

// ExportProgressed carries the current export percentage.
type ExportProgressed struct {
	JobID   string
	Percent float64
}

// ExportFinished reports export completion or failure.
type ExportFinished struct {
	JobID string
	Err   error
}

func (ExtractionReady) isEvent()  {}
func (KeyframesReady) isEvent()   {}
func (ExportProgressed) isEvent() {}
func (ExportFinished) isEvent()   {}
