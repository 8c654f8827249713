package preview

import (
	"math"

	"github.com/avlab/trackmix/domain/model"
	"github.com/avlab/trackmix/domain/ports"
	pkgerrors "github.com/avlab/trackmix/pkg/errors"
	"github.com/avlab/trackmix/pkg/logger"
	"go.uber.org/zap"
)

// syncToleranceMS bounds how far a track's own playback clock may drift
// from the master position before a corrective seek is forced. Constant
// micro-seeking causes audible stutter, so small drift is left alone.
const syncToleranceMS = 50

// TrackController owns one track's mutable preview state: its envelope,
// gain, active flag, and audition playback handle. All methods must be
// called on the interactive goroutine.
type TrackController struct {
	track    *model.Track
	playback ports.PlaybackHandle
	width    int
	ready    bool
	log      *logger.Logger
}

// NewTrackController creates a controller for one probed audio stream.
// The track starts active at 0 dB and stays non-playable until extraction
// delivers a preview buffer.
func NewTrackController(stream model.StreamInfo, playback ports.PlaybackHandle, envelopeWidth int, log *logger.Logger) *TrackController {
	if envelopeWidth <= 0 {
		envelopeWidth = DefaultEnvelopeWidth
	}
	tc := &TrackController{
		track:    model.NewTrack(stream),
		playback: playback,
		width:    envelopeWidth,
		log:      log.With(zap.Int("track", stream.Index)),
	}
	tc.updateOutputLevel()
	return tc
}

// Track exposes the owned track state for rendering and export snapshots.
func (tc *TrackController) Track() *model.Track { return tc.track }

// Ready reports whether the preview buffer has been loaded.
func (tc *TrackController) Ready() bool { return tc.ready }

// ApplyGain clamps db to the control range, stores it, and recomputes the
// audition output level. The envelope is never mutated; gain scales it at
// draw time only.
func (tc *TrackController) ApplyGain(db float64) {
	if db > model.MaxGainDB {
		db = model.MaxGainDB
	}
	if db < model.MinGainDB {
		db = model.MinGainDB
	}
	tc.track.GainDB = db
	tc.updateOutputLevel()
}

// SetActive toggles the track's inclusion in audition and export. An
// inactive track is silent regardless of gain.
func (tc *TrackController) SetActive(flag bool) {
	tc.track.Active = flag
	tc.updateOutputLevel()
}

// VisualGain is the linear multiplier applied to envelope values when
// drawing: 10^(db/20), unbounded above 1.
func (tc *TrackController) VisualGain() float64 {
	return math.Pow(10, tc.track.GainDB/20.0)
}

// OutputLevel maps the stored gain onto the audition volume through the
// headroom factor: 0 dB plays at 0.25, the ceiling is hit at +12 dB, and
// gains above that keep raising export loudness but not preview loudness.
func (tc *TrackController) OutputLevel() float64 {
	if !tc.track.Active || !tc.ready {
		return 0
	}
	linear := math.Pow(10, tc.track.GainDB/20.0) * model.HeadroomFactor
	if linear > 1.0 {
		linear = 1.0
	}
	return linear
}

func (tc *TrackController) updateOutputLevel() {
	tc.playback.SetOutputLevel(tc.OutputLevel())
}

// OnExtractionReady loads the extracted preview buffer, builds the
// envelope, attaches the buffer to the playback handle, and re-applies
// the stored gain (the user may have adjusted it while extraction ran).
func (tc *TrackController) OnExtractionReady(path string) error {
	samples, rate, err := LoadPreviewWAV(path)
	if err != nil {
		tc.MarkFailed(err)
		return pkgerrors.NewExtractionError(tc.track.Index, "preview buffer unreadable", err)
	}

	tc.track.Envelope = BuildEnvelope(samples, tc.width)
	if rate > 0 {
		tc.track.DurationMS = int64(len(samples)) * 1000 / int64(rate)
	}

	if err := tc.playback.SetSource(path); err != nil {
		tc.MarkFailed(err)
		return pkgerrors.NewExtractionError(tc.track.Index, "playback source rejected", err)
	}

	tc.ready = true
	tc.updateOutputLevel()
	tc.log.Debug("track preview ready",
		zap.Int("envelope_points", len(tc.track.Envelope)),
		zap.Int64("duration_ms", tc.track.DurationMS),
	)
	return nil
}

// MarkFailed puts the track in its inert state: no waveform, no audition.
// Other tracks and the transport are unaffected.
func (tc *TrackController) MarkFailed(err error) {
	tc.track.Envelope = nil
	tc.track.DurationMS = 0
	tc.ready = false
	tc.playback.SetOutputLevel(0)
	tc.log.Warn("track extraction failed, audition disabled", zap.Error(err))
}

// SyncTo follows the master transport. A corrective seek is issued only
// when the track's own clock has drifted more than the tolerance; explicit
// user seeks go through ForceSeek instead.
func (tc *TrackController) SyncTo(positionMS int64, shouldPlay bool) {
	if !tc.ready {
		return
	}
	diff := tc.playback.Position() - positionMS
	if diff < 0 {
		diff = -diff
	}
	if diff > syncToleranceMS {
		tc.playback.SetPosition(positionMS)
	}
	if shouldPlay {
		tc.playback.Play()
	} else {
		tc.playback.Pause()
	}
}

// ForceSeek repositions the track unconditionally.
func (tc *TrackController) ForceSeek(ms int64) {
	if !tc.ready {
		return
	}
	tc.playback.SetPosition(ms)
}

// Stop halts audition playback.
func (tc *TrackController) Stop() {
	tc.playback.Stop()
}

// RenderColumns maps the envelope across width pixels with the visual
// gain applied, each column clamped to 1.0.
func (tc *TrackController) RenderColumns(width int) []float64 {
	cols := RenderColumns(tc.track.Envelope, width)
	gain := tc.VisualGain()
	for i, v := range cols {
		v *= gain
		if v > 1.0 {
			v = 1.0
		}
		cols[i] = v
	}
	return cols
}
