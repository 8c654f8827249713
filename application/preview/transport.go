package preview

import (
	"sort"

	"github.com/avlab/trackmix/domain/model"
	"github.com/avlab/trackmix/pkg/logger"
	"go.uber.org/zap"
)

// Transport owns the master playback position, trim points, and play
// state, and fans every command out to the track controllers so their
// independent playback clocks follow the master. All methods must be
// called on the interactive goroutine.
type Transport struct {
	state     *model.TransportState
	tracks    []*TrackController
	keyframes []int64
	log       *logger.Logger
}

// NewTransport creates a transport in the Stopped state (no media).
func NewTransport(log *logger.Logger) *Transport {
	return &Transport{log: log.Named("transport")}
}

// Load attaches freshly probed media and its track controllers. Position
// resets to zero, the trim range spans the whole clip, and playback
// auto-starts.
func (t *Transport) Load(info *model.MediaInfo, tracks []*TrackController) {
	t.state = model.NewTransportState(info.DurationMS, info.FPS)
	t.tracks = tracks
	t.keyframes = nil
	t.Play()
}

// Unload returns to the Stopped state and detaches all tracks.
func (t *Transport) Unload() {
	for _, tc := range t.tracks {
		tc.Stop()
	}
	t.state = nil
	t.tracks = nil
	t.keyframes = nil
}

// State returns the current transport state, or a zero Stopped state
// before any media is loaded.
func (t *Transport) State() model.TransportState {
	if t.state == nil {
		return model.TransportState{State: model.StateStopped, NearestKeyframeMS: -1}
	}
	return *t.state
}

// Playing reports whether the master transport is in the Playing state.
func (t *Transport) Playing() bool {
	return t.state != nil && t.state.State == model.StatePlaying
}

// Play starts master playback and all ready tracks with it.
func (t *Transport) Play() {
	if t.state == nil {
		return
	}
	t.state.State = model.StatePlaying
	for _, tc := range t.tracks {
		tc.SyncTo(t.state.PositionMS, true)
	}
}

// Pause pauses master playback and all tracks.
func (t *Transport) Pause() {
	if t.state == nil {
		return
	}
	t.state.State = model.StatePaused
	for _, tc := range t.tracks {
		tc.SyncTo(t.state.PositionMS, false)
	}
}

// TogglePlay switches between Playing and Paused.
func (t *Transport) TogglePlay() {
	if t.Playing() {
		t.Pause()
	} else {
		t.Play()
	}
}

// Seek clamps ms to the clip and forces every track to the new position.
// Explicit seeks bypass the drift tolerance.
func (t *Transport) Seek(ms int64) {
	if t.state == nil {
		return
	}
	pos := t.state.ClampPosition(ms)
	t.state.PositionMS = pos
	t.updateNearestKeyframe()
	for _, tc := range t.tracks {
		tc.ForceSeek(pos)
	}
}

// StepForward pauses playback and advances by one frame.
func (t *Transport) StepForward() {
	if t.state == nil {
		return
	}
	t.Pause()
	t.Seek(t.state.PositionMS + t.state.FrameStepMS())
}

// StepBack pauses playback and rewinds by one frame.
func (t *Transport) StepBack() {
	if t.state == nil {
		return
	}
	t.Pause()
	t.Seek(t.state.PositionMS - t.state.FrameStepMS())
}

// SetInPoint moves the in point to the current position. If that would
// invert the range, the out point resets to the clip end: a valid
// non-empty range is preferred over rejecting the action.
func (t *Transport) SetInPoint() {
	if t.state == nil {
		return
	}
	t.state.InPointMS = t.state.PositionMS
	if t.state.InPointMS > t.state.OutPointMS {
		t.state.OutPointMS = t.state.DurationMS
	}
}

// SetOutPoint mirrors SetInPoint: inversion resets the in point to zero.
func (t *Transport) SetOutPoint() {
	if t.state == nil {
		return
	}
	t.state.OutPointMS = t.state.PositionMS
	if t.state.OutPointMS < t.state.InPointMS {
		t.state.InPointMS = 0
	}
}

// OnPositionChanged applies a position notification from the master
// playback handle and fans the new position out to every track. Stale or
// duplicate notifications are harmless: this is a pure assignment.
func (t *Transport) OnPositionChanged(ms int64) {
	if t.state == nil {
		return
	}
	t.state.PositionMS = ms
	t.updateNearestKeyframe()
	playing := t.state.State == model.StatePlaying
	for _, tc := range t.tracks {
		tc.SyncTo(ms, playing)
	}
}

// SetKeyframes installs the keyframe timestamps used for proximity
// display. The list is sorted on install; the background scan does not
// guarantee order.
func (t *Transport) SetKeyframes(timestamps []int64) {
	kfs := append([]int64(nil), timestamps...)
	sort.Slice(kfs, func(i, j int) bool { return kfs[i] < kfs[j] })
	t.keyframes = kfs
	if t.state != nil {
		t.updateNearestKeyframe()
		t.log.Debug("keyframes loaded", zap.Int("count", len(kfs)))
	}
}

func (t *Transport) updateNearestKeyframe() {
	t.state.NearestKeyframeMS = NearestKeyframe(t.keyframes, t.state.PositionMS)
}

// NearestKeyframe finds the keyframe closest to pos in a sorted ascending
// list by binary search. On a distance tie the earlier keyframe wins, so
// the result is deterministic. Returns -1 for an empty list.
func NearestKeyframe(sorted []int64, pos int64) int64 {
	if len(sorted) == 0 {
		return -1
	}
	idx := sort.Search(len(sorted), func(i int) bool { return sorted[i] >= pos })
	if idx == 0 {
		return sorted[0]
	}
	if idx == len(sorted) {
		return sorted[len(sorted)-1]
	}
	before, after := sorted[idx-1], sorted[idx]
	if after-pos < pos-before {
		return after
	}
	return before
}
