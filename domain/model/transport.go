package model

import "math"

// PlayState is the master transport state.
type PlayState int

const (
	StateStopped PlayState = iota
	StatePaused
	StatePlaying
)

func (s PlayState) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

// TransportState is the single shared master position/trim state. It is
// mutated only on the interactive goroutine; tracks never write to it.
type TransportState struct {
	PositionMS        int64
	DurationMS        int64
	InPointMS         int64
	OutPointMS        int64
	State             PlayState
	FPS               float64
	NearestKeyframeMS int64 // display only, -1 when unknown
}

// NewTransportState returns the state for freshly loaded media: position 0,
// trim range spanning the whole clip.
func NewTransportState(durationMS int64, fps float64) *TransportState {
	if fps <= 0 {
		fps = 30.0
	}
	return &TransportState{
		DurationMS:        durationMS,
		OutPointMS:        durationMS,
		FPS:               fps,
		NearestKeyframeMS: -1,
		State:             StatePaused,
	}
}

// FrameStepMS is the seek distance of a single frame step.
func (t *TransportState) FrameStepMS() int64 {
	return int64(math.Round(1000.0 / t.FPS))
}

// FrameForMS converts a position to a frame number for display labels.
func (t *TransportState) FrameForMS(ms int64) int64 {
	return int64(float64(ms) / 1000.0 * t.FPS)
}

// TotalFrames returns the frame count of the loaded clip.
func (t *TransportState) TotalFrames() int64 {
	return t.FrameForMS(t.DurationMS)
}

// ClampPosition bounds a seek target to the clip.
func (t *TransportState) ClampPosition(ms int64) int64 {
	if ms < 0 {
		return 0
	}
	if ms > t.DurationMS {
		return t.DurationMS
	}
	return ms
}
