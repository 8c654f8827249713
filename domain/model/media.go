package model

// StreamInfo describes one audio stream discovered by probing a container.
// Index is the ordinal among audio streams, which is what ffmpeg's 0:a:N
// stream selector expects, not the container's global stream index.
type StreamInfo struct {
	Index     int
	CodecName string
	Language  string
	Title     string
}

// MediaInfo holds everything the session needs from a probe.
type MediaInfo struct {
	Path         string
	DurationMS   int64
	FPS          float64
	AudioStreams []StreamInfo
}

// Track is one selectable audio stream with its preview state.
type Track struct {
	Index      int
	Language   string
	CodecName  string
	Title      string
	GainDB     float64
	Active     bool
	Envelope   []float64
	DurationMS int64
}

// Gain bounds for the per-track control, in dB.
const (
	MinGainDB = -30.0
	MaxGainDB = 30.0
)

// HeadroomFactor maps the gain control onto the audition output level:
// 0 dB plays at 25% of maximum output, and the audible ceiling is reached
// at +12 dB. Export gain is NOT subject to this factor; preview loudness
// deliberately diverges from export loudness above +12 dB.
const HeadroomFactor = 0.25

// NewTrack creates a track from probed stream info with default state.
func NewTrack(s StreamInfo) *Track {
	lang := s.Language
	if lang == "" {
		lang = "unknown"
	}
	return &Track{
		Index:     s.Index,
		Language:  lang,
		CodecName: s.CodecName,
		Title:     s.Title,
		GainDB:    0,
		Active:    true,
	}
}

// TrackMix is one selected track in an export job.
type TrackMix struct {
	Index  int
	GainDB float64
}

// ExportJob is the ephemeral description of a single export. At most one
// job runs at a time per Mixer.
type ExportJob struct {
	ID         string
	Tracks     []TrackMix
	StartMS    int64
	EndMS      int64
	PreciseCut bool
	InputPath  string
	OutputPath string
}

// SelectedDurationMS returns the length of the trimmed span.
func (j *ExportJob) SelectedDurationMS() int64 {
	return j.EndMS - j.StartMS
}

// PreviewOptions configures per-track preview extraction and rendering.
type PreviewOptions struct {
	// EnvelopeWidth is the target point count of the peak envelope.
	EnvelopeWidth int

	// SampleRate of the extracted mono preview PCM (8000-44100).
	SampleRate int

	// LimitSeconds caps the extracted preview length; 0 extracts the
	// whole track at the reduced sample rate.
	LimitSeconds int

	// MaxConcurrent bounds simultaneous extraction processes.
	MaxConcurrent int
}

// ExportOptions configures the composed export command.
type ExportOptions struct {
	AudioCodec   string
	AudioBitrate string
	VideoCodec   string
	VideoCRF     int
	VideoPreset  string
}

// DefaultPreviewOptions returns the preview defaults: whole-track
// extraction at 8 kHz mono, 2000-point envelopes.
func DefaultPreviewOptions() *PreviewOptions {
	return &PreviewOptions{
		EnvelopeWidth: 2000,
		SampleRate:    8000,
		LimitSeconds:  0,
		MaxConcurrent: 4,
	}
}

// DefaultExportOptions returns the fixed encode target: AAC at 192k, and
// libx264 crf 18 preset fast when a precise cut forces a video re-encode.
func DefaultExportOptions() *ExportOptions {
	return &ExportOptions{
		AudioCodec:   "aac",
		AudioBitrate: "192k",
		VideoCodec:   "libx264",
		VideoCRF:     18,
		VideoPreset:  "fast",
	}
}
