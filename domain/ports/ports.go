package ports

import (
	"context"

	"github.com/avlab/trackmix/domain/model"
)

// MediaEngine is the abstraction for external media-engine invocation.
// All signal processing (mixing, gain, normalization, encoding) is
// delegated through this boundary; nothing in the core decodes audio.
type MediaEngine interface {
	// Execute runs the engine with the given arguments to completion.
	Execute(ctx context.Context, args []string) error

	// ExecuteProgress runs the engine and streams its combined output
	// line by line to fn while the process runs.
	ExecuteProgress(ctx context.Context, args []string, fn func(line string)) error

	// Probe runs the probing binary and returns JSON stream/format data.
	Probe(ctx context.Context, inputPath string) ([]byte, error)

	// ProbeKeyframes returns sorted video keyframe timestamps in ms.
	ProbeKeyframes(ctx context.Context, inputPath string) ([]int64, error)
}

// StorageProvider abstracts filesystem operations
type StorageProvider interface {
	// Exists checks if a file exists
	Exists(ctx context.Context, path string) (bool, error)

	// Size returns file size in bytes
	Size(ctx context.Context, path string) (int64, error)

	// Remove deletes a file
	Remove(ctx context.Context, path string) error

	// TempDir creates a uniquely named directory under dir and returns its path
	TempDir(ctx context.Context, dir, pattern string) (string, error)

	// RemoveAll deletes a directory tree. Best-effort session cleanup.
	RemoveAll(ctx context.Context, path string) error
}

// PlaybackHandle is the per-track audition output. The underlying player
// is an external collaborator; the core only drives this surface.
type PlaybackHandle interface {
	SetSource(path string) error
	Play()
	Pause()
	Stop()
	SetPosition(ms int64)
	Position() int64

	// SetOutputLevel sets the linear audition volume in [0, 1].
	SetOutputLevel(level float64)
}

// PlaybackFactory creates one playback handle per track.
type PlaybackFactory interface {
	NewPlayback() PlaybackHandle
}

// PlaybackFactoryFunc adapts a function to PlaybackFactory.
type PlaybackFactoryFunc func() PlaybackHandle

func (f PlaybackFactoryFunc) NewPlayback() PlaybackHandle { return f() }

// Option is the functional option type for preview configuration
type Option func(*model.PreviewOptions)

// WithEnvelopeWidth sets the target envelope point count
func WithEnvelopeWidth(points int) Option {
	return func(o *model.PreviewOptions) {
		if points > 0 {
			o.EnvelopeWidth = points
		}
	}
}

// WithPreviewSampleRate sets the extracted preview sample rate in Hz
func WithPreviewSampleRate(hz int) Option {
	return func(o *model.PreviewOptions) {
		if hz >= 8000 && hz <= 44100 {
			o.SampleRate = hz
		}
	}
}

// WithPreviewLimit caps extracted preview length in seconds
func WithPreviewLimit(seconds int) Option {
	return func(o *model.PreviewOptions) {
		if seconds >= 0 {
			o.LimitSeconds = seconds
		}
	}
}

// WithMaxConcurrentExtractions bounds simultaneous extraction processes
func WithMaxConcurrentExtractions(n int) Option {
	return func(o *model.PreviewOptions) {
		if n > 0 {
			o.MaxConcurrent = n
		}
	}
}

// ExportOption is the functional option type for export configuration
type ExportOption func(*model.ExportOptions)

// WithAudioBitrate sets the final mix bitrate, e.g. "192k"
func WithAudioBitrate(bitrate string) ExportOption {
	return func(o *model.ExportOptions) {
		if bitrate != "" {
			o.AudioBitrate = bitrate
		}
	}
}

// WithAudioCodec sets the final mix codec
func WithAudioCodec(codec string) ExportOption {
	return func(o *model.ExportOptions) {
		if codec != "" {
			o.AudioCodec = codec
		}
	}
}

// WithVideoCRF sets the re-encode quality used for precise cuts
func WithVideoCRF(crf int) ExportOption {
	return func(o *model.ExportOptions) {
		if crf >= 0 {
			o.VideoCRF = crf
		}
	}
}

// WithVideoPreset sets the re-encode speed preset used for precise cuts
func WithVideoPreset(preset string) ExportOption {
	return func(o *model.ExportOptions) {
		if preset != "" {
			o.VideoPreset = preset
		}
	}
}
