package trackmix

import (
	"context"
	"os"

	"github.com/avlab/trackmix/application/preview"
	"github.com/avlab/trackmix/application/usecase"
	"github.com/avlab/trackmix/domain/model"
	"github.com/avlab/trackmix/domain/ports"
	"github.com/avlab/trackmix/infrastructure/ffmpeg"
	"github.com/avlab/trackmix/infrastructure/storage"
	"github.com/avlab/trackmix/pkg/logger"
	"github.com/avlab/trackmix/pkg/progress"
	"go.uber.org/zap"
)

// Re-export types for convenient use by callers
type (
	Track           = model.Track
	StreamInfo      = model.StreamInfo
	MediaInfo       = model.MediaInfo
	TransportState  = model.TransportState
	ExportJob       = model.ExportJob
	Session         = usecase.Session
	Event           = usecase.Event
	ExtractionReady = usecase.ExtractionReady
	KeyframesReady  = usecase.KeyframesReady
	ExportProgress  = usecase.ExportProgressed
	ExportFinished  = usecase.ExportFinished
	ProgressUpdate  = progress.Update
	ProgressStage   = progress.Stage
)

// Re-export transport states and progress stages
const (
	StateStopped = model.StateStopped
	StatePaused  = model.StatePaused
	StatePlaying = model.StatePlaying

	StageProbe   = progress.StageProbe
	StageExtract = progress.StageExtract
	StageCompose = progress.StageCompose
	StageEncode  = progress.StageEncode
	StageDone    = progress.StageDone
)

// Re-export option functions
var (
	WithEnvelopeWidth            = ports.WithEnvelopeWidth
	WithPreviewSampleRate        = ports.WithPreviewSampleRate
	WithPreviewLimit             = ports.WithPreviewLimit
	WithMaxConcurrentExtractions = ports.WithMaxConcurrentExtractions
	WithAudioBitrate             = ports.WithAudioBitrate
	WithAudioCodec               = ports.WithAudioCodec
	WithVideoCRF                 = ports.WithVideoCRF
	WithVideoPreset              = ports.WithVideoPreset
)

// Config holds top-level configuration for the mixer
type Config struct {
	// FFmpegPath is the path to the ffmpeg binary. When empty it falls
	// back to $TRACKMIX_FFMPEG, then the three-tier search (bundled
	// resource dir, working dir, system PATH).
	FFmpegPath string

	// FFprobePath is the ffprobe equivalent ($TRACKMIX_FFPROBE).
	FFprobePath string

	// ResourceDir holds bundled binaries ($TRACKMIX_RESOURCE_DIR).
	ResourceDir string

	// TempDir is the root for per-session temp dirs ($TRACKMIX_TEMP).
	TempDir string

	// Logger is an optional custom logger. Uses production zap if nil.
	Logger *logger.Logger

	// ZapLogger allows passing a *zap.Logger directly
	ZapLogger *zap.Logger

	// ProgressCh is an optional channel for receiving progress updates
	ProgressCh chan<- ProgressUpdate

	// Playback creates one audition output per track. A silent handle
	// is used when nil.
	Playback ports.PlaybackFactory

	// Preview tunes extraction and envelope building
	Preview []ports.Option

	// Export tunes the composed export command
	Export []ports.ExportOption
}

// Mixer is the main entry point
type Mixer struct {
	service *usecase.MixerService
	log     *logger.Logger
}

// New creates a new Mixer with the given configuration
func New(cfg Config) (*Mixer, error) {
	log := cfg.Logger
	if log == nil && cfg.ZapLogger != nil {
		log = logger.FromZap(cfg.ZapLogger)
	}
	if log == nil {
		var err error
		log, err = logger.New(false)
		if err != nil {
			return nil, err
		}
	}

	engine, err := ffmpeg.NewExecutor(ffmpeg.ExecutorConfig{
		FFmpegPath:  envStr(cfg.FFmpegPath, "TRACKMIX_FFMPEG"),
		FFprobePath: envStr(cfg.FFprobePath, "TRACKMIX_FFPROBE"),
		ResourceDir: cfg.ResourceDir,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	store := storage.NewLocalStorage()

	var reporter progress.Reporter = progress.NoopReporter{}
	if cfg.ProgressCh != nil {
		reporter = progress.NewChannelReporter(cfg.ProgressCh)
	}

	previewOpts := model.DefaultPreviewOptions()
	for _, o := range cfg.Preview {
		o(previewOpts)
	}

	svc, err := usecase.NewMixerService(usecase.Config{
		Engine:   engine,
		Storage:  store,
		Playback: cfg.Playback,
		Reporter: reporter,
		Logger:   log,
		TempRoot: envStr(cfg.TempDir, "TRACKMIX_TEMP"),
		Preview:  previewOpts,
		Export:   cfg.Export,
	})
	if err != nil {
		return nil, err
	}

	return &Mixer{
		service: svc,
		log:     log,
	}, nil
}

// Load probes a video and starts per-track preview extraction
func (m *Mixer) Load(ctx context.Context, path string) (*Session, error) {
	return m.service.Load(ctx, path)
}

// Events is the worker completion stream; feed each event to Apply on
// the interactive goroutine.
func (m *Mixer) Events() <-chan Event { return m.service.Events() }

// Apply dispatches one worker event onto the owned state
func (m *Mixer) Apply(ev Event) { m.service.Apply(ev) }

// Transport exposes the master transport synchronizer
func (m *Mixer) Transport() *preview.Transport { return m.service.Transport() }

// Session returns the current media session, or nil
func (m *Mixer) Session() *Session { return m.service.Session() }

// Export snapshots selection, gains, and trim into a job and runs it
func (m *Mixer) Export(outputPath string, precise bool) (*ExportJob, error) {
	return m.service.Export(outputPath, precise)
}

// CancelExport terminates the in-flight export, if any
func (m *Mixer) CancelExport() { m.service.CancelExport() }

// CloseMedia closes the current session and releases its temp files
func (m *Mixer) CloseMedia(ctx context.Context) { m.service.Close(ctx) }

// Close shuts the service down and flushes the logger
func (m *Mixer) Close(ctx context.Context) {
	m.service.Shutdown(ctx)
	_ = m.log.Sync()
}

func envStr(explicit, key string) string {
	if explicit != "" {
		return explicit
	}
	return os.Getenv(key)
}
