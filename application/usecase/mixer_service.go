package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avlab/trackmix/application/export"
	"github.com/avlab/trackmix/application/preview"
	"github.com/avlab/trackmix/domain/model"
	"github.com/avlab/trackmix/domain/ports"
	pkgerrors "github.com/avlab/trackmix/pkg/errors"
	"github.com/avlab/trackmix/pkg/logger"
	"github.com/avlab/trackmix/pkg/progress"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is the explicit per-media context: probed info, the track
// controllers, the temp directory owning the extraction buffers, and the
// generation stamp that invalidates stale worker completions after the
// media is closed or replaced.
type Session struct {
	ID         string
	Info       *model.MediaInfo
	Generation uint64
	TempDir    string

	tracks []*preview.TrackController
	cancel context.CancelFunc
}

// Tracks returns the session's track controllers in stream order.
func (s *Session) Tracks() []*preview.TrackController { return s.tracks }

// Track returns the controller for an audio stream ordinal, or nil.
func (s *Session) Track(index int) *preview.TrackController {
	for _, tc := range s.tracks {
		if tc.Track().Index == index {
			return tc
		}
	}
	return nil
}

// Config holds MixerService configuration
type Config struct {
	Engine   ports.MediaEngine
	Storage  ports.StorageProvider
	Playback ports.PlaybackFactory
	Reporter progress.Reporter
	Logger   *logger.Logger

	// TempRoot is where per-session temp directories are created.
	TempRoot string

	Preview *model.PreviewOptions
	Export  []ports.ExportOption
}

// MixerService orchestrates the preview pipeline and export for one media
// session at a time. All state mutation happens through Apply on the
// caller's interactive goroutine; background workers only post events.
type MixerService struct {
	engine    ports.MediaEngine
	storage   ports.StorageProvider
	playback  ports.PlaybackFactory
	reporter  progress.Reporter
	log       *logger.Logger
	tempRoot  string
	preview   *model.PreviewOptions
	scheduler *preview.Scheduler
	transport *preview.Transport
	composer  *export.Composer

	events chan Event
	done   chan struct{}
	once   sync.Once

	// Owned by the interactive goroutine.
	session      *Session
	generation   uint64
	currentJob   *model.ExportJob
	exportCancel context.CancelFunc
}

// NewMixerService creates a new MixerService
func NewMixerService(cfg Config) (*MixerService, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("MediaEngine is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("StorageProvider is required")
	}

	log := cfg.Logger
	if log == nil {
		var err error
		log, err = logger.New(false)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	reporter := cfg.Reporter
	if reporter == nil {
		reporter = progress.NoopReporter{}
	}

	playback := cfg.Playback
	if playback == nil {
		playback = ports.PlaybackFactoryFunc(func() ports.PlaybackHandle {
			return preview.NewNullPlayback()
		})
	}

	previewOpts := cfg.Preview
	if previewOpts == nil {
		previewOpts = model.DefaultPreviewOptions()
	}

	events := make(chan Event, 64)

	s := &MixerService{
		engine:    cfg.Engine,
		storage:   cfg.Storage,
		playback:  playback,
		reporter:  reporter,
		log:       log,
		tempRoot:  cfg.TempRoot,
		preview:   previewOpts,
		scheduler: preview.NewScheduler(cfg.Engine, log),
		transport: preview.NewTransport(log),
		events:    events,
		done:      make(chan struct{}),
	}

	// Export progress flows through the caller's reporter and, in
	// parallel, back onto the event channel for the dispatch loop.
	composerReporter := progress.NewMultiReporter(reporter, &eventReporter{service: s})
	s.composer = export.NewComposer(cfg.Engine, composerReporter, log, cfg.Export...)

	return s, nil
}

// Events is the stream of worker completion messages. The owner consumes
// it on the interactive goroutine and feeds each event to Apply.
func (s *MixerService) Events() <-chan Event { return s.events }

// Transport exposes the master transport synchronizer.
func (s *MixerService) Transport() *preview.Transport { return s.transport }

// Session returns the current media session, or nil.
func (s *MixerService) Session() *Session { return s.session }

// ExportInFlight reports whether an export job is currently running.
func (s *MixerService) ExportInFlight() bool { return s.currentJob != nil }

// Load probes a media file, builds one track controller per audio stream,
// and starts background extraction and the keyframe scan. A previously
// loaded session is closed first. Probe failure resets to the no-media
// state and is surfaced to the caller.
func (s *MixerService) Load(ctx context.Context, path string) (*Session, error) {
	if s.session != nil {
		s.Close(ctx)
	}

	raw, err := s.engine.Probe(ctx, path)
	if err != nil {
		return nil, pkgerrors.NewProbeError(path, "stream probe failed", err)
	}
	info, err := ParseProbe(raw, path)
	if err != nil {
		return nil, pkgerrors.NewProbeError(path, "unreadable probe output", err)
	}
	if len(info.AudioStreams) == 0 {
		return nil, pkgerrors.NewProbeError(path, "no audio streams in container", nil)
	}

	tempDir, err := s.storage.TempDir(ctx, s.tempRoot, "trackmix-")
	if err != nil {
		return nil, pkgerrors.NewProbeError(path, "failed to create session temp dir", err)
	}

	s.generation++
	generation := s.generation

	tracks := make([]*preview.TrackController, 0, len(info.AudioStreams))
	for _, stream := range info.AudioStreams {
		tracks = append(tracks, preview.NewTrackController(stream, s.playback.NewPlayback(), s.preview.EnvelopeWidth, s.log))
	}

	// Workers outlive the Load call; their lifetime is the session's,
	// not the probing context's.
	sessionCtx, cancel := context.WithCancel(context.Background())

	s.session = &Session{
		ID:         uuid.NewString(),
		Info:       info,
		Generation: generation,
		TempDir:    tempDir,
		tracks:     tracks,
		cancel:     cancel,
	}

	s.transport.Load(info, tracks)

	s.log.Info("media loaded",
		zap.String("path", path),
		zap.Int("audio_streams", len(info.AudioStreams)),
		zap.Int64("duration_ms", info.DurationMS),
		zap.Float64("fps", info.FPS),
	)
	s.report("", -1, progress.StageProbe, 100, "probe complete")

	results := s.scheduler.Run(sessionCtx, generation, path, tempDir, info.AudioStreams, s.preview)
	go func() {
		for r := range results {
			s.post(ExtractionReady{
				Generation: r.Generation,
				TrackIndex: r.TrackIndex,
				Path:       r.Path,
				Err:        r.Err,
			})
		}
	}()

	go func() {
		kfs, err := s.engine.ProbeKeyframes(sessionCtx, path)
		if err != nil {
			// Keyframe proximity is display-only; losing it is not an error.
			s.log.Warn("keyframe scan failed", zap.Error(err))
			return
		}
		s.post(KeyframesReady{Generation: generation, Timestamps: kfs})
	}()

	return s.session, nil
}

// Apply dispatches one worker event. Must be called on the same
// goroutine that calls Load, Export, and the transport methods; that
// single-writer discipline is what keeps track state lock-free.
func (s *MixerService) Apply(ev Event) {
	switch e := ev.(type) {
	case ExtractionReady:
		if s.session == nil || e.Generation != s.generation {
			s.log.Debug("dropping stale extraction result",
				zap.Uint64("generation", e.Generation),
				zap.Int("track", e.TrackIndex),
			)
			return
		}
		tc := s.session.Track(e.TrackIndex)
		if tc == nil {
			return
		}
		if e.Err != nil {
			tc.MarkFailed(e.Err)
			return
		}
		if err := tc.OnExtractionReady(e.Path); err != nil {
			return
		}
		// Snap the freshly loaded track onto the master clock.
		st := s.transport.State()
		tc.ForceSeek(st.PositionMS)
		tc.SyncTo(st.PositionMS, st.State == model.StatePlaying)
		s.report("", e.TrackIndex, progress.StageExtract, 100, "track preview ready")

	case KeyframesReady:
		if s.session == nil || e.Generation != s.generation {
			return
		}
		s.transport.SetKeyframes(e.Timestamps)

	case ExportProgressed:
		// Informational; state is read back via reporter updates.

	case ExportFinished:
		if s.currentJob == nil || s.currentJob.ID != e.JobID {
			return
		}
		s.currentJob = nil
		s.exportCancel = nil
		if e.Err != nil {
			s.log.Error("export job failed", zap.String("job_id", e.JobID), zap.Error(e.Err))
		}
	}
}

// Export snapshots the current selection, gains, and trim range into a
// job and runs it on a worker goroutine. Rejected before the engine is
// invoked when no media is loaded, a job is already in flight, no track
// is active, or the trim range is empty.
func (s *MixerService) Export(outputPath string, precise bool) (*model.ExportJob, error) {
	if s.session == nil {
		return nil, pkgerrors.NewValidationError("session", nil, "no media loaded")
	}
	if s.currentJob != nil {
		return nil, pkgerrors.NewValidationError("job", s.currentJob.ID, "an export is already in flight")
	}

	var selected []model.TrackMix
	for _, tc := range s.session.tracks {
		t := tc.Track()
		if t.Active {
			selected = append(selected, model.TrackMix{Index: t.Index, GainDB: t.GainDB})
		}
	}
	if len(selected) == 0 {
		return nil, pkgerrors.NewValidationError("tracks", 0, "no active tracks selected")
	}

	st := s.transport.State()
	if st.InPointMS >= st.OutPointMS {
		return nil, pkgerrors.NewValidationError("trim", st.OutPointMS-st.InPointMS, "trim range is empty")
	}

	job := &model.ExportJob{
		ID:         uuid.NewString(),
		Tracks:     selected,
		StartMS:    st.InPointMS,
		EndMS:      st.OutPointMS,
		PreciseCut: precise,
		InputPath:  s.session.Info.Path,
		OutputPath: outputPath,
	}

	s.transport.Pause()

	exportCtx, cancel := context.WithCancel(context.Background())
	s.currentJob = job
	s.exportCancel = cancel

	go func() {
		err := s.composer.Run(exportCtx, job)
		s.post(ExportFinished{JobID: job.ID, Err: err})
	}()

	return job, nil
}

// CancelExport terminates the in-flight export process, if any. The job
// is reported failed; partial output files are not trustworthy.
func (s *MixerService) CancelExport() {
	if s.exportCancel != nil {
		s.exportCancel()
	}
}

// Close tears the current session down: in-flight extractions are
// invalidated by the generation bump and their processes canceled, tracks
// stop, and the temp directory is removed best-effort.
func (s *MixerService) Close(ctx context.Context) {
	if s.session == nil {
		return
	}

	s.generation++
	s.session.cancel()
	s.transport.Unload()

	if err := s.storage.RemoveAll(ctx, s.session.TempDir); err != nil {
		// Best-effort cleanup, never surfaced.
		s.log.Debug("temp dir cleanup failed", zap.Error(err))
	}

	s.log.Info("media session closed", zap.String("session", s.session.ID))
	s.session = nil
}

// Shutdown releases the service. Pending workers stop posting; the
// events channel is left open so a draining consumer never panics.
func (s *MixerService) Shutdown(ctx context.Context) {
	s.CancelExport()
	s.Close(ctx)
	s.once.Do(func() { close(s.done) })
}

// post delivers a worker event unless the service has shut down.
func (s *MixerService) post(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *MixerService) report(jobID string, trackIndex int, stage progress.Stage, percent float64, msg string) {
	s.reporter.Report(progress.Update{
		JobID:      jobID,
		TrackIndex: trackIndex,
		Stage:      stage,
		Percent:    percent,
		Message:    msg,
		Timestamp:  time.Now(),
	})
}

// eventReporter mirrors export progress updates onto the event channel.
type eventReporter struct {
	service *MixerService
}

func (r *eventReporter) Report(u progress.Update) {
	if u.Stage != progress.StageEncode && u.Stage != progress.StageDone {
		return
	}
	select {
	case r.service.events <- ExportProgressed{JobID: u.JobID, Percent: u.Percent}:
	default: // progress is best-effort; drop when the consumer lags
	}
}
