package export

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/avlab/trackmix/domain/model"
	"github.com/avlab/trackmix/domain/ports"
	"github.com/avlab/trackmix/infrastructure/ffmpeg"
	pkgerrors "github.com/avlab/trackmix/pkg/errors"
	"github.com/avlab/trackmix/pkg/logger"
	"github.com/avlab/trackmix/pkg/progress"
	"github.com/avlab/trackmix/pkg/timecode"
	"go.uber.org/zap"
)

// Composer translates selected tracks, gains, and trim points into one
// deterministic media-engine invocation and turns the engine's textual
// progress stream into a 0-100 percentage. At most one job runs at a
// time; a second Run while one is in flight is rejected.
type Composer struct {
	engine   ports.MediaEngine
	reporter progress.Reporter
	opts     *model.ExportOptions
	log      *logger.Logger
	running  atomic.Bool
}

// NewComposer creates an export composer with the fixed encode defaults
// (AAC 192k, libx264 crf 18 for precise cuts) unless overridden.
func NewComposer(engine ports.MediaEngine, reporter progress.Reporter, log *logger.Logger, opts ...ports.ExportOption) *Composer {
	options := model.DefaultExportOptions()
	for _, o := range opts {
		o(options)
	}
	if reporter == nil {
		reporter = progress.NoopReporter{}
	}
	return &Composer{
		engine:   engine,
		reporter: reporter,
		opts:     options,
		log:      log.Named("export"),
	}
}

// BuildArgs composes the engine argument list for a job. Precondition
// violations are rejected here, before any process is spawned.
//
// Video is stream-copied by default; a precise cut re-encodes so trim
// boundaries need not land on keyframes. Audio runs each selected track
// through a gain filter, mixes the labeled streams, normalizes the mix,
// and encodes it at the fixed target.
func (c *Composer) BuildArgs(job *model.ExportJob) ([]string, error) {
	if len(job.Tracks) == 0 {
		return nil, pkgerrors.NewValidationError("tracks", 0, "no active tracks selected")
	}
	if job.StartMS >= job.EndMS {
		return nil, pkgerrors.NewValidationError("trim", job.EndMS-job.StartMS, "trim range is empty or inverted")
	}
	if job.InputPath == "" {
		return nil, pkgerrors.NewValidationError("inputPath", "", "input path must not be empty")
	}
	if job.OutputPath == "" {
		return nil, pkgerrors.NewValidationError("outputPath", "", "output path must not be empty")
	}

	args := []string{
		"-y",
		"-ss", timecode.FormatMS(job.StartMS),
		"-to", timecode.FormatMS(job.EndMS),
		"-i", job.InputPath,
	}

	if job.PreciseCut {
		args = append(args,
			"-map", "0:v",
			"-c:v", c.opts.VideoCodec,
			"-crf", strconv.Itoa(c.opts.VideoCRF),
			"-preset", c.opts.VideoPreset,
		)
	} else {
		args = append(args, "-map", "0:v", "-c:v", "copy")
	}

	fb := ffmpeg.NewMixFilterBuilder()
	for _, tm := range job.Tracks {
		fb.AddTrack(tm.Index, tm.GainDB)
	}

	args = append(args,
		"-filter_complex", fb.Build(),
		"-map", fb.OutputLabel(),
		"-c:a", c.opts.AudioCodec,
		"-b:a", c.opts.AudioBitrate,
		job.OutputPath,
	)

	return args, nil
}

// Run executes the job, streaming progress through the reporter. The
// percentage is clamped to 99 until the process has actually exited
// cleanly, so the indicator never claims completion early. Unparseable
// progress lines are ignored. Cancellation kills the process and the job
// is reported failed; no partial output is promised either way.
func (c *Composer) Run(ctx context.Context, job *model.ExportJob) error {
	if !c.running.CompareAndSwap(false, true) {
		return pkgerrors.NewValidationError("job", job.ID, "an export is already in flight")
	}
	defer c.running.Store(false)

	args, err := c.BuildArgs(job)
	if err != nil {
		return err
	}

	c.log.Info("starting export",
		zap.String("job_id", job.ID),
		zap.String("output", job.OutputPath),
		zap.Int("tracks", len(job.Tracks)),
		zap.Bool("precise_cut", job.PreciseCut),
	)

	c.report(job.ID, progress.StageCompose, 0, "command composed")

	totalSec := float64(job.SelectedDurationMS()) / 1000.0
	err = c.engine.ExecuteProgress(ctx, args, func(line string) {
		sec, ok := timecode.ExtractProgressSeconds(line)
		if !ok || totalSec <= 0 {
			return
		}
		percent := sec / totalSec * 100.0
		if percent > 99 {
			percent = 99
		}
		c.report(job.ID, progress.StageEncode, percent, "encoding")
	})
	if err != nil {
		c.log.Error("export failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		return pkgerrors.NewExportError(job.ID, "export failed", err)
	}

	c.report(job.ID, progress.StageDone, 100, "export complete")
	c.log.Info("export complete", zap.String("job_id", job.ID))
	return nil
}

// Running reports whether a job is currently in flight.
func (c *Composer) Running() bool {
	return c.running.Load()
}

func (c *Composer) report(jobID string, stage progress.Stage, percent float64, msg string) {
	c.reporter.Report(progress.Update{
		JobID:      jobID,
		TrackIndex: -1,
		Stage:      stage,
		Percent:    percent,
		Message:    msg,
		Timestamp:  time.Now(),
	})
}
