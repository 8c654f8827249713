package preview

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/avlab/trackmix/domain/model"
	"github.com/avlab/trackmix/domain/ports"
	pkgerrors "github.com/avlab/trackmix/pkg/errors"
	"github.com/avlab/trackmix/pkg/logger"
	"go.uber.org/zap"
)

// ExtractionResult is the single immutable message an extraction worker
// posts on completion. Results are routed by TrackIndex, never by
// submission order; Generation lets stale completions from a replaced
// media session be dropped before they touch any track.
type ExtractionResult struct {
	Generation uint64
	TrackIndex int
	Path       string
	Err        error
}

// Scheduler issues one asynchronous preview extraction per track. The
// engine decodes each track to mono PCM at a reduced sample rate into a
// per-track temp file; blocking on the external process is confined to
// the worker goroutines.
type Scheduler struct {
	engine ports.MediaEngine
	log    *logger.Logger
}

// NewScheduler creates an extraction scheduler.
func NewScheduler(engine ports.MediaEngine, log *logger.Logger) *Scheduler {
	return &Scheduler{
		engine: engine,
		log:    log.Named("extract"),
	}
}

// Run schedules one extraction per stream and returns a channel carrying
// their results. The channel is closed when every extraction has finished
// or the context is canceled. Concurrent engine processes are bounded by
// opts.MaxConcurrent; completions may arrive in any order.
func (s *Scheduler) Run(ctx context.Context, generation uint64, inputPath, tempDir string, streams []model.StreamInfo, opts *model.PreviewOptions) <-chan ExtractionResult {
	if opts == nil {
		opts = model.DefaultPreviewOptions()
	}

	results := make(chan ExtractionResult, len(streams))

	go func() {
		defer close(results)

		workers := opts.MaxConcurrent
		if workers <= 0 {
			workers = 4
		}
		semaphore := make(chan struct{}, workers)

		var wg sync.WaitGroup
		for _, stream := range streams {
			select {
			case <-ctx.Done():
				results <- ExtractionResult{
					Generation: generation,
					TrackIndex: stream.Index,
					Err:        pkgerrors.NewExtractionError(stream.Index, "extraction canceled", ctx.Err()),
				}
				continue
			case semaphore <- struct{}{}:
			}

			wg.Add(1)
			go func(st model.StreamInfo) {
				defer wg.Done()
				defer func() { <-semaphore }()

				outPath := filepath.Join(tempDir, fmt.Sprintf("track_%d.wav", st.Index))
				err := s.extract(ctx, inputPath, st.Index, outPath, opts)
				if err != nil {
					s.log.Warn("track extraction failed",
						zap.Int("track", st.Index),
						zap.Error(err),
					)
				}
				results <- ExtractionResult{
					Generation: generation,
					TrackIndex: st.Index,
					Path:       outPath,
					Err:        err,
				}
			}(stream)
		}

		wg.Wait()
	}()

	return results
}

// extract decodes one audio stream to a mono low-rate WAV temp file. The
// reduced sample rate keeps the temp file and the decoded preview buffer
// small; the envelope drawn from it is correspondingly coarse.
func (s *Scheduler) extract(ctx context.Context, inputPath string, trackIndex int, outPath string, opts *model.PreviewOptions) error {
	args := []string{
		"-y",
		"-i", inputPath,
		"-map", fmt.Sprintf("0:a:%d", trackIndex),
	}
	if opts.LimitSeconds > 0 {
		args = append(args, "-t", strconv.Itoa(opts.LimitSeconds))
	}
	args = append(args,
		"-ac", "1",
		"-ar", strconv.Itoa(opts.SampleRate),
		"-f", "wav",
		outPath,
	)

	if err := s.engine.Execute(ctx, args); err != nil {
		return pkgerrors.NewExtractionError(trackIndex, "preview extraction failed", err)
	}
	return nil
}
