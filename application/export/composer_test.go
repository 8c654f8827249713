package export

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/avlab/trackmix/domain/model"
	"github.com/avlab/trackmix/internal/mocks"
	pkgerrors "github.com/avlab/trackmix/pkg/errors"
	"github.com/avlab/trackmix/pkg/logger"
	"github.com/avlab/trackmix/pkg/progress"
)

// recordingReporter keeps every update for assertions.
type recordingReporter struct {
	mu      sync.Mutex
	updates []progress.Update
}

func (r *recordingReporter) Report(u progress.Update) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
}

func (r *recordingReporter) snapshot() []progress.Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Update, len(r.updates))
	copy(out, r.updates)
	return out
}

func baseJob() *model.ExportJob {
	return &model.ExportJob{
		ID:         "job-1",
		Tracks:     []model.TrackMix{{Index: 0, GainDB: 0}, {Index: 1, GainDB: 0}},
		StartMS:    0,
		EndMS:      10_000,
		InputPath:  "/video/in.mkv",
		OutputPath: "/video/out.mp4",
	}
}

func TestBuildArgsDefaultMix(t *testing.T) {
	c := NewComposer(&mocks.MockMediaEngine{}, nil, logger.Nop())

	args, err := c.BuildArgs(baseJob())
	if err != nil {
		t.Fatalf("BuildArgs: %v", err)
	}

	want := []string{
		"-y",
		"-ss", "00:00:00.00",
		"-to", "00:00:10.00",
		"-i", "/video/in.mkv",
		"-map", "0:v",
		"-c:v", "copy",
		"-filter_complex",
		"[0:a:0]volume=0dB[a0];[0:a:1]volume=0dB[a1];[a0][a1]amix=inputs=2[outa];[outa]dynaudnorm[a_final]",
		"-map", "[a_final]",
		"-c:a", "aac",
		"-b:a", "192k",
		"/video/out.mp4",
	}
	if len(args) != len(want) {
		t.Fatalf("args len = %d, want %d\ngot:  %v\nwant: %v", len(args), len(want), args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestBuildArgsSingleTrackWithGain(t *testing.T) {
	c := NewComposer(&mocks.MockMediaEngine{}, nil, logger.Nop())

	job := baseJob()
	job.Tracks = []model.TrackMix{{Index: 0, GainDB: -6}}

	args, err := c.BuildArgs(job)
	if err != nil {
		t.Fatalf("BuildArgs: %v", err)
	}

	joined := strings.Join(args, " ")
	wantFilter := "[0:a:0]volume=-6dB[a0];[a0]amix=inputs=1[outa];[outa]dynaudnorm[a_final]"
	if !strings.Contains(joined, wantFilter) {
		t.Errorf("filter graph missing\ngot args: %s\nwant filter: %s", joined, wantFilter)
	}
	if strings.Contains(joined, "0:a:1") {
		t.Error("deactivated track leaked into the command")
	}
}

func TestBuildArgsTrim(t *testing.T) {
	c := NewComposer(&mocks.MockMediaEngine{}, nil, logger.Nop())

	job := baseJob()
	job.StartMS = 2000
	job.EndMS = 8000

	args, err := c.BuildArgs(job)
	if err != nil {
		t.Fatalf("BuildArgs: %v", err)
	}

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-ss 00:00:02.00") || !strings.Contains(joined, "-to 00:00:08.00") {
		t.Errorf("trim window not encoded: %s", joined)
	}
}

func TestBuildArgsPreciseCut(t *testing.T) {
	c := NewComposer(&mocks.MockMediaEngine{}, nil, logger.Nop())

	job := baseJob()
	job.PreciseCut = true

	args, err := c.BuildArgs(job)
	if err != nil {
		t.Fatalf("BuildArgs: %v", err)
	}

	joined := strings.Join(args, " ")
	for _, want := range []string{"-c:v libx264", "-crf 18", "-preset fast"} {
		if !strings.Contains(joined, want) {
			t.Errorf("precise cut args missing %q: %s", want, joined)
		}
	}
	if strings.Contains(joined, "-c:v copy") {
		t.Error("precise cut must not stream-copy video")
	}
}

func TestBuildArgsRejections(t *testing.T) {
	c := NewComposer(&mocks.MockMediaEngine{}, nil, logger.Nop())

	tests := []struct {
		name   string
		mutate func(*model.ExportJob)
	}{
		{"no tracks", func(j *model.ExportJob) { j.Tracks = nil }},
		{"empty trim", func(j *model.ExportJob) { j.StartMS, j.EndMS = 5000, 5000 }},
		{"inverted trim", func(j *model.ExportJob) { j.StartMS, j.EndMS = 8000, 2000 }},
		{"no input", func(j *model.ExportJob) { j.InputPath = "" }},
		{"no output", func(j *model.ExportJob) { j.OutputPath = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := baseJob()
			tt.mutate(job)
			_, err := c.BuildArgs(job)
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verr *pkgerrors.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err %T, want *ValidationError", err)
			}
		})
	}
}

func TestRunProgressClampedUntilExit(t *testing.T) {
	// The engine reports past the selected duration before exiting;
	// observed percentages must stay at 99 until the clean exit, which
	// alone emits 100.
	engine := &mocks.MockMediaEngine{
		ExecuteProgressFunc: func(_ context.Context, _ []string, fn func(string)) error {
			fn("frame=  100 fps=25 time=00:00:03.00 bitrate=1000k")
			fn("frame=  200 fps=25 time=00:00:06.00 bitrate=1000k")
			fn("something unparseable")
			fn("frame=  400 fps=25 time=00:00:12.50 bitrate=1000k")
			return nil
		},
	}
	rep := &recordingReporter{}
	c := NewComposer(engine, rep, logger.Nop())

	if err := c.Run(context.Background(), baseJob()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var encodes []float64
	var sawDone bool
	for _, u := range rep.snapshot() {
		switch u.Stage {
		case progress.StageEncode:
			encodes = append(encodes, u.Percent)
		case progress.StageDone:
			sawDone = true
			if u.Percent != 100 {
				t.Errorf("done percent = %v, want 100", u.Percent)
			}
		}
	}

	if len(encodes) != 3 {
		t.Fatalf("got %d encode updates, want 3 (unparseable line ignored): %v", len(encodes), encodes)
	}
	if encodes[0] != 30 || encodes[1] != 60 {
		t.Errorf("early percentages = %v, want [30 60 ...]", encodes)
	}
	if encodes[2] != 99 {
		t.Errorf("overshoot percent = %v, want clamp at 99", encodes[2])
	}
	if !sawDone {
		t.Error("no done update after clean exit")
	}
}

func TestRunFailureWrapsExportError(t *testing.T) {
	engine := &mocks.MockMediaEngine{
		ExecuteProgressFunc: func(_ context.Context, _ []string, _ func(string)) error {
			return errors.New("muxer rejected the stream")
		},
	}
	c := NewComposer(engine, nil, logger.Nop())

	err := c.Run(context.Background(), baseJob())
	if err == nil {
		t.Fatal("expected failure")
	}
	var expErr *pkgerrors.ExportError
	if !errors.As(err, &expErr) {
		t.Fatalf("err %T, want *ExportError", err)
	}
	if expErr.JobID != "job-1" {
		t.Errorf("JobID = %q, want job-1", expErr.JobID)
	}
}

func TestRunCanceled(t *testing.T) {
	engine := &mocks.MockMediaEngine{
		ExecuteProgressFunc: func(ctx context.Context, _ []string, _ func(string)) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	c := NewComposer(engine, nil, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Run(ctx, baseJob()); err == nil {
		t.Fatal("canceled export must report an error")
	}
	if c.Running() {
		t.Error("composer still marked running after cancellation")
	}
}

func TestRunSingleFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	engine := &mocks.MockMediaEngine{
		ExecuteProgressFunc: func(_ context.Context, _ []string, _ func(string)) error {
			close(started)
			<-release
			return nil
		},
	}
	c := NewComposer(engine, nil, logger.Nop())

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(context.Background(), baseJob()) }()
	<-started

	second := baseJob()
	second.ID = "job-2"
	if err := c.Run(context.Background(), second); err == nil {
		t.Error("second concurrent export must be rejected")
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Errorf("first export failed: %v", err)
	}
}

func TestRunValidationFailureReleasesSlot(t *testing.T) {
	c := NewComposer(&mocks.MockMediaEngine{}, nil, logger.Nop())

	bad := baseJob()
	bad.Tracks = nil
	if err := c.Run(context.Background(), bad); err == nil {
		t.Fatal("expected validation failure")
	}
	if c.Running() {
		t.Error("running flag stuck after rejected job")
	}

	if err := c.Run(context.Background(), baseJob()); err != nil {
		t.Errorf("follow-up export rejected: %v", err)
	}
}
