package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/avlab/trackmix/domain/model"
	"github.com/avlab/trackmix/domain/ports"
	"github.com/avlab/trackmix/internal/mocks"
	pkgerrors "github.com/avlab/trackmix/pkg/errors"
	"github.com/avlab/trackmix/pkg/logger"
)

// fakeFactory hands out FakePlayback handles and keeps them for
// inspection, one per track in creation order.
type fakeFactory struct {
	handles []*mocks.FakePlayback
}

func (f *fakeFactory) NewPlayback() ports.PlaybackHandle {
	p := &mocks.FakePlayback{}
	f.handles = append(f.handles, p)
	return p
}

func writeWAV(t *testing.T, path string, samples []int, rate int) {
	t.Helper()
	if err := encodeWAV(path, samples, rate); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// extractingEngine writes a small real WAV wherever an extraction
// command points its output, so the full pipeline runs against actual
// preview buffers. Runs on worker goroutines, so it returns errors
// instead of failing the test directly.
func extractingEngine(t *testing.T) *mocks.MockMediaEngine {
	t.Helper()
	return &mocks.MockMediaEngine{
		ExecuteFunc: func(_ context.Context, args []string) error {
			rate := 8000
			for i, a := range args {
				if a == "-ar" && i+1 < len(args) {
					if v, err := strconv.Atoi(args[i+1]); err == nil {
						rate = v
					}
				}
			}
			samples := make([]int, rate/5)
			for i := range samples {
				samples[i] = 8192
			}
			return encodeWAV(args[len(args)-1], samples, rate)
		},
	}
}

func encodeWAV(path string, samples []int, rate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

func newTestService(t *testing.T, engine *mocks.MockMediaEngine) (*MixerService, *fakeFactory) {
	t.Helper()
	factory := &fakeFactory{}
	storage := &mocks.MockStorage{
		TempDirFunc: func(_ context.Context, _, _ string) (string, error) {
			return t.TempDir(), nil
		},
	}
	svc, err := NewMixerService(Config{
		Engine:   engine,
		Storage:  storage,
		Playback: factory,
		Logger:   logger.Nop(),
	})
	if err != nil {
		t.Fatalf("NewMixerService: %v", err)
	}
	return svc, factory
}

func nextEvent(t *testing.T, svc *MixerService) Event {
	t.Helper()
	select {
	case ev := <-svc.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// settle drains and applies events until every track is ready and the
// keyframe scan has landed.
func settle(t *testing.T, svc *MixerService) {
	t.Helper()
	session := svc.Session()
	deadline := time.After(5 * time.Second)
	for {
		ready := len(session.Tracks()) > 0
		for _, tc := range session.Tracks() {
			if !tc.Ready() {
				ready = false
			}
		}
		if ready && svc.Transport().State().NearestKeyframeMS >= 0 {
			return
		}
		select {
		case ev := <-svc.Events():
			svc.Apply(ev)
		case <-deadline:
			t.Fatal("pipeline did not settle")
		}
	}
}

func TestLoadBuildsSession(t *testing.T) {
	svc, factory := newTestService(t, extractingEngine(t))
	defer svc.Shutdown(context.Background())

	session, err := svc.Load(context.Background(), "/video/in.mkv")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := len(session.Tracks()); got != 2 {
		t.Fatalf("tracks = %d, want 2", got)
	}
	for _, tc := range session.Tracks() {
		tr := tc.Track()
		if !tr.Active {
			t.Errorf("track %d starts inactive", tr.Index)
		}
		if tr.GainDB != 0 {
			t.Errorf("track %d gain = %v, want 0", tr.Index, tr.GainDB)
		}
		if tc.Ready() {
			t.Errorf("track %d ready before extraction", tr.Index)
		}
	}

	st := svc.Transport().State()
	if st.State != model.StatePlaying {
		t.Errorf("state = %v, want playing on load", st.State)
	}
	if st.OutPointMS != 10_000 || st.InPointMS != 0 {
		t.Errorf("trim = [%d,%d], want [0,10000]", st.InPointMS, st.OutPointMS)
	}
	if st.FPS != 25 {
		t.Errorf("fps = %v, want 25", st.FPS)
	}

	settle(t, svc)

	for i, tc := range session.Tracks() {
		if len(tc.Track().Envelope) == 0 {
			t.Errorf("track %d has empty envelope", i)
		}
		if factory.handles[i].Source == "" {
			t.Errorf("track %d playback has no source", i)
		}
		if !factory.handles[i].Playing {
			t.Errorf("track %d not playing after joining a playing transport", i)
		}
	}
	if svc.Transport().State().NearestKeyframeMS != 0 {
		t.Errorf("nearest keyframe at position 0 = %d, want 0", svc.Transport().State().NearestKeyframeMS)
	}
}

func TestLoadRejectsNoAudio(t *testing.T) {
	engine := &mocks.MockMediaEngine{
		ProbeFunc: func(_ context.Context, _ string) ([]byte, error) {
			return []byte(`{"format":{"duration":"5"},"streams":[{"codec_type":"video","r_frame_rate":"25/1"}]}`), nil
		},
	}
	svc, _ := newTestService(t, engine)
	defer svc.Shutdown(context.Background())

	_, err := svc.Load(context.Background(), "/video/silent.mkv")
	if err == nil {
		t.Fatal("expected rejection for audio-less container")
	}
	var perr *pkgerrors.ProbeError
	if !errors.As(err, &perr) {
		t.Fatalf("err %T, want *ProbeError", err)
	}
	if svc.Session() != nil {
		t.Error("session must stay nil after a rejected load")
	}
}

func TestLoadProbeFailure(t *testing.T) {
	engine := &mocks.MockMediaEngine{
		ProbeFunc: func(_ context.Context, _ string) ([]byte, error) {
			return nil, errors.New("no such file")
		},
	}
	svc, _ := newTestService(t, engine)
	defer svc.Shutdown(context.Background())

	if _, err := svc.Load(context.Background(), "/video/missing.mkv"); err == nil {
		t.Fatal("expected probe failure")
	}
	if svc.Session() != nil {
		t.Error("session must stay nil after a failed probe")
	}
}

func TestStaleExtractionDropped(t *testing.T) {
	svc, _ := newTestService(t, extractingEngine(t))
	defer svc.Shutdown(context.Background())

	first, err := svc.Load(context.Background(), "/video/a.mkv")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	staleGen := first.Generation

	second, err := svc.Load(context.Background(), "/video/b.mkv")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	settle(t, svc)

	// A leftover completion from the replaced session must not touch
	// the new one, even though its track index exists here too.
	wavPath := filepath.Join(second.TempDir, "stale.wav")
	writeWAV(t, wavPath, []int{100, 200, 300}, 8000)
	before := len(second.Track(0).Track().Envelope)

	svc.Apply(ExtractionReady{Generation: staleGen, TrackIndex: 0, Path: wavPath})

	if got := len(second.Track(0).Track().Envelope); got != before {
		t.Errorf("stale extraction replaced the envelope (%d -> %d points)", before, got)
	}
}

func TestExportSnapshotsSelection(t *testing.T) {
	engine := extractingEngine(t)
	svc, _ := newTestService(t, engine)
	defer svc.Shutdown(context.Background())

	if _, err := svc.Load(context.Background(), "/video/in.mkv"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	settle(t, svc)

	session := svc.Session()
	session.Track(0).ApplyGain(-6)
	session.Track(1).SetActive(false)

	tr := svc.Transport()
	tr.Seek(2000)
	tr.SetInPoint()
	tr.Seek(8000)
	tr.SetOutPoint()

	job, err := svc.Export("/video/out.mp4", false)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !svc.ExportInFlight() {
		t.Error("no job in flight after Export")
	}
	if svc.Transport().Playing() {
		t.Error("transport must pause for export")
	}

	for {
		ev := nextEvent(t, svc)
		svc.Apply(ev)
		if fin, ok := ev.(ExportFinished); ok {
			if fin.JobID != job.ID {
				t.Fatalf("finished job %q, want %q", fin.JobID, job.ID)
			}
			if fin.Err != nil {
				t.Fatalf("export failed: %v", fin.Err)
			}
			break
		}
	}
	if svc.ExportInFlight() {
		t.Error("job still in flight after ExportFinished")
	}

	executed := engine.Executed()
	last := strings.Join(executed[len(executed)-1], " ")
	for _, want := range []string{
		"-ss 00:00:02.00",
		"-to 00:00:08.00",
		"-c:v copy",
		"[0:a:0]volume=-6dB[a0];[a0]amix=inputs=1[outa];[outa]dynaudnorm[a_final]",
		"-map [a_final]",
		"/video/out.mp4",
	} {
		if !strings.Contains(last, want) {
			t.Errorf("export command missing %q:\n%s", want, last)
		}
	}
	if strings.Contains(last, "0:a:1") {
		t.Errorf("deactivated track leaked into export command:\n%s", last)
	}
}

func TestExportRejections(t *testing.T) {
	engine := extractingEngine(t)
	release := make(chan struct{})
	engine.ExecuteProgressFunc = func(_ context.Context, _ []string, _ func(string)) error {
		<-release
		return nil
	}
	svc, _ := newTestService(t, engine)
	defer func() {
		close(release)
		svc.Shutdown(context.Background())
	}()

	if _, err := svc.Export("/out.mp4", false); err == nil {
		t.Error("export without media must be rejected")
	}

	if _, err := svc.Load(context.Background(), "/video/in.mkv"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	settle(t, svc)

	for _, tc := range svc.Session().Tracks() {
		tc.SetActive(false)
	}
	if _, err := svc.Export("/out.mp4", false); err == nil {
		t.Error("export with zero active tracks must be rejected")
	}

	svc.Session().Track(0).SetActive(true)
	if _, err := svc.Export("/out.mp4", false); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if _, err := svc.Export("/other.mp4", false); err == nil {
		t.Error("second export while one runs must be rejected")
	}
}

func TestCloseInvalidatesAndCleansUp(t *testing.T) {
	engine := extractingEngine(t)
	storage := &mocks.MockStorage{
		TempDirFunc: func(_ context.Context, _, _ string) (string, error) {
			return t.TempDir(), nil
		},
	}
	factory := &fakeFactory{}
	svc, err := NewMixerService(Config{
		Engine:   engine,
		Storage:  storage,
		Playback: factory,
		Logger:   logger.Nop(),
	})
	if err != nil {
		t.Fatalf("NewMixerService: %v", err)
	}
	defer svc.Shutdown(context.Background())

	session, err := svc.Load(context.Background(), "/video/in.mkv")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	settle(t, svc)
	tempDir := session.TempDir

	svc.Close(context.Background())

	if svc.Session() != nil {
		t.Error("session survives Close")
	}
	if len(storage.Removed) != 1 || storage.Removed[0] != tempDir {
		t.Errorf("removed = %v, want [%s]", storage.Removed, tempDir)
	}
	for i, h := range factory.handles {
		if h.Playing {
			t.Errorf("track %d still playing after Close", i)
		}
	}
}
