package mocks

import (
	"context"
	"encoding/json"
	"sync"
)

// MockMediaEngine is a test double for ports.MediaEngine
type MockMediaEngine struct {
	ExecuteFunc         func(ctx context.Context, args []string) error
	ExecuteProgressFunc func(ctx context.Context, args []string, fn func(line string)) error
	ProbeFunc           func(ctx context.Context, inputPath string) ([]byte, error)
	ProbeKeyframesFunc  func(ctx context.Context, inputPath string) ([]int64, error)

	mu           sync.Mutex
	ExecutedArgs [][]string
}

func (m *MockMediaEngine) record(args []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExecutedArgs = append(m.ExecutedArgs, args)
}

// Executed returns a snapshot of all recorded argument lists.
func (m *MockMediaEngine) Executed() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.ExecutedArgs))
	copy(out, m.ExecutedArgs)
	return out
}

func (m *MockMediaEngine) Execute(ctx context.Context, args []string) error {
	m.record(args)
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, args)
	}
	return nil
}

func (m *MockMediaEngine) ExecuteProgress(ctx context.Context, args []string, fn func(line string)) error {
	m.record(args)
	if m.ExecuteProgressFunc != nil {
		return m.ExecuteProgressFunc(ctx, args, fn)
	}
	return nil
}

func (m *MockMediaEngine) Probe(ctx context.Context, inputPath string) ([]byte, error) {
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx, inputPath)
	}
	return DefaultProbeResponse(), nil
}

func (m *MockMediaEngine) ProbeKeyframes(ctx context.Context, inputPath string) ([]int64, error) {
	if m.ProbeKeyframesFunc != nil {
		return m.ProbeKeyframesFunc(ctx, inputPath)
	}
	return []int64{0, 2000, 4000, 6000, 8000}, nil
}

// DefaultProbeResponse is ffprobe JSON for a 10s clip with one video
// stream at 25 fps and two audio streams.
func DefaultProbeResponse() []byte {
	resp := map[string]interface{}{
		"format": map[string]interface{}{
			"duration": "10.000000",
		},
		"streams": []map[string]interface{}{
			{
				"codec_type":   "video",
				"codec_name":   "h264",
				"r_frame_rate": "25/1",
			},
			{
				"codec_type": "audio",
				"codec_name": "aac",
				"tags":       map[string]string{"language": "eng", "title": "Main"},
			},
			{
				"codec_type": "audio",
				"codec_name": "ac3",
				"tags":       map[string]string{"language": "ita", "title": "Commentary"},
			},
		},
	}
	b, _ := json.Marshal(resp)
	return b
}

// MockStorage is a test double for ports.StorageProvider
type MockStorage struct {
	ExistsFunc    func(ctx context.Context, path string) (bool, error)
	SizeFunc      func(ctx context.Context, path string) (int64, error)
	RemoveFunc    func(ctx context.Context, path string) error
	TempDirFunc   func(ctx context.Context, dir, pattern string) (string, error)
	RemoveAllFunc func(ctx context.Context, path string) error

	mu      sync.Mutex
	Removed []string
}

func (m *MockStorage) Exists(ctx context.Context, path string) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, path)
	}
	return true, nil
}

func (m *MockStorage) Size(ctx context.Context, path string) (int64, error) {
	if m.SizeFunc != nil {
		return m.SizeFunc(ctx, path)
	}
	return 1024, nil
}

func (m *MockStorage) Remove(ctx context.Context, path string) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, path)
	}
	return nil
}

func (m *MockStorage) TempDir(ctx context.Context, dir, pattern string) (string, error) {
	if m.TempDirFunc != nil {
		return m.TempDirFunc(ctx, dir, pattern)
	}
	return "/tmp/trackmix-mock", nil
}

func (m *MockStorage) RemoveAll(ctx context.Context, path string) error {
	m.mu.Lock()
	m.Removed = append(m.Removed, path)
	m.mu.Unlock()
	if m.RemoveAllFunc != nil {
		return m.RemoveAllFunc(ctx, path)
	}
	return nil
}

// FakePlayback is a scripted ports.PlaybackHandle whose position can be
// set independently of the master clock, for drift/sync tests.
type FakePlayback struct {
	Source  string
	Pos     int64
	Playing bool
	Level   float64

	Seeks      []int64
	SetSources []string
}

func (p *FakePlayback) SetSource(path string) error {
	p.Source = path
	p.SetSources = append(p.SetSources, path)
	return nil
}

func (p *FakePlayback) Play()  { p.Playing = true }
func (p *FakePlayback) Pause() { p.Playing = false }

func (p *FakePlayback) Stop() {
	p.Playing = false
	p.Pos = 0
}

func (p *FakePlayback) SetPosition(ms int64) {
	p.Pos = ms
	p.Seeks = append(p.Seeks, ms)
}

func (p *FakePlayback) Position() int64 { return p.Pos }

func (p *FakePlayback) SetOutputLevel(level float64) { p.Level = level }
