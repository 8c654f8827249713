package preview

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// DefaultEnvelopeWidth is the target point count of a peak envelope.
const DefaultEnvelopeWidth = 2000

// BuildEnvelope downsamples mono 16-bit PCM into a peak envelope of at
// most target points. Each output point is the maximum absolute sample of
// its chunk, normalized to [0, 1], so short transients survive the
// downsample. The result is presentational only, never used for metering.
//
// An empty buffer yields an empty envelope. Fewer samples than target
// yields one point per sample; no upsampling happens here.
func BuildEnvelope(samples []int16, target int) []float64 {
	if target <= 0 {
		target = DefaultEnvelopeWidth
	}
	n := len(samples)
	if n == 0 {
		return []float64{}
	}

	// Round the chunk size up so the envelope never exceeds target points.
	step := (n + target - 1) / target
	if step < 1 {
		step = 1
	}

	env := make([]float64, 0, (n+step-1)/step)
	for i := 0; i < n; i += step {
		end := i + step
		if end > n {
			end = n
		}
		var peak int32
		for _, s := range samples[i:end] {
			a := int32(s)
			if a < 0 {
				a = -a
			}
			if a > peak {
				peak = a
			}
		}
		v := float64(peak) / 32768.0
		if v > 1.0 {
			v = 1.0
		}
		env = append(env, v)
	}
	return env
}

// RenderColumns re-bins an envelope onto an arbitrary pixel width. This is
// the second stage of the two-stage downsample: each output column samples
// envelope[floor(col*step)] rather than taking a peak over the column's
// range, matching the draw loop the envelope was designed for.
func RenderColumns(env []float64, width int) []float64 {
	if width <= 0 || len(env) == 0 {
		return []float64{}
	}
	step := float64(len(env)) / float64(width)
	cols := make([]float64, 0, width)
	for x := 0; x < width; x++ {
		idx := int(float64(x) * step)
		if idx >= len(env) {
			break
		}
		cols = append(cols, env[idx])
	}
	return cols
}

// LoadPreviewWAV decodes an extracted mono preview WAV into int16 samples
// and its sample rate. Samples outside the int16 range are clipped.
func LoadPreviewWAV(path string) ([]int16, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("not a valid wav file: %s", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decoding %s: %w", path, err)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		switch {
		case v > 32767:
			samples[i] = 32767
		case v < -32768:
			samples[i] = -32768
		default:
			samples[i] = int16(v)
		}
	}
	return samples, int(dec.SampleRate), nil
}
