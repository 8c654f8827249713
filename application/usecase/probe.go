package usecase

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/avlab/trackmix/domain/model"
)

// ffprobeOutput maps the fields consumed from ffprobe JSON
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		RFrameRate string `json:"r_frame_rate"`
		Tags       struct {
			Language string `json:"language"`
			Title    string `json:"title"`
		} `json:"tags"`
	} `json:"streams"`
}

// ParseProbe turns raw ffprobe JSON into MediaInfo. Audio stream indices
// are ordinals among audio streams only, matching the engine's 0:a:N
// selector. Frame rate comes from the first video stream's r_frame_rate
// fraction; 30 fps is assumed when it is absent or malformed.
func ParseProbe(data []byte, path string) (*model.MediaInfo, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parsing probe output: %w", err)
	}

	info := &model.MediaInfo{
		Path: path,
		FPS:  30.0,
	}

	if durSec, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.DurationMS = int64(durSec * 1000)
	}

	audioOrdinal := 0
	haveFPS := false
	for _, s := range probe.Streams {
		switch s.CodecType {
		case "video":
			if !haveFPS {
				if fps, ok := parseFrameRate(s.RFrameRate); ok {
					info.FPS = fps
					haveFPS = true
				}
			}
		case "audio":
			info.AudioStreams = append(info.AudioStreams, model.StreamInfo{
				Index:     audioOrdinal,
				CodecName: s.CodecName,
				Language:  s.Tags.Language,
				Title:     s.Tags.Title,
			})
			audioOrdinal++
		}
	}

	return info, nil
}

// parseFrameRate parses an ffprobe "num/den" fraction.
func parseFrameRate(frac string) (float64, bool) {
	parts := strings.Split(frac, "/")
	if len(parts) != 2 {
		return 0, false
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 || num <= 0 {
		return 0, false
	}
	return num / den, true
}
