package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	trackmix "github.com/avlab/trackmix"
)

// Headless demo: load a video, wait for every track preview, print the
// waveforms as ASCII, then export the mix with the requested gains and
// trim range.
func main() {
	input := flag.String("i", "", "input video path")
	output := flag.String("o", "", "output path (default <input>_cut.mp4)")
	gains := flag.String("gains", "", "comma-separated per-track gains in dB, e.g. 0,-6")
	mute := flag.String("mute", "", "comma-separated track ordinals to exclude")
	inMS := flag.Int64("in", 0, "in point in ms")
	outMS := flag.Int64("out", 0, "out point in ms (0 = clip end)")
	precise := flag.Bool("precise", false, "re-encode video for frame-accurate trim")
	flag.Parse()

	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *output == "" {
		*output = strings.TrimSuffix(*input, ".mp4") + "_cut.mp4"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	progressCh := make(chan trackmix.ProgressUpdate, 32)
	go func() {
		for upd := range progressCh {
			fmt.Printf("stage=%-8s %3.0f%%  %s\n", upd.Stage, upd.Percent, upd.Message)
		}
	}()

	mixer, err := trackmix.New(trackmix.Config{
		ProgressCh: progressCh,
	})
	if err != nil {
		log.Fatalf("failed to create mixer: %v", err)
	}
	defer func() {
		mixer.Close(ctx)
		close(progressCh)
	}()

	session, err := mixer.Load(ctx, *input)
	if err != nil {
		log.Fatalf("load failed: %v", err)
	}

	fmt.Printf("Loaded %s: %d audio tracks, %.3fs @ %.2f fps\n",
		*input,
		len(session.Info.AudioStreams),
		float64(session.Info.DurationMS)/1000.0,
		session.Info.FPS,
	)

	applyFlags(session, *gains, *mute)

	// Drive the dispatch loop until every track's extraction resolved.
	pending := len(session.Tracks())
	for pending > 0 {
		select {
		case <-ctx.Done():
			return
		case ev := <-mixer.Events():
			mixer.Apply(ev)
			if _, ok := ev.(trackmix.ExtractionReady); ok {
				pending--
			}
		}
	}

	for _, tc := range session.Tracks() {
		t := tc.Track()
		fmt.Printf("track %d [%s] %s gain=%+.0fdB active=%v\n",
			t.Index, t.Language, t.CodecName, t.GainDB, t.Active)
		printWaveform(tc.RenderColumns(72))
	}

	// Trim range.
	tr := mixer.Transport()
	tr.Seek(*inMS)
	tr.SetInPoint()
	if *outMS > 0 {
		tr.Seek(*outMS)
		tr.SetOutPoint()
	}

	job, err := mixer.Export(*output, *precise)
	if err != nil {
		log.Fatalf("export rejected: %v", err)
	}
	fmt.Printf("exporting job %s -> %s\n", job.ID[:8], job.OutputPath)

	for {
		select {
		case <-ctx.Done():
			mixer.CancelExport()
			return
		case ev := <-mixer.Events():
			mixer.Apply(ev)
			if done, ok := ev.(trackmix.ExportFinished); ok {
				if done.Err != nil {
					log.Fatalf("export failed: %v", done.Err)
				}
				fmt.Println("export complete")
				return
			}
		}
	}
}

func applyFlags(session *trackmix.Session, gains, mute string) {
	if gains != "" {
		for i, g := range strings.Split(gains, ",") {
			db, err := strconv.ParseFloat(strings.TrimSpace(g), 64)
			if err != nil {
				continue
			}
			if tc := session.Track(i); tc != nil {
				tc.ApplyGain(db)
			}
		}
	}
	if mute != "" {
		for _, m := range strings.Split(mute, ",") {
			idx, err := strconv.Atoi(strings.TrimSpace(m))
			if err != nil {
				continue
			}
			if tc := session.Track(idx); tc != nil {
				tc.SetActive(false)
			}
		}
	}
}

// printWaveform draws one envelope row per track with unicode blocks.
func printWaveform(cols []float64) {
	blocks := []rune(" ▁▂▃▄▅▆▇█")
	var sb strings.Builder
	for _, v := range cols {
		idx := int(v * float64(len(blocks)-1))
		if idx >= len(blocks) {
			idx = len(blocks) - 1
		}
		sb.WriteRune(blocks[idx])
	}
	fmt.Printf("  |%s|\n", sb.String())
}
