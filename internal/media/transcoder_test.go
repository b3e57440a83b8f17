package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"videofetch/internal/status"
)

const probeH264 = `{"streams": [{"codec_type": "video", "codec_name": "h264"}, {"codec_type": "audio", "codec_name": "aac"}]}`
const probeVP9 = `{"streams": [{"codec_type": "video", "codec_name": "vp9"}, {"codec_type": "audio", "codec_name": "opus"}]}`

// transcoderFixture wires a Transcoder over a fake runner that answers
// probe calls with probeOut, format lookups with formatsOut, and writes the
// transcode output file unless failConvert is set.
type transcoderFixture struct {
	run *fakeRunner
	tr  *Transcoder
	reg *status.Registry
}

func newTranscoderFixture(t *testing.T, probeOut, formatsOut string, failConvert bool) *transcoderFixture {
	t.Helper()
	run := &fakeRunner{}
	run.handler = func(cmd Command) (Result, error) {
		switch cmd.Path {
		case "ffprobe":
			return Result{Stdout: []byte(probeOut)}, nil
		case "yt-dlp":
			if formatsOut == "" {
				return Result{}, &ToolError{Tool: "yt-dlp", ExitCode: 1, Stderr: "network unreachable"}
			}
			return Result{Stdout: []byte(formatsOut)}, nil
		case "ffmpeg":
			if failConvert {
				return Result{}, &ToolError{Tool: "ffmpeg", ExitCode: 1, Stderr: "conversion failed"}
			}
			out := cmd.Args[len(cmd.Args)-1]
			return Result{}, os.WriteFile(out, []byte("converted"), 0o644)
		}
		t.Fatalf("unexpected tool %q", cmd.Path)
		return Result{}, nil
	}

	reg := status.NewRegistry()
	prober := NewProber(run, "yt-dlp", time.Minute)
	tr := NewTranscoder(run, reg, prober, "ffprobe", "ffmpeg", time.Minute, time.Minute, discardLogger())
	return &transcoderFixture{run: run, tr: tr, reg: reg}
}

func writeAsset(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "asset.mp4")
	if err := os.WriteFile(path, []byte("source"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// ffmpegCall returns the recorded ffmpeg invocation, failing if none exists.
func (fx *transcoderFixture) ffmpegCall(t *testing.T) Command {
	t.Helper()
	fx.run.mu.Lock()
	defer fx.run.mu.Unlock()
	for _, c := range fx.run.calls {
		if c.Path == "ffmpeg" {
			return c
		}
	}
	t.Fatal("no ffmpeg invocation recorded")
	return Command{}
}

func TestProduce_stream_copy_for_accepted_codec(t *testing.T) {
	fx := newTranscoderFixture(t, probeH264, "", false)
	asset := writeAsset(t)

	data, err := fx.tr.Produce(context.Background(), asset, OutputVideo, "", "https://youtu.be/x", "s1")
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if string(data) != "converted" {
		t.Errorf("payload = %q", data)
	}

	args := fx.ffmpegCall(t).Args
	if !hasArgPair(args, "-c", "copy") {
		t.Errorf("expected stream copy, args = %v", args)
	}
	if hasArg(args, "libx264") || hasArg(args, "-vf") || hasArg(args, "-crf") {
		t.Errorf("stream copy must not carry re-encode parameters, args = %v", args)
	}
}

func TestProduce_recodes_foreign_codec(t *testing.T) {
	fx := newTranscoderFixture(t, probeVP9, "", false)
	asset := writeAsset(t)

	if _, err := fx.tr.Produce(context.Background(), asset, OutputVideo, "", "https://youtu.be/x", "s1"); err != nil {
		t.Fatalf("Produce: %v", err)
	}

	args := fx.ffmpegCall(t).Args
	if !hasArgPair(args, "-c:v", "libx264") || !hasArgPair(args, "-pix_fmt", "yuv420p") {
		t.Errorf("expected full re-encode, args = %v", args)
	}
	if hasArg(args, "-vf") {
		t.Errorf("no quality override, so no scale filter expected, args = %v", args)
	}
}

func TestProduce_quality_override_forces_scaled_recode(t *testing.T) {
	// Asset is already h264, but a quality selector with a known height
	// must still force a re-encode with that scale target.
	fx := newTranscoderFixture(t, probeH264, formatDumpFixture, false)
	asset := writeAsset(t)

	if _, err := fx.tr.Produce(context.Background(), asset, OutputVideo, "22", "https://youtu.be/x", "s1"); err != nil {
		t.Fatalf("Produce: %v", err)
	}

	args := fx.ffmpegCall(t).Args
	if !hasArgPair(args, "-vf", "scale=-2:720") {
		t.Errorf("expected scale filter for 720p target, args = %v", args)
	}
	if !hasArgPair(args, "-c:v", "libx264") {
		t.Errorf("quality override must re-encode, args = %v", args)
	}
}

func TestProduce_height_lookup_failure_degrades(t *testing.T) {
	// Height lookup fails (network); decision falls back to codec-only:
	// h264 asset stays a stream copy, no scale filter.
	fx := newTranscoderFixture(t, probeH264, "", false)
	asset := writeAsset(t)

	if _, err := fx.tr.Produce(context.Background(), asset, OutputVideo, "22", "https://youtu.be/x", "s1"); err != nil {
		t.Fatalf("Produce should degrade gracefully: %v", err)
	}

	args := fx.ffmpegCall(t).Args
	if !hasArgPair(args, "-c", "copy") || hasArg(args, "-vf") {
		t.Errorf("degraded path should stream copy without scale, args = %v", args)
	}
}

func TestProduce_audio_always_encodes_without_probe(t *testing.T) {
	fx := newTranscoderFixture(t, probeH264, "", false)
	asset := writeAsset(t)

	data, err := fx.tr.Produce(context.Background(), asset, OutputAudio, "", "https://youtu.be/x", "s1")
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected audio payload")
	}

	fx.run.mu.Lock()
	defer fx.run.mu.Unlock()
	if len(fx.run.calls) != 1 || fx.run.calls[0].Path != "ffmpeg" {
		t.Fatalf("audio output should run exactly one ffmpeg call, got %v", fx.run.calls)
	}
	args := fx.run.calls[0].Args
	if !hasArgPair(args, "-c:a", "libmp3lame") || !hasArg(args, "-vn") {
		t.Errorf("expected mandatory audio codec conversion, args = %v", args)
	}
	if !strings.HasSuffix(args[len(args)-1], ".mp3") {
		t.Errorf("audio output should target an mp3 temp file, args = %v", args)
	}
}

func TestProduce_emits_converting(t *testing.T) {
	fx := newTranscoderFixture(t, probeH264, "", false)
	asset := writeAsset(t)

	if _, err := fx.tr.Produce(context.Background(), asset, OutputVideo, "", "https://youtu.be/x", "s1"); err != nil {
		t.Fatal(err)
	}

	replay := fx.reg.Subscribe("s1").Replay()
	if len(replay) != 1 || replay[0].Status != status.StatusConverting {
		t.Errorf("events = %v, want single converting", replay)
	}
}

func TestProduce_failure_cleans_temp(t *testing.T) {
	fx := newTranscoderFixture(t, probeH264, "", true)
	asset := writeAsset(t)

	if _, err := fx.tr.Produce(context.Background(), asset, OutputVideo, "", "https://youtu.be/x", "s1"); err == nil {
		t.Fatal("expected convert error")
	}

	// Only the source asset may remain in its directory.
	entries, _ := os.ReadDir(filepath.Dir(asset))
	if len(entries) != 1 {
		t.Errorf("partial output left behind: %v", entries)
	}
}

func TestProduce_temp_removed_after_success(t *testing.T) {
	fx := newTranscoderFixture(t, probeH264, "", false)
	asset := writeAsset(t)

	if _, err := fx.tr.Produce(context.Background(), asset, OutputVideo, "", "https://youtu.be/x", "s1"); err != nil {
		t.Fatal(err)
	}

	entries, _ := os.ReadDir(filepath.Dir(asset))
	if len(entries) != 1 {
		t.Errorf("temp output should be deleted after reading, found %v", entries)
	}
}
