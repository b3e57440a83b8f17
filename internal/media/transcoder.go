package media

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"videofetch/internal/status"
)

// Output is the requested output format of a download.
type Output string

const (
	// OutputVideo is the default: an MP4 container with h264 video.
	OutputVideo Output = "video"
	// OutputAudio is an MP3 audio extraction.
	OutputAudio Output = "audio"
)

// acceptedVideoCodec is the one codec passed through without re-encoding;
// everything else triggers a full transcode.
const acceptedVideoCodec = "h264"

// Transcoder turns a cached asset into the requested output format,
// invoking the probe and transcode tools as needed.
type Transcoder struct {
	run            Runner
	reg            *status.Registry
	prober         *Prober
	probeTool      string
	tool           string
	probeTimeout   time.Duration
	convertTimeout time.Duration
	log            *slog.Logger
}

// NewTranscoder returns a Transcoder over the given probe and transcode
// tool binaries. The prober is used for target-resolution lookups when a
// quality selector is in play.
func NewTranscoder(run Runner, reg *status.Registry, prober *Prober, probeTool, tool string, probeTimeout, convertTimeout time.Duration, log *slog.Logger) *Transcoder {
	return &Transcoder{
		run:            run,
		reg:            reg,
		prober:         prober,
		probeTool:      probeTool,
		tool:           tool,
		probeTimeout:   probeTimeout,
		convertTimeout: convertTimeout,
		log:            log,
	}
}

// Produce converts the cached asset at assetPath into the requested output
// and returns the full result bytes. Audio output always re-encodes. Video
// output is stream-copied when the asset's codec is already accepted and no
// quality override applies, and fully re-encoded otherwise. All work goes
// through a temporary sibling file that is removed on every path.
func (t *Transcoder) Produce(ctx context.Context, assetPath string, output Output, quality, sourceURL, sessionID string) ([]byte, error) {
	if output == OutputAudio {
		t.reg.Publish(sessionID, status.Event{Status: status.StatusConverting})
		return t.execute(ctx, assetPath, t.audioArgs, ".mp3")
	}

	needsRecode, err := t.needsRecode(ctx, assetPath)
	if err != nil {
		return nil, err
	}

	targetHeight := 0
	if quality != "" {
		h, ok, herr := t.prober.FormatHeight(ctx, sourceURL, quality)
		switch {
		case herr != nil:
			// Network failure here degrades gracefully: keep the
			// codec-only recode decision, leave the height unset.
			t.log.Warn("format height lookup failed",
				slog.String("url", sourceURL),
				slog.String("format", quality),
				slog.String("error", herr.Error()))
		case ok:
			needsRecode = true
			targetHeight = h
		}
	}

	t.reg.Publish(sessionID, status.Event{Status: status.StatusConverting})

	if !needsRecode {
		return t.execute(ctx, assetPath, t.remuxArgs, ".mp4")
	}
	return t.execute(ctx, assetPath, func(in, out string) []string {
		return t.recodeArgs(in, out, targetHeight)
	}, ".mp4")
}

// probeStream mirrors the probe tool's per-stream JSON fields consumed here.
type probeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
}

type probeJSON struct {
	Streams []probeStream `json:"streams"`
}

// needsRecode inspects the asset's video codec with the probe tool.
func (t *Transcoder) needsRecode(ctx context.Context, assetPath string) (bool, error) {
	res, err := t.run.Run(ctx, Command{
		Path:    t.probeTool,
		Args:    []string{"-v", "error", "-print_format", "json", "-show_streams", assetPath},
		Timeout: t.probeTimeout,
	})
	if err != nil {
		return false, fmt.Errorf("probe %s: %w", assetPath, err)
	}

	var probe probeJSON
	if err := json.Unmarshal(res.Stdout, &probe); err != nil {
		return false, fmt.Errorf("decode probe output: %w", err)
	}

	for _, s := range probe.Streams {
		if s.CodecType == "video" {
			return s.CodecName != acceptedVideoCodec, nil
		}
	}
	// No video stream: nothing to copy as-is, let the encoder sort it out.
	return true, nil
}

// execute runs the transcode tool with args built by build, reads the
// temporary output fully, deletes it and returns the bytes. Any failure
// removes the partial temp file.
func (t *Transcoder) execute(ctx context.Context, assetPath string, build func(in, out string) []string, ext string) ([]byte, error) {
	tmp := tempSibling(assetPath, ext)
	defer os.Remove(tmp)

	if _, err := t.run.Run(ctx, Command{Path: t.tool, Args: build(assetPath, tmp), Timeout: t.convertTimeout}); err != nil {
		return nil, fmt.Errorf("convert %s: %w", assetPath, err)
	}

	data, err := os.ReadFile(tmp)
	if err != nil {
		return nil, fmt.Errorf("convert %s: tool exited 0 but produced no output: %w", assetPath, err)
	}
	return data, nil
}

// audioArgs always re-encodes: codec conversion to MP3 is mandatory.
func (t *Transcoder) audioArgs(in, out string) []string {
	return []string{
		"-y",
		"-i", in,
		"-vn",
		"-c:a", "libmp3lame",
		"-b:a", "192k",
		out,
	}
}

// remuxArgs stream-copies the asset to normalize container metadata.
func (t *Transcoder) remuxArgs(in, out string) []string {
	return []string{
		"-y",
		"-i", in,
		"-c", "copy",
		"-movflags", "+faststart",
		out,
	}
}

// recodeArgs fully re-encodes, scaling to targetHeight when set.
func (t *Transcoder) recodeArgs(in, out string, targetHeight int) []string {
	args := []string{"-y", "-i", in}
	if targetHeight > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=-2:%d", targetHeight))
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		out,
	)
	return args
}

// tempSibling returns a unique temp path next to the input file so the
// rename-free write stays on one filesystem.
func tempSibling(assetPath, ext string) string {
	var b [6]byte
	rand.Read(b[:])
	return assetPath + ".out-" + hex.EncodeToString(b[:]) + ext
}
