package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"videofetch/internal/source"
)

const formatDumpFixture = `{
  "formats": [
    {"format_id": "sb0", "ext": "mhtml", "format_note": "storyboard"},
    {"format_id": "599", "ext": "3gp", "format_note": "preview", "height": 144},
    {"format_id": "139", "ext": "m4a", "format_note": "low", "filesize": 1200000, "vcodec": "none"},
    {"format_id": "18", "ext": "mp4", "format_note": "360p", "height": 360, "filesize": 9000000, "vcodec": "avc1.42001E"},
    {"format_id": "22", "ext": "mp4", "format_note": "720p", "height": 720, "filesize_approx": 52428800, "vcodec": "avc1.64001F"},
    {"format_id": "303", "ext": "webm", "format_note": "1080p", "height": 1080, "vcodec": "vp9"}
  ]
}`

func newTestProber(handler func(cmd Command) (Result, error)) (*Prober, *fakeRunner) {
	run := &fakeRunner{handler: handler}
	return NewProber(run, "yt-dlp", time.Minute), run
}

func TestListFormats_filters_unplayable(t *testing.T) {
	p, run := newTestProber(func(cmd Command) (Result, error) {
		return Result{Stdout: []byte(formatDumpFixture)}, nil
	})

	formats, err := p.ListFormats(context.Background(), "https://youtu.be/x")
	if err != nil {
		t.Fatalf("ListFormats: %v", err)
	}

	if len(formats) != 4 {
		t.Fatalf("got %d formats, want 4 (storyboard and preview filtered): %v", len(formats), formats)
	}
	// Tool order must be preserved.
	for i, want := range []string{"139", "18", "22", "303"} {
		if formats[i].ID != want {
			t.Errorf("formats[%d].ID = %q, want %q", i, formats[i].ID, want)
		}
	}

	cmd := run.lastCall(t)
	if !hasArg(cmd.Args, "-J") || !hasArg(cmd.Args, "--no-playlist") {
		t.Errorf("unexpected probe invocation: %v", cmd.Args)
	}
}

func TestListFormats_optional_fields_absent(t *testing.T) {
	p, _ := newTestProber(func(cmd Command) (Result, error) {
		return Result{Stdout: []byte(formatDumpFixture)}, nil
	})

	formats, _ := p.ListFormats(context.Background(), "https://youtu.be/x")

	byID := map[string]Format{}
	for _, f := range formats {
		byID[f.ID] = f
	}

	if byID["139"].Height != nil {
		t.Error("audio format must have absent height, not zero")
	}
	if byID["303"].Size != nil {
		t.Error("format without filesize must have absent size, not zero")
	}
	if byID["22"].Size == nil || *byID["22"].Size != 52428800 {
		t.Error("filesize_approx should back-fill the size")
	}
}

func TestListFormats_rejects_playlist_before_tool_run(t *testing.T) {
	p, run := newTestProber(nil)

	_, err := p.ListFormats(context.Background(), "https://www.youtube.com/watch?v=x&list=PL42")
	if !errors.Is(err, source.ErrPlaylistURL) {
		t.Fatalf("err = %v, want ErrPlaylistURL", err)
	}
	if run.callCount() != 0 {
		t.Errorf("playlist rejection must not invoke the tool, ran %d", run.callCount())
	}
}

func TestPickBest_largest_sized_video(t *testing.T) {
	p, _ := newTestProber(func(cmd Command) (Result, error) {
		return Result{Stdout: []byte(formatDumpFixture)}, nil
	})

	// 303 has height but no size; 139 has size but no height; among the
	// rest, 22 is largest.
	best, err := p.PickBest(context.Background(), "https://youtu.be/x")
	if err != nil {
		t.Fatalf("PickBest: %v", err)
	}
	if best != "22" {
		t.Errorf("best = %q, want 22", best)
	}
}

func TestPickBest_no_candidate(t *testing.T) {
	p, _ := newTestProber(func(cmd Command) (Result, error) {
		return Result{Stdout: []byte(`{"formats": [{"format_id": "139", "ext": "m4a", "filesize": 1}]}`)}, nil
	})

	best, err := p.PickBest(context.Background(), "https://youtu.be/x")
	if err != nil {
		t.Fatalf("PickBest: %v", err)
	}
	if best != "" {
		t.Errorf("best = %q, want empty (fall back to default selector)", best)
	}
}

func TestFormatHeight(t *testing.T) {
	p, _ := newTestProber(func(cmd Command) (Result, error) {
		return Result{Stdout: []byte(formatDumpFixture)}, nil
	})

	h, ok, err := p.FormatHeight(context.Background(), "https://youtu.be/x", "22")
	if err != nil || !ok || h != 720 {
		t.Errorf("FormatHeight(22) = (%d, %v, %v), want (720, true, nil)", h, ok, err)
	}

	_, ok, err = p.FormatHeight(context.Background(), "https://youtu.be/x", "139")
	if err != nil || ok {
		t.Errorf("audio format should report no height, got ok=%v err=%v", ok, err)
	}

	_, ok, _ = p.FormatHeight(context.Background(), "https://youtu.be/x", "does-not-exist")
	if ok {
		t.Error("unknown format id should report no height")
	}
}

func TestFormat_Label(t *testing.T) {
	h := 720
	var size int64 = 48 * 1024 * 1024
	f := Format{ID: "22", Ext: "mp4", Note: "720p", Height: &h, Size: &size}
	if f.Label() != "720p (mp4, ~48 MB)" {
		t.Errorf("Label = %q", f.Label())
	}

	noSize := Format{ID: "303", Ext: "webm", Note: "1080p"}
	if noSize.Label() != "1080p (webm)" {
		t.Errorf("Label = %q", noSize.Label())
	}
}
