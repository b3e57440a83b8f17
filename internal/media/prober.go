package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"videofetch/internal/source"
)

// Format describes one source-provided encoding. Height and Size are nil
// when the source did not report them; absent is not zero.
type Format struct {
	ID     string
	Ext    string
	Note   string
	Height *int
	Size   *int64
	VCodec string
}

// Label renders the human-readable listing entry: quality note, container
// extension and approximate size in whole megabytes when known.
func (f Format) Label() string {
	note := f.Note
	if note == "" {
		if f.Height != nil {
			note = fmt.Sprintf("%dp", *f.Height)
		} else {
			note = f.ID
		}
	}
	if f.Size != nil {
		mb := *f.Size / (1024 * 1024)
		return fmt.Sprintf("%s (%s, ~%d MB)", note, f.Ext, mb)
	}
	return fmt.Sprintf("%s (%s)", note, f.Ext)
}

// Prober queries the source for its available formats via the fetch tool's
// JSON dump mode.
type Prober struct {
	run     Runner
	tool    string
	timeout time.Duration
}

// NewProber returns a Prober using the given fetch tool binary.
func NewProber(run Runner, tool string, timeout time.Duration) *Prober {
	return &Prober{run: run, tool: tool, timeout: timeout}
}

// formatJSON mirrors the fetch tool's per-format JSON fields actually
// consumed. Optional numerics are pointers so missing values stay absent.
type formatJSON struct {
	FormatID       string `json:"format_id"`
	Ext            string `json:"ext"`
	FormatNote     string `json:"format_note"`
	Height         *int   `json:"height"`
	Filesize       *int64 `json:"filesize"`
	FilesizeApprox *int64 `json:"filesize_approx"`
	VCodec         string `json:"vcodec"`
}

type dumpJSON struct {
	Formats []formatJSON `json:"formats"`
}

// ListFormats returns the source's playable formats in the order the tool
// reports them. Playlist URLs are rejected before any tool invocation.
// Storyboard and preview-container entries are filtered out.
func (p *Prober) ListFormats(ctx context.Context, url string) ([]Format, error) {
	if source.IsPlaylist(url) {
		return nil, fmt.Errorf("%w: %q", source.ErrPlaylistURL, url)
	}

	res, err := p.run.Run(ctx, Command{
		Path:    p.tool,
		Args:    []string{"-J", "--no-playlist", url},
		Timeout: p.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("list formats for %s: %w", url, err)
	}

	var dump dumpJSON
	if err := json.Unmarshal(res.Stdout, &dump); err != nil {
		return nil, fmt.Errorf("decode format list: %w", err)
	}

	formats := make([]Format, 0, len(dump.Formats))
	for _, f := range dump.Formats {
		if !playable(f) {
			continue
		}
		size := f.Filesize
		if size == nil {
			size = f.FilesizeApprox
		}
		formats = append(formats, Format{
			ID:     f.FormatID,
			Ext:    f.Ext,
			Note:   f.FormatNote,
			Height: f.Height,
			Size:   size,
			VCodec: f.VCodec,
		})
	}
	return formats, nil
}

// playable filters out thumbnail-track and preview entries that cannot be
// downloaded as media.
func playable(f formatJSON) bool {
	if f.Ext == "mhtml" || f.Ext == "3gp" {
		return false
	}
	if strings.Contains(strings.ToLower(f.FormatNote), "storyboard") {
		return false
	}
	return true
}

// PickBest selects the format id with the greatest known size among formats
// that carry a height (i.e. video formats). Ties keep the first-seen entry.
// The empty string means no candidate qualified; callers fall back to the
// default selector.
func (p *Prober) PickBest(ctx context.Context, url string) (string, error) {
	formats, err := p.ListFormats(ctx, url)
	if err != nil {
		return "", err
	}

	best := ""
	var bestSize int64 = -1
	for _, f := range formats {
		if f.Height == nil || f.Size == nil {
			continue
		}
		if *f.Size > bestSize {
			best, bestSize = f.ID, *f.Size
		}
	}
	return best, nil
}

// FormatHeight looks up the reported height of one specific format id.
// ok is false when the format is unknown or carries no height.
func (p *Prober) FormatHeight(ctx context.Context, url, formatID string) (height int, ok bool, err error) {
	formats, err := p.ListFormats(ctx, url)
	if err != nil {
		return 0, false, err
	}
	for _, f := range formats {
		if f.ID == formatID {
			if f.Height == nil {
				return 0, false, nil
			}
			return *f.Height, true, nil
		}
	}
	return 0, false, nil
}
