// Package pipeline is the orchestration core: it drives source
// classification, the cache-backed fetcher and the transcoder for one
// request, owns the session lifecycle, and exposes the HTTP surface.
package pipeline

import "videofetch/internal/media"

// Request is the resolved tuple handed in by the routing layer.
type Request struct {
	SourceURL string
	Output    media.Output
	// Quality is an opaque format selector; empty means the default
	// best-video-plus-audio selector, "best" asks for size-based
	// auto-selection.
	Quality   string
	SessionID string
}

// BestQuality requests probing the source and picking the largest video
// format instead of the default selector.
const BestQuality = "best"

// Result is the final payload of a successful request.
type Result struct {
	Data        []byte
	ContentType string
	Filename    string
	SessionID   string
}

// FormatOption is one entry of the format listing endpoint.
type FormatOption struct {
	FormatID string `json:"formatId"`
	Label    string `json:"label"`
}
