package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"videofetch/internal/cache"
	"videofetch/internal/media"
	"videofetch/internal/platform/metrics"
	"videofetch/internal/source"
	"videofetch/internal/status"
)

// Service is the pipeline orchestrator: the single entry point that turns a
// validated request into a payload, publishing progress along the way. It is
// the sole emitter of terminal status events, so every stream sees exactly
// one complete or failed marker.
type Service struct {
	fetcher    *media.Fetcher
	transcoder *media.Transcoder
	prober     *media.Prober
	store      *cache.Store
	reg        *status.Registry
	metrics    *metrics.Metrics

	namingPattern string
	cleanupGrace  time.Duration

	log *slog.Logger
}

// NewService wires the orchestrator. metrics may be nil to disable metric
// recording (e.g. in tests). cleanupGrace delays session teardown after the
// terminal event so a slow subscriber can still observe it.
func NewService(fetcher *media.Fetcher, transcoder *media.Transcoder, prober *media.Prober, store *cache.Store, reg *status.Registry, m *metrics.Metrics, namingPattern string, cleanupGrace time.Duration, log *slog.Logger) *Service {
	return &Service{
		fetcher:       fetcher,
		transcoder:    transcoder,
		prober:        prober,
		store:         store,
		reg:           reg,
		metrics:       m,
		namingPattern: namingPattern,
		cleanupGrace:  cleanupGrace,
		log:           log,
	}
}

// Handle runs the full pipeline for one request: classify, resolve the
// filename, fetch into the cache, convert, and return the payload. Invalid
// input fails before any external process runs or any status event is
// published. Every other outcome emits exactly one terminal event and
// schedules session cleanup once.
func (s *Service) Handle(ctx context.Context, req Request) (Result, error) {
	src, err := source.Classify(req.SourceURL)
	if err != nil {
		return Result{}, stageError(StageClassify, err)
	}
	if source.IsPlaylist(req.SourceURL) {
		return Result{}, stageError(StageClassify, fmt.Errorf("%w: %q", source.ErrPlaylistURL, req.SourceURL))
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	res, err := s.run(ctx, src, req, sessionID)
	if err != nil {
		s.reg.Publish(sessionID, status.Event{Status: status.StatusFailed, Detail: err.Error()})
		s.scheduleCleanup(sessionID)
		s.log.Error("pipeline failed",
			slog.String("url", req.SourceURL),
			slog.String("session", sessionID),
			slog.String("error", err.Error()))
		return Result{}, err
	}

	s.reg.Publish(sessionID, status.Event{Status: status.StatusComplete})
	s.scheduleCleanup(sessionID)
	if s.metrics != nil {
		s.metrics.IncDownloads()
	}
	res.SessionID = sessionID
	return res, nil
}

func (s *Service) run(ctx context.Context, src source.Source, req Request, sessionID string) (Result, error) {
	filename, err := s.resolveFilename(ctx, src, req.Output)
	if err != nil {
		return Result{}, stageError(StageResolve, err)
	}

	quality := req.Quality
	if quality == BestQuality {
		picked, err := s.prober.PickBest(ctx, src.URL)
		if err != nil {
			// Auto-selection is an optimization; failing it falls
			// back to the default selector.
			s.log.Warn("best-quality probe failed, using default selector",
				slog.String("url", src.URL),
				slog.String("error", err.Error()))
			picked = ""
		}
		quality = picked
	}

	assetPath, fromCache, err := s.fetcher.EnsureCached(ctx, src.URL, quality, sessionID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncToolErrors("fetch")
		}
		return Result{}, stageError(StageFetch, err)
	}
	if fromCache && s.metrics != nil {
		s.metrics.IncCacheHits()
	}

	data, err := s.transcoder.Produce(ctx, assetPath, req.Output, quality, src.URL, sessionID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncToolErrors("convert")
		}
		return Result{}, stageError(StageConvert, err)
	}
	if s.metrics != nil {
		s.metrics.IncConversions()
	}

	return Result{
		Data:        data,
		ContentType: contentTypeFor(req.Output),
		Filename:    filename,
	}, nil
}

// resolveFilename builds the user-visible filename: a title lookup for
// YouTube sources, naming-pattern substitution for Twitter ones.
func (s *Service) resolveFilename(ctx context.Context, src source.Source, output media.Output) (string, error) {
	ext := ".mp4"
	if output == media.OutputAudio {
		ext = ".mp3"
	}

	switch src.Kind {
	case source.KindTwitter:
		return substitutePattern(s.namingPattern, src.UserID, src.PostID) + ext, nil
	default:
		title, err := s.fetcher.Title(ctx, src.URL)
		if err != nil {
			return "", err
		}
		return title + ext, nil
	}
}

// scheduleCleanup tears the session down after the grace delay, exactly once
// per request.
func (s *Service) scheduleCleanup(sessionID string) {
	time.AfterFunc(s.cleanupGrace, func() {
		s.reg.Cleanup(sessionID)
	})
}

// ListFormats returns the source's selectable formats for the listing
// endpoint.
func (s *Service) ListFormats(ctx context.Context, rawURL string) ([]FormatOption, error) {
	formats, err := s.prober.ListFormats(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	options := make([]FormatOption, 0, len(formats))
	for _, f := range formats {
		options = append(options, FormatOption{FormatID: f.ID, Label: f.Label()})
	}
	return options, nil
}

// InvalidateCache removes every cached variant of the source URL.
func (s *Service) InvalidateCache(rawURL string) (int, error) {
	return s.store.Invalidate(rawURL)
}

func contentTypeFor(output media.Output) string {
	if output == media.OutputAudio {
		return "audio/mpeg"
	}
	return "video/mp4"
}
