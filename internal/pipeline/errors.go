package pipeline

import (
	"errors"
	"fmt"
	"net/http"

	"videofetch/internal/media"
	"videofetch/internal/source"
)

// Stage names the pipeline step a failure originated from.
type Stage string

const (
	StageClassify Stage = "classify"
	StageResolve  Stage = "resolve"
	StageFetch    Stage = "fetch"
	StageConvert  Stage = "convert"
)

// Error tags a failure with its pipeline stage and carries the deepest
// diagnostic text (typically the external tool's stderr).
type Error struct {
	Stage  Stage
	Reason string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// stageError wraps err into a stage-tagged Error, preserving the chain.
func stageError(stage Stage, err error) *Error {
	return &Error{Stage: stage, Reason: err.Error(), Err: err}
}

// HTTPStatus classifies an error for the HTTP layer: invalid input is the
// client's fault, tool failures are upstream, anything else is internal.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, source.ErrUnsupportedSource), errors.Is(err, source.ErrPlaylistURL):
		return http.StatusBadRequest
	case errors.Is(err, media.ErrToolTimeout), isToolError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func isToolError(err error) bool {
	var toolErr *media.ToolError
	return errors.As(err, &toolErr)
}
