// Package result defines the transient outcome envelopes returned by the
// command and query processors. Envelopes are built per request and never
// persisted; the ResultType carries a fixed mapping onto HTTP status codes so
// transport handlers stay mechanical.
package result

import (
	"net/http"

	"github.com/google/uuid"
)

// ResultType is the set of outcomes the service layer can report. The values
// deliberately match the HTTP status codes they map to, but HTTPStatus is the
// only sanctioned conversion: unknown values fall back to 418 rather than
// leaking through as a bogus status.
type ResultType int

const (
	// OkForQuery is the successful response to queries that return data.
	OkForQuery ResultType = 200

	// OkResourceCreated is returned after creating a resource; the envelope
	// carries the new stream id.
	OkResourceCreated ResultType = 201

	// OkStillProcessing responds early to commands that continue in the
	// background.
	OkStillProcessing ResultType = 202

	// OkForCommand is the successful response to commands with no content.
	OkForCommand ResultType = 204

	// BadRequest means the request could not be understood - bad parameters
	// or missing required input.
	BadRequest ResultType = 400

	// Unauthenticated should normally be produced earlier in the pipeline,
	// before any processor runs.
	Unauthenticated ResultType = 401

	// AccessDenied means the caller is known but not allowed to do this.
	AccessDenied ResultType = 403

	// NothingFound means the target aggregate or child does not exist.
	NothingFound ResultType = 404

	// StatusConflict means the target is in the wrong state for the request.
	StatusConflict ResultType = 409

	// InternalServerError covers failures inside the service layer, usually
	// surfaced from the fold or the stores.
	InternalServerError ResultType = 500

	// NotImplementedYet lets clients confirm a route exists during
	// development.
	NotImplementedYet ResultType = 501
)

// HTTPStatus converts the result into an HTTP status code. Anything outside
// the known set maps to 418.
func (r ResultType) HTTPStatus() int {
	switch r {
	case OkForQuery, OkResourceCreated, OkStillProcessing, OkForCommand,
		BadRequest, Unauthenticated, AccessDenied, NothingFound,
		StatusConflict, InternalServerError, NotImplementedYet:
		return int(r)
	default:
		return http.StatusTeapot
	}
}

// IsSuccess reports whether the result is one of the 2xx outcomes.
func (r ResultType) IsSuccess() bool {
	switch r {
	case OkForQuery, OkResourceCreated, OkStillProcessing, OkForCommand:
		return true
	default:
		return false
	}
}

// CommandResult is the envelope returned for every command. Commands return
// no data by definition, except that creating an aggregate (or a child) hands
// back the stream id the caller should use from then on.
type CommandResult struct {
	ResultType  ResultType `json:"resultType"`
	NewStreamID uuid.UUID  `json:"newStreamId,omitempty"`
	Errors      []string   `json:"errors,omitempty"`
}

// NewCommandResult reports a successful command with no content.
func NewCommandResult() CommandResult {
	return CommandResult{ResultType: OkForCommand}
}

// NewCreatedResult reports a successful create, carrying the new stream id.
func NewCreatedResult(streamID uuid.UUID) CommandResult {
	return CommandResult{ResultType: OkResourceCreated, NewStreamID: streamID}
}

// FailedCommand reports a non-success outcome with optional error messages.
func FailedCommand(rt ResultType, errs ...string) CommandResult {
	return CommandResult{ResultType: rt, Errors: errs}
}

// QueryCountResult is the envelope for count queries.
type QueryCountResult struct {
	ResultType ResultType `json:"resultType"`
	Count      int        `json:"count"`
}

// QueryResult is the envelope for single-aggregate queries.
type QueryResult[T any] struct {
	ResultType ResultType `json:"resultType"`
	Item       T          `json:"item,omitempty"`
}

// QueryResultList is the envelope for list queries.
type QueryResultList[T any] struct {
	ResultType ResultType `json:"resultType"`
	Items      []T        `json:"items"`
}

// ServiceResult is the internal result the aggregate-specific extension
// points (Authorize*, GetCount, GetList, GetSingle) hand back to the generic
// processors. Errors collected during authorization are non-fatal; they ride
// along on an otherwise successful command.
type ServiceResult struct {
	ResultType ResultType
	Errors     []string
}

// OK builds a successful ServiceResult with optional advisory errors.
func OK(errs ...string) ServiceResult {
	return ServiceResult{ResultType: OkForCommand, Errors: errs}
}

// Denied builds an AccessDenied ServiceResult.
func Denied() ServiceResult {
	return ServiceResult{ResultType: AccessDenied}
}

// Fail builds a failing ServiceResult with the given messages.
func Fail(rt ResultType, errs ...string) ServiceResult {
	return ServiceResult{ResultType: rt, Errors: errs}
}
