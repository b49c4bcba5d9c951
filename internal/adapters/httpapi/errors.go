package httpapi

import (
	"errors"
	"io"
	"net/http"

	"molluscadb/internal/auth"
	"molluscadb/internal/blob"
	"molluscadb/internal/csvimport"
	"molluscadb/internal/form"
	"molluscadb/internal/grid"
	"molluscadb/internal/grouplink"
	"molluscadb/internal/workspace"
	"molluscadb/pkg/domain"

	"github.com/labstack/echo/v4"
)

type errorBody struct {
	Error      string             `json:"error"`
	Fields     map[string]string  `json:"fields,omitempty"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

// statusOf maps domain errors onto HTTP statuses.
func statusOf(err error) int {
	var (
		httpErr    *echo.HTTPError
		tooLarge   *http.MaxBytesError
		notFound   domain.ErrNotFound
		rowErr     grid.UnknownRowError
		colErr     grid.UnknownColumnError
		invalid    grid.InvalidValueError
		notApplies grid.FilterNotApplicableError
		validation form.ValidationError
		violation  domain.RuleViolationError
	)
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.As(err, &notFound), errors.As(err, &rowErr), errors.As(err, &colErr),
		errors.Is(err, workspace.ErrUnknownView), errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, grid.ErrNoPendingEdit), errors.Is(err, grid.ErrEditMismatch),
		errors.Is(err, grid.ErrConfirmationPending), errors.Is(err, grid.ErrNothingToRevert),
		errors.As(err, &violation):
		return http.StatusConflict
	case errors.As(err, &validation), errors.As(err, &invalid), errors.As(err, &notApplies),
		errors.Is(err, grid.ErrReadOnly), errors.Is(err, grid.ErrNotDynamic), errors.Is(err, grid.ErrNoRecords),
		errors.Is(err, form.ErrUnknownField), errors.Is(err, csvimport.ErrNoHeader),
		errors.Is(err, grouplink.ErrSelfLink), errors.Is(err, grouplink.ErrNoIsolateCode),
		errors.Is(err, grouplink.ErrNotCandidate), errors.Is(err, grouplink.ErrNotMember):
		return http.StatusUnprocessableEntity
	case errors.Is(err, workspace.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := statusOf(err)
	body := errorBody{Error: err.Error()}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		if msg, ok := httpErr.Message.(string); ok {
			body.Error = msg
		} else {
			body.Error = http.StatusText(httpErr.Code)
		}
	}
	var validation form.ValidationError
	if errors.As(err, &validation) {
		body.Fields = validation.Fields
	}
	var violation domain.RuleViolationError
	if errors.As(err, &violation) {
		body.Violations = violation.Result.Violations
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
		body.Error = http.StatusText(status)
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, body)
}

// decodeJSON reads the request body into v with the router's JSON
// serializer. Only the body is bound: path and query parameters never land in
// v. An empty body leaves v unchanged.
func decodeJSON(c echo.Context, v any) error {
	err := c.Echo().JSONSerializer.Deserialize(c, v)
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	case errors.As(err, new(*echo.HTTPError)):
		return err
	}
	return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body: "+err.Error()).SetInternal(err)
}
