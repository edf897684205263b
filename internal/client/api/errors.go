package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/opentrace-console/internal/common"
)

var (
	// ErrUnavailable wraps transport failures: the backend could not be
	// reached or the request timed out.
	ErrUnavailable = errors.New("server unavailable")

	// ErrUnauthorized is returned for every HTTP 401.
	ErrUnauthorized = common.ErrorUnauthorized
)

// Error is a non-2xx, non-401 response. Detail holds the backend's
// human-readable "detail" field when one was sent.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api error: %d: %s", e.Status, e.Detail)
}

// Is makes a 404 match common.ErrorNotFound and any 5xx match
// common.ErrorInternal.
func (e *Error) Is(target error) bool {
	switch target {
	case common.ErrorNotFound:
		return e.Status == http.StatusNotFound
	case common.ErrorInternal:
		return e.Status >= http.StatusInternalServerError
	}
	return false
}

// Detail extracts the backend detail from err, if err carries one. 401
// responses are included.
func Detail(err error) (string, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail, true
	}
	var authErr *unauthorizedError
	if errors.As(err, &authErr) && authErr.detail != "" {
		return authErr.detail, true
	}
	return "", false
}

// parseDetail reads the error envelope. FastAPI sends either
// {"detail": "text"} or {"detail": [{"msg": "..."}, ...]} for validation
// failures.
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		return text
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
