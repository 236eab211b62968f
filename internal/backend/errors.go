package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Error is a backend failure reduced to the message shown to the user
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(msg string) error {
	return &Error{Message: msg}
}

// Message returns the user-facing text for err
func Message(err error) string {
	if err == nil {
		return ""
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}

// transportError keeps the underlying network message without the
// method and URL prefix that net/http adds
func transportError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		if ue.Timeout() {
			return &Error{Message: "request timed out"}
		}
		return &Error{Message: ue.Err.Error()}
	}
	return &Error{Message: err.Error()}
}

type validationDetail struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// responseError builds the message for a non-2xx response. 422 bodies carry
// {"detail": [{"loc": [...], "msg": "..."}]}, other errors {"detail": "..."}.
func responseError(status int, body []byte) error {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		if status == http.StatusUnprocessableEntity {
			var details []validationDetail
			if err := json.Unmarshal(payload.Detail, &details); err == nil {
				msgs := make([]string, 0, len(details))
				for _, d := range details {
					loc := make([]string, 0, len(d.Loc))
					for _, l := range d.Loc {
						loc = append(loc, fmt.Sprint(l))
					}
					msgs = append(msgs, fmt.Sprintf("%s: %s", strings.Join(loc, "."), d.Msg))
				}
				if len(msgs) == 0 {
					return newError("Validation error")
				}
				return newError(strings.Join(msgs, ", "))
			}
		}

		var detail string
		if err := json.Unmarshal(payload.Detail, &detail); err == nil && detail != "" {
			return newError(detail)
		}
	}

	if status == http.StatusUnprocessableEntity {
		return newError("Validation error")
	}
	return newError(fmt.Sprintf("request failed with status %d", status))
}
