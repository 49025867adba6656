package hh

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrVacancyClosed signals a 403 whose body names invalid_vacancy or
	// resume_not_found: the vacancy is gone or the resume was deleted and
	// the dialogue cannot continue.
	ErrVacancyClosed = errors.New("hh: vacancy closed or resume gone")
	// ErrTokenRevoked signals that the recruiter's authorization was
	// revoked; all operations for that recruiter must stop until an
	// operator reauthorises.
	ErrTokenRevoked = errors.New("hh: recruiter authorization revoked")
	// ErrResponseGone signals a 404 on a single negotiation.
	ErrResponseGone = errors.New("hh: response not found")
	// ErrRateLimited signals a 403 with a non-JSON body; the caller should
	// back off and let the next cycle retry.
	ErrRateLimited = errors.New("hh: rate limited")
)

// APIError carries a non-2xx response for callers that need to inspect the
// body, e.g. the fatal-403 detection on send and move.
type APIError struct {
	Status int
	Body   []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hh: api status %d: %s", e.Status, truncate(string(e.Body), 300))
}

type apiErrorBody struct {
	OauthError  string `json:"oauth_error"`
	Description string `json:"description"`
	Errors      []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"errors"`
	ErrorDescription string `json:"error_description"`
}

func parseErrorBody(body []byte) (apiErrorBody, bool) {
	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return parsed, false
	}
	return parsed, true
}

// isFatal403 reports whether the error body names a terminal condition for
// the dialogue rather than an auth or rate problem.
func (b apiErrorBody) isFatal403() bool {
	for _, e := range b.Errors {
		if e.Value == "invalid_vacancy" || e.Value == "resume_not_found" {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
