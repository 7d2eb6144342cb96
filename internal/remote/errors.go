package remote

import (
	"fmt"
	"time"
)

// StatusError: удаленный API ответил 5xx или 429. Ответ сохраняется, чтобы прокси отдал его как есть.
type StatusError struct {
	Response   *Response
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote api responded %d", e.Response.StatusCode)
}
