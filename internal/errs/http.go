package errs

import "net/http"

// StatusCode maps a Kind to the HTTP status the front-end should return.
func StatusCode(kind Kind) int {
	switch kind {
	case KindMalformedAuth:
		return http.StatusBadRequest
	case KindAuthFailed:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindIO, KindBackend:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
