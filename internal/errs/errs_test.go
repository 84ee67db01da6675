package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfUnwrapsThroughWrapping(t *testing.T) {
	inner := New(KindNotFound, "object not found")
	wrapped := fmt.Errorf("handling request: %w", inner)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.Equal(t, KindNotFound, KindOf(inner))
}

func TestKindOfForeignErrorDefaultsToIO(t *testing.T) {
	assert.Equal(t, KindIO, KindOf(errors.New("disk on fire")))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(KindBackend, "kv write", cause)

	assert.Equal(t, cause, errors.Unwrap(err))
	assert.Contains(t, err.Error(), "Backend")
	assert.Contains(t, err.Error(), "underlying")
}

func TestStatusCodeTable(t *testing.T) {
	cases := map[Kind]int{
		KindMalformedAuth: http.StatusBadRequest,
		KindAuthFailed:    http.StatusUnauthorized,
		KindNotFound:      http.StatusNotFound,
		KindConflict:      http.StatusConflict,
		KindIO:            http.StatusInternalServerError,
		KindBackend:       http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, StatusCode(kind), "kind %s", kind)
	}
}
