package sigv4

import (
	"net/http"

	"github.com/mehdy/anbar/internal/errs"
)

// Authenticator verifies a single request against a known secret key.
type Authenticator struct{}

// NewAuthenticator returns a stateless Authenticator.
func NewAuthenticator() *Authenticator {
	return &Authenticator{}
}

// VerifyRequest parses r's Authorization header and verifies its
// signature against secretAccessKey. It returns the parsed Auth on
// success for callers that want the access key without a second parse.
func (a *Authenticator) VerifyRequest(r *http.Request, secretAccessKey string) (Auth, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Auth{}, errs.New(errs.KindMalformedAuth, "missing authorization header")
	}

	auth, err := ParseAuthorizationHeader(header)
	if err != nil {
		return Auth{}, err
	}

	amzDate := r.Header.Get("x-amz-date")
	if amzDate == "" {
		amzDate = r.Header.Get("X-Amz-Date")
	}
	if amzDate == "" {
		return Auth{}, errs.New(errs.KindMalformedAuth, "missing x-amz-date header")
	}
	if r.Header.Get("x-amz-content-sha256") == "" {
		return Auth{}, errs.New(errs.KindMalformedAuth, "missing x-amz-content-sha256 header")
	}

	canonical := CanonicalRequest(r.Method, r.URL.Path, r.URL.RawQuery, r, auth.SignedHeaders)
	toSign := StringToSign(amzDate, auth.Date, auth.Region, canonical)
	signingKey := DeriveSigningKey(secretAccessKey, auth.Date, auth.Region)

	if !Verify(signingKey, toSign, auth.Signature) {
		return Auth{}, errs.New(errs.KindAuthFailed, "signature mismatch")
	}
	return auth, nil
}
