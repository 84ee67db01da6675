package sigv4

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedRequest(t *testing.T, secret, accessKey string) *http.Request {
	t.Helper()

	r, err := http.NewRequest(http.MethodGet, "http://example.com/bucket", nil)
	require.NoError(t, err)

	amzDate := time.Now().UTC().Format("20060102T150405Z")
	date := amzDate[:8]
	region := "us-east-1"

	r.Header.Set("x-amz-date", amzDate)
	r.Header.Set("x-amz-content-sha256", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")

	signedHeaders := []string{"host", "x-amz-content-sha256", "x-amz-date"}
	canonical := CanonicalRequest(r.Method, r.URL.Path, r.URL.RawQuery, r, signedHeaders)
	toSign := StringToSign(amzDate, date, region, canonical)
	signingKey := DeriveSigningKey(secret, date, region)
	mac := hmacSHA256(signingKey, []byte(toSign))

	header := "AWS4-HMAC-SHA256 Credential=" + accessKey + "/" + date + "/" + region + "/s3/aws4_request, SignedHeaders=host;x-amz-content-sha256;x-amz-date, Signature=" + hexEncode(mac)
	r.Header.Set("Authorization", header)
	return r
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}

func TestVerifyRequestAccepted(t *testing.T) {
	auth := NewAuthenticator()
	r := signedRequest(t, "AbC1Zxv", "ABC1234")

	parsed, err := auth.VerifyRequest(r, "AbC1Zxv")
	require.NoError(t, err)
	assert.Equal(t, "ABC1234", parsed.AccessKey)
}

func TestVerifyRequestWrongSecretFails(t *testing.T) {
	auth := NewAuthenticator()
	r := signedRequest(t, "AbC1Zxv", "ABC1234")

	_, err := auth.VerifyRequest(r, "wrong-secret")
	assert.Error(t, err)
}

func TestVerifyRequestMissingHeaders(t *testing.T) {
	auth := NewAuthenticator()
	r, err := http.NewRequest(http.MethodGet, "http://example.com/bucket", nil)
	require.NoError(t, err)

	_, err = auth.VerifyRequest(r, "secret")
	assert.Error(t, err)
}
