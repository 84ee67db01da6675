// Package sigv4 is the SigV4 Authenticator: it parses the Authorization
// header, derives the signing key, builds the canonical request and
// string-to-sign, and verifies the HMAC in constant time. It recognizes
// only the AWS4-HMAC-SHA256 scheme.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"regexp"
	"strings"

	"github.com/mehdy/anbar/internal/errs"
)

// authHeaderPattern anchors the exact SigV4 grammar from the component
// design: any deviation — extra whitespace variants aside — fails to
// match and the caller reports MalformedAuth. Unlike a lenient
// split-on-comma parser, an anchored regexp cannot silently accept a
// header that is missing a required field.
var authHeaderPattern = regexp.MustCompile(
	`^AWS4-HMAC-SHA256 Credential=([^/]+)/(\d{8})/([^/]+)/s3/aws4_request, ?SignedHeaders=([a-z0-9;\-]+), ?Signature=([0-9a-f]+)$`,
)

// Auth is the parsed Authorization header.
type Auth struct {
	AccessKey     string
	Date          string // YYYYMMDD
	Region        string
	SignedHeaders []string
	Signature     string
}

// ParseAuthorizationHeader parses header per the AWS4-HMAC-SHA256 grammar.
// Any deviation from the grammar fails with KindMalformedAuth.
func ParseAuthorizationHeader(header string) (Auth, error) {
	m := authHeaderPattern.FindStringSubmatch(header)
	if m == nil {
		return Auth{}, errs.New(errs.KindMalformedAuth, "authorization header does not match the SigV4 grammar")
	}
	return Auth{
		AccessKey:     m[1],
		Date:          m[2],
		Region:        m[3],
		SignedHeaders: strings.Split(m[4], ";"),
		Signature:     m[5],
	}, nil
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// DeriveSigningKey runs the chained HMAC-SHA256 derivation:
//
//	kDate    = HMAC("AWS4" + secret, date)
//	kRegion  = HMAC(kDate, region)
//	kService = HMAC(kRegion, "s3")
//	kSigning = HMAC(kService, "aws4_request")
func DeriveSigningKey(secretAccessKey, date, region string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secretAccessKey), []byte(date))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte("s3"))
	kSigning := hmacSHA256(kService, []byte("aws4_request"))
	return kSigning
}

// CanonicalRequest builds the LF-joined canonical request: method, raw
// path, raw query string, each signed header as "name:trimmed-value"
// joined by LF, a blank line, the signed-headers list joined by ';', and
// the x-amz-content-sha256 header value.
func CanonicalRequest(method, path, rawQuery string, r *http.Request, signedHeaders []string) string {
	var headerLines []string
	for _, name := range signedHeaders {
		lower := strings.ToLower(strings.TrimSpace(name))
		var value string
		if lower == "host" {
			value = r.Host
		} else {
			value = r.Header.Get(lower)
		}
		headerLines = append(headerLines, lower+":"+strings.TrimSpace(value))
	}

	parts := []string{
		strings.ToUpper(method),
		path,
		rawQuery,
		strings.Join(headerLines, "\n"),
		"",
		strings.Join(signedHeaders, ";"),
		r.Header.Get("x-amz-content-sha256"),
	}
	return strings.Join(parts, "\n")
}

// StringToSign builds:
//
//	AWS4-HMAC-SHA256\n<x-amz-date>\n<date>/<region>/s3/aws4_request\n<hex sha256 of canonical request>
func StringToSign(amzDate, date, region, canonicalRequest string) string {
	hash := sha256.Sum256([]byte(canonicalRequest))
	return strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		date + "/" + region + "/s3/aws4_request",
		hex.EncodeToString(hash[:]),
	}, "\n")
}

// Verify computes HMAC(signingKey, stringToSign), hex-encodes it, and
// compares it to want in constant time — the only place in the
// authenticator where timing matters.
func Verify(signingKey []byte, stringToSign, want string) bool {
	got := hex.EncodeToString(hmacSHA256(signingKey, []byte(stringToSign)))
	gotBytes, gotErr := hex.DecodeString(got)
	wantBytes, wantErr := hex.DecodeString(want)
	if gotErr != nil || wantErr != nil || len(gotBytes) != len(wantBytes) {
		return false
	}
	return subtle.ConstantTimeCompare(gotBytes, wantBytes) == 1
}
