// Package diag implements a small diagnostics surface, separate from the
// S3 API: a single status endpoint gated by HTTP Basic Auth against a
// bcrypt password hash, issuing a short-lived JWT session cookie for
// follow-up requests. It never mutates bucket or object data and never
// requires SigV4 — it only reports process health, catalog counts, and
// disk usage.
package diag

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/mehdy/anbar/internal/catalog"
)

const sessionCookie = "anbar_diag_session"
const sessionTTL = 15 * time.Minute

// BuildInfo identifies the running binary, for the status payload.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// Handler serves /_anbar/status.
type Handler struct {
	passwordHash []byte
	signingKey   []byte
	startedAt    time.Time
	build        BuildInfo
	catalog      *catalog.Catalog
	dataDir      string
}

// NewHandler builds a diagnostics Handler. passwordHash is a bcrypt hash
// produced by HashPassword, and signingKey signs the session JWT. cat and
// dataDir back the user/bucket/object counts and disk-free sample; build
// identifies the running binary.
func NewHandler(passwordHash, signingKey []byte, cat *catalog.Catalog, dataDir string, build BuildInfo) *Handler {
	return &Handler{
		passwordHash: passwordHash,
		signingKey:   signingKey,
		startedAt:    time.Now(),
		build:        build,
		catalog:      cat,
		dataDir:      dataDir,
	}
}

// HashPassword bcrypt-hashes password for storage, e.g. by the
// "admin set-password" CLI command.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

type claims struct {
	jwt.RegisteredClaims
}

// status is the /_anbar/status response body: build info, uptime,
// catalog counts, and disk usage. Counts and disk usage are best-effort —
// a sampling failure is logged and reported as zero rather than failing
// the whole request, matching the audit ledger's fire-and-forget stance
// on non-critical telemetry.
type status struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	BuildDate     string `json:"build_date"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Users         int    `json:"users"`
	Buckets       int    `json:"buckets"`
	Objects       int    `json:"objects"`
	DiskFreeBytes uint64 `json:"disk_free_bytes"`
}

// ServeHTTP authenticates the request either via a valid session cookie or
// via HTTP Basic Auth, issuing a fresh cookie on the latter, and responds
// with the status payload.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="anbar-diagnostics"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	resp := status{
		Status:        "ok",
		Version:       h.build.Version,
		Commit:        h.build.Commit,
		BuildDate:     h.build.Date,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}

	if stats, err := h.catalog.Stats(r.Context()); err != nil {
		logrus.WithError(err).Warn("diag: failed to sample catalog counts")
	} else {
		resp.Users = stats.Users
		resp.Buckets = stats.Buckets
		resp.Objects = stats.Objects
	}

	if usage, err := disk.Usage(h.dataDir); err != nil {
		logrus.WithError(err).Warn("diag: failed to sample disk usage")
	} else {
		resp.DiskFreeBytes = usage.Free
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) authenticated(w http.ResponseWriter, r *http.Request) bool {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if h.validSession(cookie.Value) {
			return true
		}
	}

	_, password, ok := r.BasicAuth()
	if !ok {
		return false
	}
	if bcrypt.CompareHashAndPassword(h.passwordHash, []byte(password)) != nil {
		return false
	}

	token, err := h.issueSession()
	if err == nil {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    token,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
			Expires:  time.Now().Add(sessionTTL),
		})
	}
	return true
}

func (h *Handler) issueSession() (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
			Subject:   "anbar-diag",
		},
	})
	return token.SignedString(h.signingKey)
}

func (h *Handler) validSession(raw string) bool {
	parsed, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return h.signingKey, nil
	})
	return err == nil && parsed.Valid
}
