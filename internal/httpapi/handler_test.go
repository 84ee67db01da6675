package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mehdy/anbar/internal/blobstore"
	"github.com/mehdy/anbar/internal/catalog"
	"github.com/mehdy/anbar/internal/classify"
	"github.com/mehdy/anbar/internal/dispatch"
	"github.com/mehdy/anbar/internal/engine"
	"github.com/mehdy/anbar/internal/kvstore"
	"github.com/mehdy/anbar/internal/sigv4"
	"github.com/stretchr/testify/require"
)

const (
	testUserID    = "u-mehdy"
	testAccessKey = "ABC1234"
	testSecret    = "AbC1Zxv"
)

// testServer wires a full Dispatcher+Handler stack over real temp-dir-backed
// Catalog and Blob Layer stores, mirroring how cmd/anbar assembles them.
type testServer struct {
	srv     *httptest.Server
	baseDir string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dir := t.TempDir()
	kv, err := kvstore.OpenPebble(filepath.Join(dir, ".anbar.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	blobs, err := blobstore.New(dir)
	require.NoError(t, err)

	cat := catalog.New(kv)
	require.NoError(t, cat.CreateUser(t.Context(), catalog.User{
		ID: testUserID, DisplayName: "mehdy", AccessKey: testAccessKey, SecretAccessKey: testSecret,
	}))

	eng := engine.New(cat, blobs)
	disp := dispatch.New(eng, dispatch.Hooks{}, dispatch.AnonymousConfig{})
	h := New(disp)

	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, baseDir: dir}
}

// signedRequest builds a SigV4-signed request against the test server using
// the given access key/secret, emulating a real anbar client.
func signedRequest(t *testing.T, srv *httptest.Server, method, path, accessKey, secret string, body []byte) *http.Request {
	t.Helper()

	var reader io.Reader
	if body != nil {
		reader = strings.NewReader(string(body))
	}
	r, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)

	amzDate := time.Now().UTC().Format("20060102T150405Z")
	date := amzDate[:8]
	region := "us-east-1"
	contentHash := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	r.Header.Set("x-amz-date", amzDate)
	r.Header.Set("x-amz-content-sha256", contentHash)

	signedHeaders := []string{"host", "x-amz-content-sha256", "x-amz-date"}
	canonical := sigv4.CanonicalRequest(r.Method, r.URL.Path, r.URL.RawQuery, r, signedHeaders)
	toSign := sigv4.StringToSign(amzDate, date, region, canonical)
	signingKey := sigv4.DeriveSigningKey(secret, date, region)
	mac := hmac.New(sha256.New, signingKey)
	mac.Write([]byte(toSign))
	signature := hex.EncodeToString(mac.Sum(nil))

	header := "AWS4-HMAC-SHA256 Credential=" + accessKey + "/" + date + "/" + region +
		"/s3/aws4_request, SignedHeaders=host;x-amz-content-sha256;x-amz-date, Signature=" + signature
	r.Header.Set("Authorization", header)
	return r
}

func TestListBucketsSignedRequestSucceeds(t *testing.T) {
	ts := newTestServer(t)

	r := signedRequest(t, ts.srv, http.MethodGet, "/", testAccessKey, testSecret, nil)
	resp, err := http.DefaultClient.Do(r)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(out), "ListAllMyBucketsResult")
}

func TestPutGetRoundTripETag(t *testing.T) {
	ts := newTestServer(t)

	createBucket := signedRequest(t, ts.srv, http.MethodPut, "/bucket-1", testAccessKey, testSecret, nil)
	cbResp, err := http.DefaultClient.Do(createBucket)
	require.NoError(t, err)
	cbResp.Body.Close()
	require.Equal(t, http.StatusOK, cbResp.StatusCode)

	putObj := signedRequest(t, ts.srv, http.MethodPut, "/bucket-1/key", testAccessKey, testSecret, []byte("world"))
	poResp, err := http.DefaultClient.Do(putObj)
	require.NoError(t, err)
	defer poResp.Body.Close()
	require.Equal(t, http.StatusOK, poResp.StatusCode)
	require.Equal(t, `"7d793037a0760186574b0282f2f435e7"`, poResp.Header.Get("ETag"))

	getObj := signedRequest(t, ts.srv, http.MethodGet, "/bucket-1/key", testAccessKey, testSecret, nil)
	getResp, err := http.DefaultClient.Do(getObj)
	require.NoError(t, err)
	defer getResp.Body.Close()
	body, err := io.ReadAll(getResp.Body)
	require.NoError(t, err)
	require.Equal(t, "world", string(body))

	lastModified := getResp.Header.Get("Last-Modified")
	require.NotEmpty(t, lastModified)
	_, err = time.Parse(http.TimeFormat, lastModified)
	require.NoError(t, err, "Last-Modified must be RFC 1123 GMT")
}

func TestBadSignatureRejectedAndObjectNotCreated(t *testing.T) {
	ts := newTestServer(t)

	createBucket := signedRequest(t, ts.srv, http.MethodPut, "/bucket-1", testAccessKey, testSecret, nil)
	cbResp, err := http.DefaultClient.Do(createBucket)
	require.NoError(t, err)
	cbResp.Body.Close()

	badPut := signedRequest(t, ts.srv, http.MethodPut, "/bucket-1/key", testAccessKey, "wrong-secret", []byte("world"))
	resp, err := http.DefaultClient.Do(badPut)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, err = os.Stat(filepath.Join(ts.baseDir, "bucket-1", "key"))
	require.True(t, os.IsNotExist(err), "object must not have been created after a rejected signature")
}

func TestDeleteBucketRemovesDirectoryFromDisk(t *testing.T) {
	ts := newTestServer(t)

	createBucket := signedRequest(t, ts.srv, http.MethodPut, "/bucket-1", testAccessKey, testSecret, nil)
	cbResp, err := http.DefaultClient.Do(createBucket)
	require.NoError(t, err)
	cbResp.Body.Close()

	require.DirExists(t, filepath.Join(ts.baseDir, "bucket-1"))

	del := signedRequest(t, ts.srv, http.MethodDelete, "/bucket-1", testAccessKey, testSecret, nil)
	resp, err := http.DefaultClient.Do(del)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err = os.Stat(filepath.Join(ts.baseDir, "bucket-1"))
	require.True(t, os.IsNotExist(err), "bucket directory must be removed from disk")

	// Listing the deleted bucket surfaces an empty result, not an error.
	list := signedRequest(t, ts.srv, http.MethodGet, "/bucket-1", testAccessKey, testSecret, nil)
	listResp, err := http.DefaultClient.Do(list)
	require.NoError(t, err)
	defer listResp.Body.Close()
	require.Equal(t, http.StatusOK, listResp.StatusCode)
	out, err := io.ReadAll(listResp.Body)
	require.NoError(t, err)
	require.NotContains(t, string(out), "<Contents>")
}

func TestDuplicateBucketCreationConflict(t *testing.T) {
	ts := newTestServer(t)

	first := signedRequest(t, ts.srv, http.MethodPut, "/bucket-1", testAccessKey, testSecret, nil)
	firstResp, err := http.DefaultClient.Do(first)
	require.NoError(t, err)
	firstResp.Body.Close()
	require.Equal(t, http.StatusOK, firstResp.StatusCode)

	second := signedRequest(t, ts.srv, http.MethodPut, "/bucket-1", testAccessKey, testSecret, nil)
	secondResp, err := http.DefaultClient.Do(second)
	require.NoError(t, err)
	defer secondResp.Body.Close()
	require.Equal(t, http.StatusConflict, secondResp.StatusCode)
}

func TestListObjectsReflectsTwoPuts(t *testing.T) {
	ts := newTestServer(t)

	createBucket := signedRequest(t, ts.srv, http.MethodPut, "/bucket-1", testAccessKey, testSecret, nil)
	cbResp, err := http.DefaultClient.Do(createBucket)
	require.NoError(t, err)
	cbResp.Body.Close()

	for _, key := range []string{"key-1", "key-2"} {
		put := signedRequest(t, ts.srv, http.MethodPut, "/bucket-1/"+key, testAccessKey, testSecret, []byte("data-"+key))
		resp, err := http.DefaultClient.Do(put)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	list := signedRequest(t, ts.srv, http.MethodGet, "/bucket-1", testAccessKey, testSecret, nil)
	resp, err := http.DefaultClient.Do(list)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Contains(t, string(out), "key-1")
	require.Contains(t, string(out), "key-2")
}

func TestExtraRoutesAreNotShadowedByCatchAll(t *testing.T) {
	dir := t.TempDir()
	kv, err := kvstore.OpenPebble(filepath.Join(dir, ".anbar.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	blobs, err := blobstore.New(dir)
	require.NoError(t, err)

	disp := dispatch.New(engine.New(catalog.New(kv), blobs), dispatch.Hooks{}, dispatch.AnonymousConfig{})
	h := New(disp)

	probe := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	srv := httptest.NewServer(h.Router(Route{Path: "/metrics", Handler: probe}))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusTeapot, resp.StatusCode, "/metrics must be served by the mounted handler, not the S3 catch-all")
}

// sanity check that the operation classifier maps two of the routes this
// test file exercises to the expected operation kinds.
func TestClassifyMatchesExercisedRoutes(t *testing.T) {
	require.Equal(t, classify.KindListBuckets, classify.Classify(http.MethodGet, "/").Kind)
	require.Equal(t, classify.KindPutObject, classify.Classify(http.MethodPut, "/bucket-1/key").Kind)
}
