// Package httpapi is the HTTP Front-End: it decodes requests, calls the
// Dispatcher, and renders a Result (or an error) back onto the wire in the
// subset of the S3 XML wire format this server implements.
package httpapi

import (
	"encoding/xml"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/mehdy/anbar/internal/classify"
	"github.com/mehdy/anbar/internal/dispatch"
	"github.com/mehdy/anbar/internal/errs"
	"github.com/mehdy/anbar/internal/logging"
	"github.com/mehdy/anbar/internal/middleware"
)

// maxBody bounds the size of a request body this server will buffer into
// memory; anbar has no multipart/streaming upload path, so every PutObject
// body must fit comfortably in RAM.
const maxBody = 512 << 20 // 512MiB

// Handler renders Dispatcher results as HTTP responses.
type Handler struct {
	dispatcher *dispatch.Dispatcher
}

// New builds a Handler over d.
func New(d *dispatch.Dispatcher) *Handler {
	return &Handler{dispatcher: d}
}

// Route is an extra, non-S3 endpoint (metrics, diagnostics) mounted ahead
// of the S3 catch-all. mux matches routes in registration order, so these
// must be registered before the PathPrefix("/") route or they would be
// shadowed by it.
type Route struct {
	Path    string
	Handler http.Handler
}

// Router returns the top-level mux.Router: any extra routes first, then
// the S3 API catch-all, with recovery, request logging, and CORS applied
// to everything.
func (h *Handler) Router(extra ...Route) *mux.Router {
	r := mux.NewRouter()
	r.Use(handlers.RecoveryHandler())
	r.Use(middleware.RequestLogging)
	r.Use(middleware.CORS)
	for _, e := range extra {
		r.Handle(e.Path, e.Handler).Methods(http.MethodGet)
	}
	r.PathPrefix("/").HandlerFunc(h.serve).Methods(http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodOptions)
	return r
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		h.writeError(w, r, errs.New(errs.KindIO, "failed to read request body"))
		return
	}
	if len(body) > maxBody {
		h.writeError(w, r, errs.New(errs.KindMalformedAuth, "request body too large"))
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), r, body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.render(w, result)
}

func (h *Handler) render(w http.ResponseWriter, result dispatch.Result) {
	switch result.Operation {
	case classify.KindListBuckets:
		out := listAllMyBucketsResult{
			Owner: owner{ID: result.Owner.ID, DisplayName: result.Owner.DisplayName},
		}
		out.Buckets.Bucket = make([]bucketInfo, len(result.Buckets))
		for i, b := range result.Buckets {
			out.Buckets.Bucket[i] = bucketInfo{Name: b.Name, CreationDate: b.CreationDate.UTC().Format(time.RFC3339)}
		}
		writeXML(w, http.StatusOK, out)

	case classify.KindListObjects:
		out := listBucketResult{Name: result.Bucket, Contents: make([]objectInfo, len(result.Objects))}
		for i, o := range result.Objects {
			out.Contents[i] = objectInfo{
				Key:          o.Key,
				LastModified: o.LastModified.UTC().Format(time.RFC3339),
				Size:         o.Size,
				Owner:        owner{ID: o.OwnerID, DisplayName: result.Owner.DisplayName},
			}
		}
		writeXML(w, http.StatusOK, out)

	case classify.KindGetObject:
		w.Header().Set("Last-Modified", result.Object.LastModified.UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", strconv.Itoa(len(result.Body)))
		w.WriteHeader(http.StatusOK)
		w.Write(result.Body)

	case classify.KindCreateBucket:
		w.WriteHeader(http.StatusOK)

	case classify.KindPutObject:
		w.Header().Set("ETag", "\""+result.ETag+"\"")
		w.WriteHeader(http.StatusOK)

	case classify.KindDeleteBucket, classify.KindDeleteObject:
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)
	writeXML(w, errs.StatusCode(kind), apiError{
		Code:      errorCode(kind),
		Message:   err.Error(),
		Resource:  r.URL.Path,
		RequestID: logging.RequestIDFrom(r.Context()),
	})
}

func errorCode(kind errs.Kind) string {
	switch kind {
	case errs.KindMalformedAuth:
		return "MalformedAuthorization"
	case errs.KindAuthFailed:
		return "SignatureDoesNotMatch"
	case errs.KindNotFound:
		return "NoSuchKey"
	case errs.KindConflict:
		return "BucketAlreadyExists"
	default:
		return "InternalError"
	}
}

func writeXML(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Date", time.Now().UTC().Format(http.TimeFormat))
	w.WriteHeader(status)
	_ = xml.NewEncoder(w).Encode(v)
}
