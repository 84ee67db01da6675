// Package dispatch is the thin orchestrator the HTTP Front-End calls: it
// parses auth material, looks up the user, verifies the signature,
// classifies the operation, invokes the Storage Engine, and returns a
// typed Result for the front-end to serialize.
package dispatch

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/mehdy/anbar/internal/catalog"
	"github.com/mehdy/anbar/internal/classify"
	"github.com/mehdy/anbar/internal/engine"
	"github.com/mehdy/anbar/internal/errs"
	"github.com/mehdy/anbar/internal/sigv4"
)

// Hooks lets the Dispatcher report each call out-of-band (audit log,
// metrics) without depending on those packages directly. OnCall is
// optional; it runs synchronously at the end of each Dispatch call and
// cannot fail the request.
type Hooks struct {
	OnCall func(record CallRecord)
}

// CallRecord describes one dispatched operation, for Hooks.OnCall.
type CallRecord struct {
	Operation classify.Kind
	Bucket    string
	Key       string
	UserID    string
	Err       error
	Duration  time.Duration
}

// AnonymousConfig lets operators accept unsigned requests as a single
// fixed user, for diagnostic access from clients that cannot sign. The
// zero value disables it: every request must carry a valid Authorization
// header.
type AnonymousConfig struct {
	Allow  bool
	UserID string
}

// Dispatcher ties the Authenticator, Operation Classifier, and Storage
// Engine together.
type Dispatcher struct {
	engine *engine.Engine
	auth   *sigv4.Authenticator
	hooks  Hooks
	anon   AnonymousConfig
}

// New builds a Dispatcher over eng. hooks and anon may be the zero value.
func New(eng *engine.Engine, hooks Hooks, anon AnonymousConfig) *Dispatcher {
	return &Dispatcher{engine: eng, auth: sigv4.NewAuthenticator(), hooks: hooks, anon: anon}
}

// Result is what the Dispatcher hands back for the front-end to render.
// Only the payload fields annotated with Operation.Kind's variant are
// populated; the others are left at their zero values.
type Result struct {
	Operation classify.Kind
	Bucket    string           // ListObjects
	Buckets   []catalog.Bucket // ListBuckets
	Owner     catalog.User     // ListBuckets / ListObjects
	Objects   []catalog.Object // ListObjects
	Object    catalog.Object   // GetObject / PutObject
	Body      []byte           // GetObject
	ETag      string           // PutObject
}

// Dispatch authenticates r, classifies it, and invokes the Storage Engine.
// body is the already-accumulated request body (the front-end streams it
// to a contiguous buffer before calling Dispatch; large objects are out of
// scope, so no bound is imposed here).
func (d *Dispatcher) Dispatch(ctx context.Context, r *http.Request, body []byte) (Result, error) {
	start := time.Now()

	user, err := d.authenticate(ctx, r)
	if err != nil {
		d.report(classify.KindListBuckets, "", "", "", err, start)
		return Result{}, err
	}

	op := classify.Classify(r.Method, r.URL.Path)
	result, err := d.invoke(ctx, op, user, body)
	d.report(op.Kind, op.Bucket, op.Key, user.ID, err, start)
	return result, err
}

func (d *Dispatcher) authenticate(ctx context.Context, r *http.Request) (catalog.User, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if d.anon.Allow {
			return d.engine.FindUserByID(ctx, d.anon.UserID)
		}
		return catalog.User{}, errs.New(errs.KindMalformedAuth, "missing authorization header")
	}

	auth, err := sigv4.ParseAuthorizationHeader(header)
	if err != nil {
		return catalog.User{}, err
	}

	user, err := d.engine.FindUser(ctx, auth.AccessKey)
	if err != nil {
		return catalog.User{}, errs.New(errs.KindAuthFailed, "unknown access key")
	}

	if _, err := d.auth.VerifyRequest(r, user.SecretAccessKey); err != nil {
		return catalog.User{}, err
	}
	return user, nil
}

func (d *Dispatcher) invoke(ctx context.Context, op classify.Operation, user catalog.User, body []byte) (Result, error) {
	switch op.Kind {
	case classify.KindListBuckets:
		buckets, err := d.engine.ListBuckets(ctx, user.ID)
		if err != nil {
			return Result{}, err
		}
		return Result{Operation: op.Kind, Buckets: buckets, Owner: user}, nil

	case classify.KindListObjects:
		objects, err := d.engine.ListObjects(ctx, op.Bucket)
		if err != nil {
			return Result{}, err
		}
		return Result{Operation: op.Kind, Bucket: op.Bucket, Owner: user, Objects: objects}, nil

	case classify.KindGetObject:
		meta, payload, err := d.engine.GetObject(ctx, op.Bucket, op.Key)
		if err != nil {
			return Result{}, err
		}
		return Result{Operation: op.Kind, Object: meta, Body: payload}, nil

	case classify.KindCreateBucket:
		_, err := d.engine.CreateBucket(ctx, user.ID, op.Bucket)
		if err != nil {
			return Result{}, err
		}
		return Result{Operation: op.Kind}, nil

	case classify.KindPutObject:
		obj, err := d.engine.PutObject(ctx, user, op.Bucket, op.Key, body)
		if err != nil {
			return Result{}, err
		}
		sum := md5.Sum(body)
		return Result{Operation: op.Kind, Object: obj, ETag: hex.EncodeToString(sum[:])}, nil

	case classify.KindDeleteBucket:
		if err := d.engine.DeleteBucket(ctx, op.Bucket); err != nil {
			return Result{}, err
		}
		return Result{Operation: op.Kind}, nil

	case classify.KindDeleteObject:
		if err := d.engine.DeleteObject(ctx, op.Bucket, op.Key); err != nil {
			return Result{}, err
		}
		return Result{Operation: op.Kind}, nil

	default:
		return Result{}, errs.New(errs.KindMalformedAuth, "unrecognized operation")
	}
}

func (d *Dispatcher) report(kind classify.Kind, bucket, key, userID string, err error, start time.Time) {
	if d.hooks.OnCall == nil {
		return
	}
	d.hooks.OnCall(CallRecord{
		Operation: kind,
		Bucket:    bucket,
		Key:       key,
		UserID:    userID,
		Err:       err,
		Duration:  time.Since(start),
	})
}
