// Package engine is the Storage Engine: the only component that composes
// Catalog and Blob Layer, fixing the order of the two substores per
// operation and serializing every mutation behind a single process-wide
// lock.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/mehdy/anbar/internal/blobstore"
	"github.com/mehdy/anbar/internal/catalog"
	"github.com/mehdy/anbar/internal/errs"
)

// Engine owns all mutation of User/Bucket/Object state. Its mutating
// operations are serialized by mu, giving clients put-then-get
// read-your-writes: a total order across the whole engine. A per-bucket
// lock scheme would also satisfy the invariants, but a single global lock
// is simpler to audit.
type Engine struct {
	mu      sync.Mutex
	catalog *catalog.Catalog
	blobs   *blobstore.Store
	nowFn   func() time.Time
}

// New composes c and b into an Engine.
func New(c *catalog.Catalog, b *blobstore.Store) *Engine {
	return &Engine{catalog: c, blobs: b, nowFn: time.Now}
}

// NewUser is the administrative create-user operation. It is not reachable
// from the HTTP surface.
func (e *Engine) NewUser(ctx context.Context, u catalog.User) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalog.CreateUser(ctx, u)
}

// FindUser returns the user owning access key ak.
func (e *Engine) FindUser(ctx context.Context, accessKey string) (catalog.User, error) {
	// Reads do not need the write lock's full exclusivity in principle,
	// but the engine lock is the single serialization point for the
	// whole store, so reads take it too.
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalog.GetUserByAccessKey(ctx, accessKey)
}

// FindUserByID returns the user with the given ID, for the anonymous-
// access bypass, which names its fixed user by ID rather than access key.
func (e *Engine) FindUserByID(ctx context.Context, userID string) (catalog.User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalog.GetUser(ctx, userID)
}

// CreateBucket ensures the bucket directory exists (FS first) and then
// registers the bucket in the Catalog. If FS succeeds but the Catalog
// write fails, the dangling directory is harmless; the reverse ordering
// would leave a Catalog entry with no backing directory.
func (e *Engine) CreateBucket(ctx context.Context, ownerID, name string) (catalog.Bucket, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.blobs.EnsureBucketDir(ctx, name); err != nil {
		return catalog.Bucket{}, err
	}

	b := catalog.Bucket{
		Name:         name,
		OwnerID:      ownerID,
		CreationDate: e.nowFn(),
	}
	if err := e.catalog.CreateBucket(ctx, b); err != nil {
		return catalog.Bucket{}, err
	}
	return b, nil
}

// ListBuckets is a pure Catalog read.
func (e *Engine) ListBuckets(ctx context.Context, ownerID string) ([]catalog.Bucket, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalog.BucketsOf(ctx, ownerID)
}

// ListObjects is a pure Catalog read.
func (e *Engine) ListObjects(ctx context.Context, bucket string) ([]catalog.Object, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalog.ObjectsOf(ctx, bucket)
}

// PutObject writes the payload to the Blob Layer (with fsync) before
// advertising the object's existence in the Catalog: durability of the
// payload precedes the metadata that lets readers find it.
func (e *Engine) PutObject(ctx context.Context, owner catalog.User, bucket, key string, body []byte) (catalog.Object, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.blobs.WriteBlob(ctx, bucket, key, body); err != nil {
		return catalog.Object{}, err
	}

	o := catalog.Object{
		Key:          key,
		Bucket:       bucket,
		OwnerID:      owner.ID,
		Size:         int64(len(body)),
		LastModified: e.nowFn(),
	}
	if err := e.catalog.UpsertObject(ctx, o); err != nil {
		return catalog.Object{}, err
	}
	return o, nil
}

// GetObject reads the payload from the Blob Layer and the metadata from
// the Catalog. Both must succeed; either failing is reported as NotFound.
func (e *Engine) GetObject(ctx context.Context, bucket, key string) (catalog.Object, []byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	body, err := e.blobs.ReadBlob(ctx, bucket, key)
	if err != nil {
		return catalog.Object{}, nil, asNotFound(err)
	}
	meta, err := e.catalog.FindObject(ctx, bucket, key)
	if err != nil {
		return catalog.Object{}, nil, asNotFound(err)
	}
	return meta, body, nil
}

// DeleteObject removes the file then the Catalog entry.
func (e *Engine) DeleteObject(ctx context.Context, bucket, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.blobs.RemoveBlob(ctx, bucket, key); err != nil {
		return err
	}
	return e.catalog.DeleteObject(ctx, bucket, key)
}

// DeleteBucket removes the directory tree then the bucket and its object
// set (which transitively destroys every Object in it).
func (e *Engine) DeleteBucket(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.blobs.RemoveBucketDir(ctx, name); err != nil {
		return err
	}
	return e.catalog.DeleteBucket(ctx, name)
}

func asNotFound(err error) error {
	if errs.KindOf(err) == errs.KindNotFound {
		return err
	}
	return errs.Wrap(errs.KindNotFound, "object not found", err)
}
