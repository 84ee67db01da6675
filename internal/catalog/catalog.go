package catalog

import (
	"context"
	"encoding/json"

	"github.com/mehdy/anbar/internal/errs"
	"github.com/mehdy/anbar/internal/kvstore"
)

// The five logical KV partitions ("trees") the Catalog is built on.
const (
	treeAccessKeyToUserID = "ak_to_uid"
	treeUserIDToUser      = "uid_to_user"
	treeUserIDToBuckets   = "uid_to_buckets"
	treeNameToBucket      = "name_to_bucket"
	treeNameToObjects     = "name_to_objects"
)

// Catalog is the subsystem that maps User/Bucket/Object to KV records.
type Catalog struct {
	kv kvstore.KV
}

// New wraps kv as a Catalog.
func New(kv kvstore.KV) *Catalog {
	return &Catalog{kv: kv}
}

// CreateUser fails with Conflict if a user with this ID already exists.
// On success it writes uid_to_user, seeds uid_to_buckets to an empty list,
// and writes ak_to_uid — the three writes the data model treats as one
// logical operation (see Storage Engine's locking for atomicity).
func (c *Catalog) CreateUser(ctx context.Context, u User) error {
	if _, err := c.kv.Get(ctx, treeUserIDToUser, u.ID); err == nil {
		return errs.New(errs.KindConflict, "user already exists")
	} else if err != kvstore.ErrNotFound {
		return errs.Wrap(errs.KindBackend, "check existing user", err)
	}

	userBytes, err := json.Marshal(u)
	if err != nil {
		return errs.Wrap(errs.KindIO, "encode user", err)
	}
	if err := c.kv.Put(ctx, treeUserIDToUser, u.ID, userBytes); err != nil {
		return errs.Wrap(errs.KindBackend, "write user", err)
	}

	emptyBuckets, _ := json.Marshal([]Bucket{})
	if err := c.kv.Put(ctx, treeUserIDToBuckets, u.ID, emptyBuckets); err != nil {
		return errs.Wrap(errs.KindBackend, "seed bucket list", err)
	}

	if err := c.kv.Put(ctx, treeAccessKeyToUserID, u.AccessKey, []byte(u.ID)); err != nil {
		return errs.Wrap(errs.KindBackend, "write access key index", err)
	}
	return nil
}

// GetUserByAccessKey returns the User owning access key ak, or NotFound.
func (c *Catalog) GetUserByAccessKey(ctx context.Context, ak string) (User, error) {
	uid, err := c.kv.Get(ctx, treeAccessKeyToUserID, ak)
	if err == kvstore.ErrNotFound {
		return User{}, errs.New(errs.KindNotFound, "no user for access key")
	} else if err != nil {
		return User{}, errs.Wrap(errs.KindBackend, "lookup access key", err)
	}
	return c.getUser(ctx, string(uid))
}

// GetUser returns the User with the given ID, or NotFound.
func (c *Catalog) GetUser(ctx context.Context, uid string) (User, error) {
	return c.getUser(ctx, uid)
}

func (c *Catalog) getUser(ctx context.Context, uid string) (User, error) {
	raw, err := c.kv.Get(ctx, treeUserIDToUser, uid)
	if err == kvstore.ErrNotFound {
		return User{}, errs.New(errs.KindNotFound, "user not found")
	} else if err != nil {
		return User{}, errs.Wrap(errs.KindBackend, "read user", err)
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return User{}, errs.Wrap(errs.KindBackend, "decode user", err)
	}
	return u, nil
}

// CreateBucket fails with Conflict if name is already taken. On success it
// writes name_to_bucket and appends b to the owner's uid_to_buckets list.
func (c *Catalog) CreateBucket(ctx context.Context, b Bucket) error {
	if _, err := c.kv.Get(ctx, treeNameToBucket, b.Name); err == nil {
		return errs.New(errs.KindConflict, "bucket already exists")
	} else if err != kvstore.ErrNotFound {
		return errs.Wrap(errs.KindBackend, "check existing bucket", err)
	}

	bucketBytes, err := json.Marshal(b)
	if err != nil {
		return errs.Wrap(errs.KindIO, "encode bucket", err)
	}
	if err := c.kv.Put(ctx, treeNameToBucket, b.Name, bucketBytes); err != nil {
		return errs.Wrap(errs.KindBackend, "write bucket", err)
	}

	buckets, err := c.bucketsOfRaw(ctx, b.OwnerID)
	if err != nil {
		return err
	}
	buckets = append(buckets, b)
	return c.putBucketsOf(ctx, b.OwnerID, buckets)
}

func (c *Catalog) bucketsOfRaw(ctx context.Context, uid string) ([]Bucket, error) {
	raw, err := c.kv.Get(ctx, treeUserIDToBuckets, uid)
	if err == kvstore.ErrNotFound {
		return []Bucket{}, nil
	} else if err != nil {
		return nil, errs.Wrap(errs.KindBackend, "read owned buckets", err)
	}
	var buckets []Bucket
	if err := json.Unmarshal(raw, &buckets); err != nil {
		return nil, errs.Wrap(errs.KindBackend, "decode owned buckets", err)
	}
	return buckets, nil
}

func (c *Catalog) putBucketsOf(ctx context.Context, uid string, buckets []Bucket) error {
	encoded, err := json.Marshal(buckets)
	if err != nil {
		return errs.Wrap(errs.KindIO, "encode owned buckets", err)
	}
	if err := c.kv.Put(ctx, treeUserIDToBuckets, uid, encoded); err != nil {
		return errs.Wrap(errs.KindBackend, "write owned buckets", err)
	}
	return nil
}

// BucketsOf returns the set of Buckets owned by uid; an empty slice if the
// user owns none (not an error).
func (c *Catalog) BucketsOf(ctx context.Context, uid string) ([]Bucket, error) {
	return c.bucketsOfRaw(ctx, uid)
}

// ObjectsOf returns the set of Objects in bucketName; an empty slice if no
// entry exists yet.
func (c *Catalog) ObjectsOf(ctx context.Context, bucketName string) ([]Object, error) {
	raw, err := c.kv.Get(ctx, treeNameToObjects, bucketName)
	if err == kvstore.ErrNotFound {
		return []Object{}, nil
	} else if err != nil {
		return nil, errs.Wrap(errs.KindBackend, "read bucket objects", err)
	}
	var objects []Object
	if err := json.Unmarshal(raw, &objects); err != nil {
		return nil, errs.Wrap(errs.KindBackend, "decode bucket objects", err)
	}
	return objects, nil
}

func (c *Catalog) putObjectsOf(ctx context.Context, bucketName string, objects []Object) error {
	encoded, err := json.Marshal(objects)
	if err != nil {
		return errs.Wrap(errs.KindIO, "encode bucket objects", err)
	}
	if err := c.kv.Put(ctx, treeNameToObjects, bucketName, encoded); err != nil {
		return errs.Wrap(errs.KindBackend, "write bucket objects", err)
	}
	return nil
}

// UpsertObject inserts o into the set stored for o.Bucket, replacing any
// existing element equal under the (bucket, key) equality.
func (c *Catalog) UpsertObject(ctx context.Context, o Object) error {
	objects, err := c.ObjectsOf(ctx, o.Bucket)
	if err != nil {
		return err
	}

	replaced := false
	for i, existing := range objects {
		if existing.Equal(o) {
			objects[i] = o
			replaced = true
			break
		}
	}
	if !replaced {
		objects = append(objects, o)
	}
	return c.putObjectsOf(ctx, o.Bucket, objects)
}

// FindObject returns the object at (bucket, key), or NotFound.
func (c *Catalog) FindObject(ctx context.Context, bucket, key string) (Object, error) {
	objects, err := c.ObjectsOf(ctx, bucket)
	if err != nil {
		return Object{}, err
	}
	target := Object{Bucket: bucket, Key: key}
	for _, o := range objects {
		if o.Equal(target) {
			return o, nil
		}
	}
	return Object{}, errs.New(errs.KindNotFound, "object not found")
}

// GetBucket returns the Bucket named name, or NotFound.
func (c *Catalog) GetBucket(ctx context.Context, name string) (Bucket, error) {
	raw, err := c.kv.Get(ctx, treeNameToBucket, name)
	if err == kvstore.ErrNotFound {
		return Bucket{}, errs.New(errs.KindNotFound, "bucket not found")
	} else if err != nil {
		return Bucket{}, errs.Wrap(errs.KindBackend, "read bucket", err)
	}
	var b Bucket
	if err := json.Unmarshal(raw, &b); err != nil {
		return Bucket{}, errs.Wrap(errs.KindBackend, "decode bucket", err)
	}
	return b, nil
}

// DeleteBucket removes name_to_bucket[name] and name_to_objects[name], and
// purges name from the owner's uid_to_buckets projection too, so
// ListBuckets never surfaces a ghost bucket.
func (c *Catalog) DeleteBucket(ctx context.Context, name string) error {
	b, err := c.GetBucket(ctx, name)
	if err != nil {
		return err
	}

	if err := c.kv.Delete(ctx, treeNameToBucket, name); err != nil {
		return errs.Wrap(errs.KindBackend, "delete bucket", err)
	}
	if err := c.kv.Delete(ctx, treeNameToObjects, name); err != nil {
		return errs.Wrap(errs.KindBackend, "delete bucket objects", err)
	}

	owned, err := c.bucketsOfRaw(ctx, b.OwnerID)
	if err != nil {
		return err
	}
	kept := owned[:0]
	for _, ob := range owned {
		if ob.Name != name {
			kept = append(kept, ob)
		}
	}
	return c.putBucketsOf(ctx, b.OwnerID, kept)
}

// DeleteObject removes the matching (bucket, key) element, retaining
// every object whose key differs from key.
func (c *Catalog) DeleteObject(ctx context.Context, bucket, key string) error {
	objects, err := c.ObjectsOf(ctx, bucket)
	if err != nil {
		return err
	}
	kept := objects[:0]
	for _, o := range objects {
		if o.Key != key {
			kept = append(kept, o)
		}
	}
	return c.putObjectsOf(ctx, bucket, kept)
}

// Stats is a point-in-time tally of the catalog's entity counts, for the
// diagnostics endpoint.
type Stats struct {
	Users   int
	Buckets int
	Objects int
}

// Stats counts every user, bucket, and object currently in the catalog by
// iterating their respective trees. It is O(n) in catalog size and meant
// for occasional diagnostics polling, not the hot request path.
func (c *Catalog) Stats(ctx context.Context) (Stats, error) {
	var s Stats

	if err := c.kv.Iterate(ctx, treeUserIDToUser, func(string, []byte) error {
		s.Users++
		return nil
	}); err != nil {
		return Stats{}, errs.Wrap(errs.KindBackend, "count users", err)
	}

	if err := c.kv.Iterate(ctx, treeNameToBucket, func(string, []byte) error {
		s.Buckets++
		return nil
	}); err != nil {
		return Stats{}, errs.Wrap(errs.KindBackend, "count buckets", err)
	}

	if err := c.kv.Iterate(ctx, treeNameToObjects, func(_ string, value []byte) error {
		var objects []Object
		if err := json.Unmarshal(value, &objects); err != nil {
			return err
		}
		s.Objects += len(objects)
		return nil
	}); err != nil {
		return Stats{}, errs.Wrap(errs.KindBackend, "count objects", err)
	}

	return s, nil
}
