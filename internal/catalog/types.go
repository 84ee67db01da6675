// Package catalog maps the domain entities (User, Bucket, Object) onto KV
// records, enforcing the uniqueness invariants from the data model and
// providing the lookups the Storage Engine composes into operations.
package catalog

import "time"

// User is a SigV4 credential holder. Created once via the administrative
// new-user operation; never mutated; not deletable from this package.
type User struct {
	ID              string `json:"id"`
	DisplayName     string `json:"display_name"`
	AccessKey       string `json:"access_key"`
	SecretAccessKey string `json:"secret_access_key"`
}

// Bucket is a named container for objects, scoped globally on this node.
// Equality is by Name alone.
type Bucket struct {
	Name         string    `json:"name"`
	OwnerID      string    `json:"owner_id"`
	CreationDate time.Time `json:"creation_date"`
	ObjectCount  int64     `json:"object_count"`
	Size         int64     `json:"size"`
}

// Equal compares buckets by their set-membership key (name).
func (b Bucket) Equal(o Bucket) bool {
	return b.Name == o.Name
}

// Object is a byte payload addressed by (bucket, key) with its metadata.
// Equality is by (Bucket, Key).
type Object struct {
	Key          string    `json:"key"`
	Bucket       string    `json:"bucket"`
	OwnerID      string    `json:"owner_id"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Equal compares objects by their set-membership key (bucket, key).
func (o Object) Equal(p Object) bool {
	return o.Bucket == p.Bucket && o.Key == p.Key
}
