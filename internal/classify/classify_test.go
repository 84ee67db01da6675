package classify

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyTable(t *testing.T) {
	cases := []struct {
		method string
		path   string
		want   Operation
	}{
		{http.MethodGet, "/", Operation{Kind: KindListBuckets}},
		{http.MethodGet, "", Operation{Kind: KindListBuckets}},
		{http.MethodGet, "/bucket", Operation{Kind: KindListObjects, Bucket: "bucket"}},
		{http.MethodGet, "/bucket/key", Operation{Kind: KindGetObject, Bucket: "bucket", Key: "key"}},
		{http.MethodGet, "/bucket/a/b/c", Operation{Kind: KindGetObject, Bucket: "bucket", Key: "a/b/c"}},
		{http.MethodPut, "/bucket", Operation{Kind: KindCreateBucket, Bucket: "bucket"}},
		{http.MethodPut, "/bucket/key", Operation{Kind: KindPutObject, Bucket: "bucket", Key: "key"}},
		{http.MethodDelete, "/bucket", Operation{Kind: KindDeleteBucket, Bucket: "bucket"}},
		{http.MethodDelete, "/bucket/key", Operation{Kind: KindDeleteObject, Bucket: "bucket", Key: "key"}},
	}

	for _, tc := range cases {
		got := Classify(tc.method, tc.path)
		assert.Equal(t, tc.want, got, "Classify(%q, %q)", tc.method, tc.path)
	}
}

func TestClassifyUnrecognizedFallsBackToListBuckets(t *testing.T) {
	got := Classify(http.MethodPatch, "/bucket/key")
	assert.Equal(t, KindListBuckets, got.Kind)
}
