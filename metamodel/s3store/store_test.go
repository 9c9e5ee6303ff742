package s3store_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/metamodel-go/metamodel"
	"github.com/AntonStoeckl/metamodel-go/metamodel/s3store"
)

// fakeS3 is a tiny in-memory subset of the S3 REST API, enough to exercise the store without network access.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	requests []string
	failPut  bool
	failList bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req.Method+" "+req.URL.Path)

	// path style: /<bucket>/<key>
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		if f.failList {
			return xmlResponse(http.StatusForbidden, `<Error><Code>AccessDenied</Code><Message>denied</Message></Error>`), nil
		}
		return f.list(req.URL.Query().Get("prefix")), nil

	case req.Method == http.MethodPut:
		if f.failPut {
			return xmlResponse(http.StatusInternalServerError, `<Error><Code>InternalError</Code><Message>boom</Message></Error>`), nil
		}
		body, _ := io.ReadAll(req.Body)
		f.objects[key] = body

		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{"Etag": {`"etag"`}}}, nil

	case req.Method == http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			return xmlResponse(http.StatusNotFound, `<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`), nil
		}

		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(body)), Header: http.Header{
			"Content-Length": {fmt.Sprintf("%d", len(body))},
			"Content-Type":   {"application/json"},
		}}, nil
	}

	return xmlResponse(http.StatusNotImplemented, `<Error><Code>NotImplemented</Code></Error>`), nil
}

func (f *fakeS3) list(prefix string) *http.Response {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
	for _, k := range keys {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size></Contents>", k, len(f.objects[k]))
	}
	b.WriteString(`</ListBucketResult>`)

	return xmlResponse(http.StatusOK, b.String())
}

func xmlResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": {"application/xml"}},
	}
}

func newFakeStore(t *testing.T, prefix string) (*s3store.Store, *fakeS3) {
	t.Helper()

	fake := newFakeS3()
	store, err := s3store.New(context.Background(), s3store.Config{
		Bucket:          "snapshots",
		Prefix:          prefix,
		Region:          "us-east-1",
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
	}, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: fake}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		o.RetryMaxAttempts = 1
	})
	require.NoError(t, err)

	return store, fake
}

func Test_Store_SaveAndLoad(t *testing.T) {
	// arrange
	ctx := context.Background()
	store, fake := newFakeStore(t, "")

	// act
	require.NoError(t, store.Save(ctx, "forest_20170331_0.json", []byte(`{"model_name":"forest.lp"}`)))
	data, err := store.Load(ctx, "forest_20170331_0.json")

	// assert
	require.NoError(t, err)
	assert.JSONEq(t, `{"model_name":"forest.lp"}`, string(data))
	assert.Contains(t, fake.requests, "PUT /snapshots/forest_20170331_0.json")
}

func Test_Store_PrefixIsAppliedAndStrippedOnList(t *testing.T) {
	// arrange
	ctx := context.Background()
	store, fake := newFakeStore(t, "/runs/2017/")
	require.NoError(t, store.Save(ctx, "forest_20170331_1.json", []byte(`{}`)))
	require.NoError(t, store.Save(ctx, "forest_20170331_0.json", []byte(`{}`)))
	require.NoError(t, store.Save(ctx, "other_20170331_0.json", []byte(`{}`)))

	// act
	all, errAll := store.List(ctx, "")
	forest, errForest := store.List(ctx, "forest_")

	// assert
	require.NoError(t, errAll)
	require.NoError(t, errForest)
	assert.Contains(t, fake.requests, "PUT /snapshots/runs/2017/forest_20170331_0.json")
	assert.Equal(t, []string{"forest_20170331_0.json", "forest_20170331_1.json", "other_20170331_0.json"}, all)
	assert.Equal(t, []string{"forest_20170331_0.json", "forest_20170331_1.json"}, forest)
}

func Test_Store_ListKeepsATrailingSlashInThePrefix(t *testing.T) {
	ctx := context.Background()

	for _, storePrefix := range []string{"", "runs"} {
		t.Run("store prefix "+storePrefix, func(t *testing.T) {
			// arrange
			store, _ := newFakeStore(t, storePrefix)
			require.NoError(t, store.Save(ctx, "dir/forest_20170331_0.json", []byte(`{}`)))
			require.NoError(t, store.Save(ctx, "directory.json", []byte(`{}`)))

			// act
			keys, err := store.List(ctx, "dir/")

			// assert
			require.NoError(t, err)
			assert.Equal(t, []string{"dir/forest_20170331_0.json"}, keys)
		})
	}
}

func Test_Store_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing object is not found", func(t *testing.T) {
		store, _ := newFakeStore(t, "")

		_, err := store.Load(ctx, "forest_20170331_0.json")

		assert.ErrorIs(t, err, metamodel.ErrSnapshotNotFound)
	})

	t.Run("failing put", func(t *testing.T) {
		store, fake := newFakeStore(t, "")
		fake.failPut = true

		err := store.Save(ctx, "forest_20170331_0.json", []byte(`{}`))

		assert.ErrorIs(t, err, metamodel.ErrSavingSnapshotFailed)
	})

	t.Run("failing list", func(t *testing.T) {
		store, fake := newFakeStore(t, "runs")
		fake.failList = true

		_, err := store.List(ctx, "forest_")

		assert.ErrorIs(t, err, s3store.ErrListingSnapshotsFailed)
	})

	t.Run("invalid key", func(t *testing.T) {
		store, fake := newFakeStore(t, "")

		err := store.Save(ctx, "../forest.json", []byte(`{}`))

		assert.ErrorIs(t, err, metamodel.ErrInvalidSnapshotKey)
		assert.Empty(t, fake.requests)
	})

	t.Run("bucket required", func(t *testing.T) {
		_, err := s3store.New(ctx, s3store.Config{})

		assert.ErrorIs(t, err, s3store.ErrBucketRequired)
	})
}

func Test_Store_BacksMetaModelSnapshots(t *testing.T) {
	// arrange
	ctx := context.Background()
	store, _ := newFakeStore(t, "tutorial")
	reg := metamodel.NewRegistry("analysis_functions")
	require.NoError(t, reg.RegisterFunc("solve", func(_ context.Context, mm *metamodel.MetaModel, _ metamodel.Args, _ metamodel.Kwargs) error {
		mm.IncrementSolveCount()
		mm.SetOptimal(true)
		return nil
	}))
	options := []metamodel.Option{
		metamodel.WithModel(struct{}{}),
		metamodel.WithRegistries(reg),
		metamodel.WithSnapshotStore(store),
	}

	mm, err := metamodel.New(ctx, "forest.lp", options...)
	require.NoError(t, err)
	require.NoError(t, mm.Dispatch(ctx, "analysis_functions.solve", nil, nil))

	// act
	key, err := mm.TakeSnapshot(ctx)
	require.NoError(t, err)
	restored, err := metamodel.FromSnapshot(ctx, store, key, options...)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, restored.SolveCount())
	assert.True(t, restored.Optimal())
	assert.Equal(t, mm.Journal(), restored.Journal())
}
