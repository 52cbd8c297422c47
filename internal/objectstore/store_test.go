package objectstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"
)

func TestSplitS3URI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		uri         string
		bucket, key string
		ok          bool
	}{
		{uri: "s3://udacity-dend/log_data", bucket: "udacity-dend", key: "log_data", ok: true},
		{uri: "s3://udacity-dend/song_data/A/B/", bucket: "udacity-dend", key: "song_data/A/B/", ok: true},
		{uri: "s3://bucket", bucket: "bucket", key: "", ok: true},
		{uri: "s3://", ok: false},
		{uri: "/tmp/log_data", ok: false},
	}
	for _, tc := range tests {
		bucket, key, ok := SplitS3URI(tc.uri)
		if bucket != tc.bucket || key != tc.key || ok != tc.ok {
			t.Fatalf("SplitS3URI(%q)=(%q,%q,%v), want (%q,%q,%v)", tc.uri, bucket, key, ok, tc.bucket, tc.key, tc.ok)
		}
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLocal_ListDirectoryRecursively(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "song_data", "A", "B", "2.json"), "{}")
	writeFile(t, filepath.Join(dir, "song_data", "A", "1.json"), "{}")
	writeFile(t, filepath.Join(dir, "log_data", "x.json"), "{}")

	got, err := Local{}.List(context.Background(), "file://"+filepath.Join(dir, "song_data"))
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "song_data", "A", "1.json"),
		filepath.Join(dir, "song_data", "A", "B", "2.json"),
	}, got)
}

func TestLocal_ListPrefix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "log_2018-11-01.json"), "{}")
	writeFile(t, filepath.Join(dir, "log_2018-11-02.json"), "{}")
	writeFile(t, filepath.Join(dir, "other.json"), "{}")

	got, err := Local{}.List(context.Background(), filepath.Join(dir, "log_"))
	require.NoError(t, err)
	require.Len(t, got, 2)

	none, err := Local{}.List(context.Background(), filepath.Join(dir, "missing", "x"))
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestLocal_Open(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "a.json")
	writeFile(t, p, `{"a":1}`)

	rc, err := Local{}.Open(context.Background(), p)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(b))
}

type fakeS3 struct {
	pages   []*s3.ListObjectsV2Output
	objects map[string]string
	calls   int
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if aws.ToString(in.Bucket) != "bucket" {
		return nil, errors.New("no such bucket")
	}
	page := f.pages[f.calls]
	f.calls++
	return page, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestS3_ListPaginatesAndSkipsMarkers(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{pages: []*s3.ListObjectsV2Output{
		{
			Contents:              []types.Object{{Key: aws.String("song_data/B.json")}, {Key: aws.String("song_data/")}},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("t1"),
		},
		{
			Contents:    []types.Object{{Key: aws.String("song_data/A.json")}},
			IsTruncated: aws.Bool(false),
		},
	}}
	s := &S3{client: fake}

	got, err := s.List(context.Background(), "s3://bucket/song_data")
	require.NoError(t, err)
	require.Equal(t, []string{"s3://bucket/song_data/A.json", "s3://bucket/song_data/B.json"}, got)
	require.Equal(t, 2, fake.calls)

	_, err = s.List(context.Background(), "/local/path")
	require.Error(t, err)
}

func TestS3_Open(t *testing.T) {
	t.Parallel()

	s := &S3{client: &fakeS3{objects: map[string]string{"log_json_path.json": `{"jsonpaths":[]}`}}}

	rc, err := s.Open(context.Background(), "s3://bucket/log_json_path.json")
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	require.Equal(t, `{"jsonpaths":[]}`, string(b))

	_, err = s.Open(context.Background(), "s3://bucket/missing.json")
	require.ErrorContains(t, err, "get s3://bucket/missing.json")
}

type countingStore struct {
	Local
	lists int
}

func (c *countingStore) List(ctx context.Context, uri string) ([]string, error) {
	c.lists++
	return []string{uri}, nil
}

func TestRouter_DispatchesByScheme(t *testing.T) {
	t.Parallel()

	remote := &countingStore{}
	inits := 0
	r := &Router{
		local: Local{},
		newS3: func(context.Context) (Store, error) { inits++; return remote, nil },
	}

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.json"), "{}")
	got, err := r.List(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 0, inits, "local listing must not initialize s3")

	for i := 0; i < 2; i++ {
		_, err = r.List(context.Background(), "s3://bucket/x")
		require.NoError(t, err)
	}
	require.Equal(t, 1, inits)
	require.Equal(t, 2, remote.lists)

	failing := &Router{local: Local{}, newS3: func(context.Context) (Store, error) { return nil, errors.New("no creds") }}
	_, err = failing.Open(context.Background(), "s3://bucket/x")
	require.ErrorContains(t, err, "init s3")
}
