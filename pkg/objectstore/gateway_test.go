package objectstore

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	objects map[string][]byte
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

type fakePresigner struct {
	gotTTL time.Duration
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	opts := s3.PresignOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	f.gotTTL = opts.Expires
	if aws.ToString(in.Key) == "broken" {
		return nil, errors.New("signing failed")
	}
	return &v4.PresignedHTTPRequest{URL: "https://signed.example/" + aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)}, nil
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDownload_CreatesParentsAndOverwrites(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "a", "b", "artifact.zip")
	g := NewGateway(&fakeObjects{objects: map[string][]byte{"bucket/k": []byte("new")}}, nil)

	require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0o755))
	require.NoError(t, os.WriteFile(dest, []byte("old content that is longer"), 0o644))

	require.NoError(t, g.Download(context.Background(), "bucket", "k", dest))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestDownload_MissingKey(t *testing.T) {
	g := NewGateway(&fakeObjects{objects: map[string][]byte{}}, nil)
	err := g.Download(context.Background(), "bucket", "missing", filepath.Join(t.TempDir(), "x.zip"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://bucket/missing")
}

func TestUnpackAndDiscard(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "out.zip")
	require.NoError(t, os.WriteFile(archive, zipBytes(t, map[string]string{
		"README.md":   "hello",
		"src/main.go": "package main",
	}), 0o644))

	dest := filepath.Join(dir, "out")
	g := NewGateway(nil, nil)
	require.NoError(t, g.UnpackAndDiscard(archive, dest))

	readme, err := os.ReadFile(filepath.Join(dest, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(readme))
	assert.FileExists(t, filepath.Join(dest, "src", "main.go"))
	assert.NoFileExists(t, archive)
}

func TestUnpackAndDiscard_RejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	require.NoError(t, os.WriteFile(archive, zipBytes(t, map[string]string{"../escape.txt": "x"}), 0o644))

	err := NewGateway(nil, nil).UnpackAndDiscard(archive, filepath.Join(dir, "out"))
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "escape.txt"))
}

func TestUnpackAndDiscard_DotDirectoryEntry(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "dot.zip")
	require.NoError(t, os.WriteFile(archive, zipBytes(t, map[string]string{"./": "", "./x.txt": "x"}), 0o644))

	dest := filepath.Join(dir, "out")
	require.NoError(t, NewGateway(nil, nil).UnpackAndDiscard(archive, dest))
	got, err := os.ReadFile(filepath.Join(dest, "x.txt"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))
}

func TestUnpackAndDiscard_NotAZip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "bad.zip")
	require.NoError(t, os.WriteFile(archive, []byte("not a zip"), 0o644))

	err := NewGateway(nil, nil).UnpackAndDiscard(archive, filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening archive")
}

func TestPresignedURL(t *testing.T) {
	p := &fakePresigner{}
	g := NewGateway(nil, p)

	url, err := g.PresignedURL(context.Background(), "bucket", "outputs/a.zip", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/bucket/outputs/a.zip", url)
	assert.Equal(t, 15*time.Minute, p.gotTTL)

	_, err = g.PresignedURL(context.Background(), "bucket", "broken", time.Minute)
	assert.Error(t, err)
}
