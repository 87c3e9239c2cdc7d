package artifact

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
}

func TestLocalSource_Open(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "img-1.png", pngBytes)
	writeFile(t, root, "notes.txt", []byte("plain text"))
	writeFile(t, root, "empty.png", nil)

	src, err := NewLocalSource(root, 0)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("bare path", func(t *testing.T) {
		art, err := src.Open(ctx, "img-1.png")
		require.NoError(t, err)
		assert.Equal(t, "image/png", art.MIMEType)
		assert.Equal(t, pngBytes, art.Data)
		assert.Equal(t, "img-1.png", art.Ref)
	})

	t.Run("file url", func(t *testing.T) {
		art, err := src.Open(ctx, "file://"+filepath.Join(root, "img-1.png"))
		require.NoError(t, err)
		assert.Equal(t, "image/png", art.MIMEType)
	})

	failures := map[string]struct {
		ref  string
		want error
	}{
		"missing":    {ref: "nope.png"},
		"traversal":  {ref: "../etc/passwd", want: ErrOutsideRoot},
		"absolute":   {ref: "/etc/passwd", want: ErrOutsideRoot},
		"not image":  {ref: "notes.txt", want: domain.ErrUnsupportedMediaType},
		"empty file": {ref: "empty.png"},
	}
	for name, tc := range failures {
		t.Run(name, func(t *testing.T) {
			_, err := src.Open(ctx, tc.ref)
			require.Error(t, err)
			assert.ErrorIs(t, err, generation.ErrUnreadableArtifact)
			if tc.want != nil {
				assert.ErrorIs(t, err, tc.want)
			}
		})
	}

	t.Run("too large", func(t *testing.T) {
		small, err := NewLocalSource(root, 8)
		require.NoError(t, err)
		_, err = small.Open(ctx, "img-1.png")
		assert.ErrorIs(t, err, domain.ErrArtifactTooLarge)
		assert.ErrorIs(t, err, generation.ErrUnreadableArtifact)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := src.Open(cctx, "img-1.png")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

type fakeObjects struct {
	objects map[string][]byte
	readErr error
	calls   []string
}

func (f *fakeObjects) read(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	f.calls = append(f.calls, bucket+"/"+key)
	if f.readErr != nil {
		return io.NopCloser(&failingReader{err: f.readErr}), nil
	}
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestMinIOSource_Open(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("bucket from reference", func(t *testing.T) {
		f := &fakeObjects{objects: map[string][]byte{"uploads/a/b.png": pngBytes}}
		src := newMinIOSource(f.read, "default", 0)

		art, err := src.Open(ctx, "s3://uploads/a/b.png")
		require.NoError(t, err)
		assert.Equal(t, "image/png", art.MIMEType)
		assert.Equal(t, []string{"uploads/a/b.png"}, f.calls)
	})

	t.Run("default bucket", func(t *testing.T) {
		f := &fakeObjects{objects: map[string][]byte{"default/x.png": pngBytes}}
		src := newMinIOSource(f.read, "default", 0)

		_, err := src.Open(ctx, "s3:///x.png")
		require.NoError(t, err)
	})

	t.Run("missing object", func(t *testing.T) {
		src := newMinIOSource((&fakeObjects{}).read, "default", 0)

		_, err := src.Open(ctx, "s3://uploads/missing.png")
		assert.ErrorIs(t, err, generation.ErrUnreadableArtifact)
		assert.Contains(t, err.Error(), "NoSuchKey")
	})

	t.Run("read failure", func(t *testing.T) {
		f := &fakeObjects{readErr: minio.ErrorResponse{Code: "NoSuchBucket"}}
		src := newMinIOSource(f.read, "", 0)

		_, err := src.Open(ctx, "s3://gone/x.png")
		assert.ErrorIs(t, err, generation.ErrUnreadableArtifact)
		assert.Contains(t, err.Error(), "object not found")
	})

	t.Run("no key", func(t *testing.T) {
		src := newMinIOSource((&fakeObjects{}).read, "", 0)

		_, err := src.Open(ctx, "s3://bucket")
		assert.ErrorIs(t, err, generation.ErrUnreadableArtifact)
	})
}

func TestNewMinIOSource(t *testing.T) {
	t.Parallel()

	_, err := NewMinIOSource(MinIOConfig{}, 0)
	assert.Error(t, err)

	src, err := NewMinIOSource(MinIOConfig{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s", Bucket: "b"}, 0)
	require.NoError(t, err)
	assert.NotNil(t, src)
}

type stubSource struct{ ref string }

func (s *stubSource) Open(_ context.Context, ref string) (*domain.Artifact, error) {
	s.ref = ref
	return &domain.Artifact{Ref: ref}, nil
}

func TestRouter(t *testing.T) {
	t.Parallel()

	local, s3 := &stubSource{}, &stubSource{}
	r := NewRouter()
	r.Handle("file", local)
	r.Handle("S3", s3)

	ctx := context.Background()

	_, err := r.Open(ctx, "img-1.png")
	require.NoError(t, err)
	assert.Equal(t, "img-1.png", local.ref)

	_, err = r.Open(ctx, "s3://bucket/key.png")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/key.png", s3.ref)

	_, err = r.Open(ctx, "https://example.com/x.png")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
	assert.ErrorIs(t, err, generation.ErrUnreadableArtifact)
	assert.False(t, r.Supports("https://example.com/x.png"))
	assert.True(t, r.Supports("C:/images/x.png"))

	_, err = r.Open(ctx, " ")
	assert.True(t, errors.Is(err, domain.ErrEmptyArtifactRef))
}

func TestNewLocalSource_RequiresDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "plain.txt", []byte("x"))

	_, err := NewLocalSource(filepath.Join(root, "missing"), 0)
	assert.Error(t, err)

	_, err = NewLocalSource(filepath.Join(root, "plain.txt"), 0)
	assert.Error(t, err)
}

func TestLocalSource_Symlinks(t *testing.T) {
	t.Parallel()

	outside := t.TempDir()
	writeFile(t, outside, "secret.png", pngBytes)

	root := t.TempDir()
	writeFile(t, root, "img-1.png", pngBytes)
	require.NoError(t, os.Mkdir(filepath.Join(root, "nested"), 0o700))

	links := map[string]string{
		"escape.png":      filepath.Join(outside, "secret.png"),
		"escape-dir":      outside,
		"alias.png":       filepath.Join(root, "img-1.png"),
		"nested/up.png":   filepath.Join("..", "img-1.png"),
		"nested/away.png": filepath.Join("..", "..", filepath.Base(outside), "secret.png"),
	}
	for name, target := range links {
		if err := os.Symlink(target, filepath.Join(root, name)); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}
	}

	src, err := NewLocalSource(root, 0)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("link inside root is followed", func(t *testing.T) {
		for _, ref := range []string{"alias.png", "nested/up.png"} {
			art, err := src.Open(ctx, ref)
			require.NoError(t, err, ref)
			assert.Equal(t, pngBytes, art.Data)
		}
	})

	t.Run("link leaving root is rejected", func(t *testing.T) {
		for _, ref := range []string{"escape.png", "escape-dir/secret.png", "nested/away.png"} {
			_, err := src.Open(ctx, ref)
			require.Error(t, err, ref)
			assert.ErrorIs(t, err, ErrOutsideRoot, ref)
			assert.ErrorIs(t, err, generation.ErrUnreadableArtifact, ref)
		}
	})

	t.Run("root reached through a link", func(t *testing.T) {
		linkedRoot := filepath.Join(t.TempDir(), "artifacts")
		require.NoError(t, os.Symlink(root, linkedRoot))

		linked, err := NewLocalSource(linkedRoot, 0)
		require.NoError(t, err)

		_, err = linked.Open(ctx, "img-1.png")
		assert.NoError(t, err)
		_, err = linked.Open(ctx, "escape.png")
		assert.ErrorIs(t, err, ErrOutsideRoot)
	})
}
