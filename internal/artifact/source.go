// Package artifact resolves artifact references submitted with report
// requests and loads their bytes from the local filesystem or an
// S3-compatible object store.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/generation"
)

// DefaultMaxBytes bounds the size of a loaded artifact.
const DefaultMaxBytes int64 = 10 << 20

// ErrUnsupportedScheme is returned for references no source can serve.
var ErrUnsupportedScheme = errors.New("unsupported artifact reference scheme")

// Source loads an artifact by reference. Load failures wrap
// generation.ErrUnreadableArtifact.
type Source interface {
	Open(ctx context.Context, ref string) (*domain.Artifact, error)
}

// Router dispatches references to a Source by URL scheme. References with no
// scheme are treated as "file".
type Router struct {
	sources map[string]Source
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{sources: make(map[string]Source)}
}

// Handle registers src for scheme.
func (r *Router) Handle(scheme string, src Source) {
	r.sources[strings.ToLower(scheme)] = src
}

// Open implements Source.
func (r *Router) Open(ctx context.Context, ref string) (*domain.Artifact, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, fmt.Errorf("%w: %w", generation.ErrUnreadableArtifact, domain.ErrEmptyArtifactRef)
	}

	scheme := schemeOf(ref)
	src, ok := r.sources[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %w %q", generation.ErrUnreadableArtifact, ErrUnsupportedScheme, scheme)
	}
	return src.Open(ctx, ref)
}

// Supports reports whether ref has a registered scheme.
func (r *Router) Supports(ref string) bool {
	_, ok := r.sources[schemeOf(ref)]
	return ok
}

func schemeOf(ref string) string {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// single letter schemes are Windows drive letters
		return "file"
	}
	return strings.ToLower(u.Scheme)
}

// readLimited reads at most max bytes and detects the media type.
func readLimited(ref string, r io.Reader, max int64) (*domain.Artifact, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", generation.ErrUnreadableArtifact, ref, err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: %w", generation.ErrUnreadableArtifact, domain.ErrArtifactTooLarge)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", generation.ErrUnreadableArtifact, ref)
	}

	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("%w: %w %q", generation.ErrUnreadableArtifact, domain.ErrUnsupportedMediaType, mime)
	}

	return &domain.Artifact{Ref: ref, MIMEType: mime, Data: data}, nil
}
