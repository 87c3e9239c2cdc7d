package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/generation"
)

// ErrOutsideRoot is returned when a reference escapes the artifact root.
var ErrOutsideRoot = errors.New("artifact path is outside the artifact root")

// LocalSource loads artifacts below a root directory. Symlinks are followed
// only while their target stays below the root.
type LocalSource struct {
	root     string
	realRoot string
	maxBytes int64
}

// NewLocalSource creates a source rooted at root.
func NewLocalSource(root string, maxBytes int64) (*LocalSource, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("artifact root %s is not a directory", abs)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact root: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &LocalSource{root: abs, realRoot: resolved, maxBytes: maxBytes}, nil
}

// Open implements Source. ref is "file://<path>" or a bare path relative to
// the root.
func (s *LocalSource) Open(ctx context.Context, ref string) (*domain.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.resolve(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", generation.ErrUnreadableArtifact, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", generation.ErrUnreadableArtifact, ref, err)
	}
	defer func() { _ = f.Close() }()

	return readLimited(ref, f, s.maxBytes)
}

func (s *LocalSource) resolve(ref string) (string, error) {
	p := strings.TrimPrefix(ref, "file://")
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.root, p)
	}
	p = filepath.Clean(p)
	if !within(s.root, p) {
		return "", ErrOutsideRoot
	}

	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", ref, err)
	}
	if !within(s.realRoot, resolved) {
		return "", ErrOutsideRoot
	}
	return resolved, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
