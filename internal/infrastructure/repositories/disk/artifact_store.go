package disk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"vidcall/internal/core/domain"
	"vidcall/internal/core/ports"

	"go.uber.org/zap"
)

// ArtifactStore writes finalized recordings to a directory, one file per
// artifact. The recorder chooses the filename.
type ArtifactStore struct {
	dir    string
	logger *zap.SugaredLogger
}

func NewArtifactStore(dir string, logger *zap.SugaredLogger) *ArtifactStore {
	return &ArtifactStore{dir: dir, logger: logger}
}

var _ ports.ArtifactStore = (*ArtifactStore)(nil)

func (s *ArtifactStore) Save(ctx context.Context, artifact domain.Artifact) error {
	if artifact.Filename == "" {
		return fmt.Errorf("artifact has no filename")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	path := filepath.Join(s.dir, filepath.Base(artifact.Filename))
	if err := os.WriteFile(path, artifact.Data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}

	s.logger.Infow("recording saved", "path", path, "bytes", len(artifact.Data))
	return nil
}
