package disk

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"vidcall/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestArtifactStore_SaveWritesFile(t *testing.T) {
	dir := t.TempDir()
	store := NewArtifactStore(filepath.Join(dir, "recordings"), zap.NewNop().Sugar())

	err := store.Save(context.Background(), domain.Artifact{
		Filename: "call-recording-test.webm",
		Data:     []byte{0x1A, 0x45, 0xDF, 0xA3},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "recordings", "call-recording-test.webm"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1A, 0x45, 0xDF, 0xA3}, data)
}

func TestArtifactStore_SaveStripsPathComponents(t *testing.T) {
	dir := t.TempDir()
	store := NewArtifactStore(dir, zap.NewNop().Sugar())

	err := store.Save(context.Background(), domain.Artifact{
		Filename: "../escape.webm",
		Data:     []byte("x"),
	})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "escape.webm"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(filepath.Dir(dir), "escape.webm"))
	assert.True(t, os.IsNotExist(err))
}

func TestArtifactStore_RejectsEmptyFilename(t *testing.T) {
	store := NewArtifactStore(t.TempDir(), zap.NewNop().Sugar())
	err := store.Save(context.Background(), domain.Artifact{Data: []byte("x")})
	assert.Error(t, err)
}
