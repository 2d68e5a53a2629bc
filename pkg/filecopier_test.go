package merger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCopierStagesRunFiles(t *testing.T) {
	root := t.TempDir()
	config := setupRunFixture(t, root, 5)
	config.CopyPath = filepath.Join(root, "local")

	copier, err := NewFileCopier(config, 5)
	require.NoError(t, err)

	var sized int64
	for _, name := range []string{"cobo0.graw", "cobo1.graw"} {
		info, err := os.Stat(filepath.Join(config.ElectronicsRunDirs(5)[0], name))
		require.NoError(t, err)
		sized += info.Size()
	}
	info, err := os.Stat(filepath.Join(config.TriggerRunDir(5), "run-0005-00.evt"))
	require.NoError(t, err)
	sized += info.Size()
	assert.Equal(t, sized, copier.TotalBytes())

	var reported []int64
	require.NoError(t, copier.Copy(context.Background(), func(done int64) {
		reported = append(reported, done)
	}))
	require.Len(t, reported, 3)
	assert.Equal(t, copier.TotalBytes(), reported[2])

	base := filepath.Join(config.CopyPath, "run_0005")
	assert.Equal(t, []string{filepath.Join(base, "get")}, copier.GrawDirs())
	assert.Equal(t, filepath.Join(base, "frib"), copier.EvtDir())
	for _, staged := range []string{
		filepath.Join(base, "get", "cobo0.graw"),
		filepath.Join(base, "get", "cobo1.graw"),
		filepath.Join(base, "frib", "run-0005-00.evt"),
	} {
		_, err := os.Stat(staged)
		assert.NoError(t, err, staged)
	}
}

func TestFileCopierEmptyWithoutCopyPath(t *testing.T) {
	root := t.TempDir()
	config := setupRunFixture(t, root, 5)

	copier, err := NewFileCopier(config, 5)
	require.NoError(t, err)
	assert.Zero(t, copier.TotalBytes())
	assert.Empty(t, copier.GrawDirs())
	require.NoError(t, copier.Copy(context.Background(), nil))
}

func TestFileCopierMissingTriggerDir(t *testing.T) {
	root := t.TempDir()
	config := setupRunFixture(t, root, 5)
	config.CopyPath = filepath.Join(root, "local")
	require.NoError(t, os.RemoveAll(config.TriggerRunDir(5)))

	_, err := NewFileCopier(config, 5)
	var notFound *SourceNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, 5, notFound.RunNumber)
}

func TestFileCopierHonorsCancellation(t *testing.T) {
	root := t.TempDir()
	config := setupRunFixture(t, root, 5)
	config.CopyPath = filepath.Join(root, "local")

	copier, err := NewFileCopier(config, 5)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = copier.Copy(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = os.Stat(filepath.Join(config.CopyPath, "run_0005"))
	assert.True(t, os.IsNotExist(err))
}
