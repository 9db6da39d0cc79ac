package pgtestenv

import (
	"context"

	"github.com/giantswarm/pgtestenv/internal/core"
	"github.com/giantswarm/pgtestenv/internal/workspace"
)

// PurgeStale removes workspaces left behind by processes that exited without
// calling Stop (killed test binaries, for example) from baseDir, or
// os.TempDir() when baseDir is empty. Workspaces of running instances are
// never touched. It returns the removed paths.
func PurgeStale(ctx context.Context, baseDir string) ([]string, error) {
	return workspace.PurgeStale(ctx, workspace.PurgeConfig{
		BaseDir: baseDir,
		Logger:  core.Logger(),
	})
}
