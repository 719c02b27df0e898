package git

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

func resolved(t *testing.T, p string) string {
	t.Helper()
	out, err := filepath.EvalSymlinks(p)
	require.NoError(t, err)
	return out
}

func TestDescribeFindsRootFromSubdirectory(t *testing.T) {
	root := resolved(t, t.TempDir())
	repo, err := gogit.PlainInit(root, false)
	require.NoError(t, err)

	sub := filepath.Join(root, "src", "pkg")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("hi\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("README")
	require.NoError(t, err)
	hash, err := wt.Commit("init", &gogit.CommitOptions{
		Author: &object.Signature{Name: "dev", Email: "dev@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	info, err := Describe(sub)
	require.NoError(t, err)
	require.Equal(t, root, resolved(t, info.Root))
	require.Equal(t, hash.String(), info.Head)
	require.Equal(t, "master", info.Branch)
	require.Equal(t, root, resolved(t, WorktreeRoot(sub)))
}

func TestDescribeEmptyRepository(t *testing.T) {
	root := resolved(t, t.TempDir())
	_, err := gogit.PlainInit(root, false)
	require.NoError(t, err)

	info, err := Describe(root)
	require.NoError(t, err)
	require.Empty(t, info.Head)
	require.Equal(t, "master", info.Branch)
}

func TestDescribeOutsideRepository(t *testing.T) {
	dir := t.TempDir()
	_, err := Describe(dir)
	require.ErrorIs(t, err, ErrNotRepository)
	require.Equal(t, dir, WorktreeRoot(dir))
}
