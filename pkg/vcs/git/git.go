package git

import (
	"errors"
	"fmt"
	"path/filepath"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrNotRepository indicates no enclosing git worktree was found.
var ErrNotRepository = errors.New("git: not inside a worktree")

// Info describes the worktree enclosing a directory.
type Info struct {
	Root   string
	Branch string
	Head   string
}

// Describe locates the worktree that contains dir, walking up parent directories.
func Describe(dir string) (Info, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Info{}, err
	}
	repo, err := gogit.PlainOpenWithOptions(abs, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return Info{}, fmt.Errorf("%w: %s", ErrNotRepository, abs)
		}
		return Info{}, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		if errors.Is(err, gogit.ErrIsBareRepository) {
			return Info{}, fmt.Errorf("%w: %s is bare", ErrNotRepository, abs)
		}
		return Info{}, err
	}
	info := Info{Root: wt.Filesystem.Root()}
	head, err := repo.Head()
	switch {
	case err == nil:
		info.Head = head.Hash().String()
		if head.Name().IsBranch() {
			info.Branch = head.Name().Short()
		}
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		// Fresh repository without commits.
		if ref, err := repo.Storer.Reference(plumbing.HEAD); err == nil && ref.Type() == plumbing.SymbolicReference {
			info.Branch = ref.Target().Short()
		}
	default:
		return Info{}, err
	}
	return info, nil
}

// WorktreeRoot returns the root of the worktree containing dir, or dir itself when it is not
// inside one.
func WorktreeRoot(dir string) string {
	info, err := Describe(dir)
	if err != nil || info.Root == "" {
		return dir
	}
	return info.Root
}
