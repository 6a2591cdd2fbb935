// Package gitops answers the questions the applier and bundler ask about the
// surrounding git repository. Everything here is advisory; a directory that is
// not a repository is never an error.
package gitops

import (
	"path/filepath"

	"github.com/go-git/go-git/v5"
)

// Info describes the repository containing a directory.
type Info struct {
	Root   string
	Branch string
}

// Detect opens the repository enclosing dir. ok is false when dir is not
// inside a work tree.
func Detect(dir string) (Info, bool) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return Info{}, false
	}
	var info Info
	if wt, err := repo.Worktree(); err == nil {
		info.Root = wt.Filesystem.Root()
	}
	if head, err := repo.Head(); err == nil && head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}
	return info, info.Root != ""
}

// DirtyPaths returns the repo-relative paths with uncommitted changes,
// untracked files included. A nil slice means clean or not a repository.
func DirtyPaths(dir string) []string {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil
	}
	status, err := wt.Status()
	if err != nil {
		return nil
	}
	var dirty []string
	for path, s := range status {
		if s.Worktree != git.Unmodified || s.Staging != git.Unmodified {
			dirty = append(dirty, path)
		}
	}
	return dirty
}

// IsDirty reports whether path, relative to root, has uncommitted changes.
// Used as the pre-write advisory check: a dirty target warns but never
// blocks the edit.
func IsDirty(root, path string) bool {
	rel, err := filepath.Rel(root, filepath.Join(root, path))
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	for _, p := range DirtyPaths(root) {
		if p == rel {
			return true
		}
	}
	return false
}
