// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gitref

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Checkouter is the behavior image builds depend on. *Guard satisfies it.
type Checkouter interface {
	WithCheckout(ctx context.Context, target string, body func(ctx context.Context) error) error
}

// Guard performs scoped checkouts on a single repository.
//
// # Thread Safety
//
// Guard is NOT safe for concurrent use. The working tree is shared state.
type Guard struct {
	repo *git.Repository
	out  io.Writer
}

// Open opens the repository containing path. Parent directories are searched
// for the .git directory. Progress messages are written to out; a nil out
// discards them.
func Open(path string, out io.Writer) (*Guard, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open git repository at %s: %w", path, err)
	}
	return New(repo, out), nil
}

// New wraps an already-open repository.
func New(repo *git.Repository, out io.Writer) *Guard {
	if out == nil {
		out = io.Discard
	}
	return &Guard{repo: repo, out: out}
}

// Current resolves what HEAD points at.
//
// # Description
//
// Resolution order:
//
//  1. HEAD attached to a branch: that branch.
//  2. HEAD detached on a commit carrying a tag: the first such tag by name.
//     Annotated tags are peeled to their commit.
//  3. Otherwise: the full commit hash.
//
// # Outputs
//
//   - Ref: The current ref
//   - error: Non-nil if HEAD cannot be read (e.g. an empty repository)
func (g *Guard) Current(ctx context.Context) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return Ref{}, err
	}

	head, err := g.repo.Head()
	if err != nil {
		return Ref{}, fmt.Errorf("read HEAD: %w", err)
	}
	if head.Name().IsBranch() {
		return Branch(head.Name().Short(), head.Hash()), nil
	}

	name, found, err := g.tagAt(head.Hash())
	if err != nil {
		return Ref{}, err
	}
	if found {
		return Tag(name, head.Hash()), nil
	}
	return Commit(head.Hash()), nil
}

// Resolve turns a user-supplied name into a Ref.
//
// # Description
//
// A local branch wins over a tag of the same name, and a tag wins over a
// revision expression. Anything go-git can resolve to a commit (full or
// abbreviated hash, HEAD~1, ...) is accepted as a commit.
//
// # Outputs
//
//   - Ref: The resolved ref
//   - error: ErrUnknownRef if nothing matches
func (g *Guard) Resolve(ctx context.Context, name string) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return Ref{}, err
	}
	if name == "" {
		return Ref{}, fmt.Errorf("%w: empty name", ErrUnknownRef)
	}

	if ref, err := g.repo.Reference(plumbing.NewBranchReferenceName(name), true); err == nil {
		return Branch(name, ref.Hash()), nil
	}

	if ref, err := g.repo.Tag(name); err == nil {
		hash, ok, err := g.peel(ref)
		if err != nil {
			return Ref{}, err
		}
		if ok {
			return Tag(name, hash), nil
		}
	}

	hash, err := g.repo.ResolveRevision(plumbing.Revision(name))
	if err == nil {
		if _, cerr := g.repo.CommitObject(*hash); cerr == nil {
			return Commit(*hash), nil
		}
	}

	return Ref{}, fmt.Errorf("%w: %q is not a branch, tag or commit", ErrUnknownRef, name)
}

// Checkout switches the working tree to ref.
//
// Branches are checked out attached; tags and commits detached. A working
// tree with uncommitted changes to tracked files is refused with
// ErrDirtyWorktree before HEAD moves; go-git itself only notices after
// HEAD has been rewritten. Untracked files are ignored.
func (g *Guard) Checkout(ctx context.Context, ref Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	wt, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	opts := &git.CheckoutOptions{}
	switch ref.Kind {
	case KindBranch:
		opts.Branch = plumbing.NewBranchReferenceName(ref.Name)
	case KindTag, KindCommit:
		opts.Hash = ref.Hash
	default:
		return fmt.Errorf("checkout: invalid ref %+v", ref)
	}

	changed, err := changedFiles(wt)
	if err != nil {
		return err
	}
	if len(changed) > 0 {
		return fmt.Errorf("checkout %s %s: %w: %s", ref.Kind, ref.Name, ErrDirtyWorktree, summarize(changed))
	}

	if err := wt.Checkout(opts); err != nil {
		return fmt.Errorf("checkout %s %s: %w", ref.Kind, ref.Name, err)
	}
	return nil
}

// WithCheckout checks out target, runs body, then restores the original ref.
//
// # Description
//
// The original ref is recorded before anything changes. Once the target
// checkout has been attempted, restoration runs in a deferred path, so it
// happens whether body returns an error or panics. When the target cannot
// be resolved or the working tree is dirty, nothing was moved and nothing
// is restored.
//
// The returned error is the first failure; a restore failure is joined onto
// it so neither is lost, and names the ref the repository was left on.
//
// Operator messages:
//
//	Checked out 1.2.0
//	Checked out main
//
// # Inputs
//
//   - ctx: Passed through to body
//   - target: Branch, tag or commit to check out
//   - body: Work to run while target is checked out
//
// # Outputs
//
//   - error: nil only if the checkout, body and restore all succeeded
//
// # Limitations
//
// If body leaves uncommitted changes to tracked files, the restore is
// refused with ErrDirtyWorktree and the repository stays on target.
func (g *Guard) WithCheckout(ctx context.Context, target string, body func(ctx context.Context) error) (err error) {
	original, err := g.Current(ctx)
	if err != nil {
		return fmt.Errorf("resolve current git ref: %w", err)
	}

	ref, err := g.Resolve(ctx, target)
	if err != nil {
		return err
	}

	moved := false
	defer func() {
		if !moved {
			return
		}
		if rerr := g.restore(ctx, original); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	if err := g.Checkout(ctx, ref); err != nil {
		// A dirty tree is refused before HEAD moves; any other failure
		// may have left HEAD on target.
		moved = !errors.Is(err, ErrDirtyWorktree)
		return err
	}
	moved = true
	fmt.Fprintf(g.out, "Checked out %s\n", target)

	return body(ctx)
}

// restore checks original back out. The caller's context may already be
// cancelled, so it is detached.
func (g *Guard) restore(ctx context.Context, original Ref) error {
	ctx = context.WithoutCancel(ctx)
	fmt.Fprintf(g.out, "Checked out %s\n", original)
	if err := g.Checkout(ctx, original); err != nil {
		if now, cerr := g.Current(ctx); cerr == nil {
			return fmt.Errorf("restore %s (repository left on %s %s): %w", original, now.Kind, now, err)
		}
		return fmt.Errorf("restore %s: %w", original, err)
	}
	return nil
}

// tagAt returns the first tag, by name, whose peeled commit is hash.
func (g *Guard) tagAt(hash plumbing.Hash) (string, bool, error) {
	iter, err := g.repo.Tags()
	if err != nil {
		return "", false, fmt.Errorf("list tags: %w", err)
	}
	defer iter.Close()

	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		peeled, ok, err := g.peel(ref)
		if err != nil {
			return err
		}
		if ok && peeled == hash {
			names = append(names, ref.Name().Short())
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	if len(names) == 0 {
		return "", false, nil
	}
	sort.Strings(names)
	return names[0], true, nil
}

// changedFiles lists tracked paths with staged or unstaged changes, sorted.
func changedFiles(wt *git.Worktree) ([]string, error) {
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("read worktree status: %w", err)
	}

	var paths []string
	for path, fs := range status {
		if fs.Staging == git.Untracked && fs.Worktree == git.Untracked {
			continue
		}
		if fs.Staging == git.Unmodified && fs.Worktree == git.Unmodified {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

// maxListedFiles caps how many paths a dirty-worktree error names.
const maxListedFiles = 5

func summarize(paths []string) string {
	if len(paths) <= maxListedFiles {
		return strings.Join(paths, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(paths[:maxListedFiles], ", "), len(paths)-maxListedFiles)
}

// peel resolves a tag reference to the commit it ultimately names. Tags that
// point at something other than a commit report ok=false.
func (g *Guard) peel(ref *plumbing.Reference) (plumbing.Hash, bool, error) {
	tagObj, err := g.repo.TagObject(ref.Hash())
	switch {
	case err == nil:
		commit, cerr := tagObj.Commit()
		if cerr != nil {
			return plumbing.ZeroHash, false, nil
		}
		return commit.Hash, true, nil
	case errors.Is(err, plumbing.ErrObjectNotFound):
		// Lightweight tag: the reference names the commit directly.
		return ref.Hash(), true, nil
	default:
		return plumbing.ZeroHash, false, fmt.Errorf("read tag %s: %w", ref.Name().Short(), err)
	}
}

var _ Checkouter = (*Guard)(nil)
