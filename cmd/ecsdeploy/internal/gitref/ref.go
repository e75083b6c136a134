// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gitref checks out a tag, branch or commit for the duration of a
// build and puts the repository back where it was afterwards.
//
// # Description
//
// A ref is resolved explicitly into one of three kinds (branch, tag, commit)
// so that restoring it is unambiguous: a branch is re-attached, a tag or a
// commit is checked out detached.
//
// # Example
//
//	guard, err := gitref.Open(".", os.Stdout)
//	if err != nil {
//	    return err
//	}
//	err = guard.WithCheckout(ctx, "1.2.0", func(ctx context.Context) error {
//	    return buildImage(ctx, "1.2.0")
//	})
package gitref

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
)

// ErrUnknownRef is returned when a name matches no branch, tag or commit.
var ErrUnknownRef = errors.New("unknown git ref")

// ErrDirtyWorktree is returned when a checkout is refused because tracked
// files have uncommitted changes.
var ErrDirtyWorktree = errors.New("working tree has uncommitted changes")

// Kind identifies what a Ref points at.
type Kind int

const (
	// KindBranch is a local branch; checking it out attaches HEAD.
	KindBranch Kind = iota + 1

	// KindTag is a tag; checking it out detaches HEAD at the tagged commit.
	KindTag

	// KindCommit is a bare commit hash; checking it out detaches HEAD.
	KindCommit
)

// String returns "branch", "tag" or "commit".
func (k Kind) String() string {
	switch k {
	case KindBranch:
		return "branch"
	case KindTag:
		return "tag"
	case KindCommit:
		return "commit"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Ref is a resolved git reference.
//
// Name is the branch or tag name for KindBranch and KindTag, and the full
// hex hash for KindCommit. Hash is always the commit the ref resolves to.
type Ref struct {
	Kind Kind
	Name string
	Hash plumbing.Hash
}

// Branch returns a branch Ref.
func Branch(name string, hash plumbing.Hash) Ref {
	return Ref{Kind: KindBranch, Name: name, Hash: hash}
}

// Tag returns a tag Ref.
func Tag(name string, hash plumbing.Hash) Ref {
	return Ref{Kind: KindTag, Name: name, Hash: hash}
}

// Commit returns a commit Ref named by its full hash.
func Commit(hash plumbing.Hash) Ref {
	return Ref{Kind: KindCommit, Name: hash.String(), Hash: hash}
}

// String returns the name used in operator messages.
func (r Ref) String() string {
	return r.Name
}

