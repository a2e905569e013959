// Package vcs wraps the go-git operations the orchestrator needs: resolving
// a remote ref to a commit id without cloning, cloning a ref into a
// directory, and forcing an existing clone to match the remote exactly.
package vcs

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
)

type Client struct {
	auth transport.AuthMethod
}

func NewClient() *Client {
	return &Client{}
}

// WithTokenAuth attaches HTTP token authentication for private remotes.
func (c *Client) WithTokenAuth(username, token string) *Client {
	if username == "" {
		username = "git"
	}
	c.auth = &http.BasicAuth{Username: username, Password: token}
	return c
}

// Resolve returns the commit id the remote's ref currently points at,
// without cloning. Branches take precedence over tags of the same name.
func (c *Client) Resolve(url, ref string) (string, error) {
	remote := git.NewRemote(memory.NewStorage(), &gitcfg.RemoteConfig{
		Name: "origin",
		URLs: []string{url},
	})

	refs, err := remote.List(&git.ListOptions{Auth: c.auth})
	if err != nil {
		return "", newVCSError("resolve", url, err)
	}

	candidates := []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(ref),
		plumbing.NewTagReferenceName(ref),
		plumbing.ReferenceName(ref),
	}
	for _, candidate := range candidates {
		for _, r := range refs {
			if r.Type() == plumbing.SymbolicReference {
				continue
			}
			if r.Name() == candidate {
				return r.Hash().String(), nil
			}
		}
	}
	return "", newVCSError("resolve", url, fmt.Errorf("ref '%s' not found on remote", ref))
}

// Clone clones the ref into dest and returns the checked-out commit id. Any
// existing content at dest is removed first.
func (c *Client) Clone(url, dest, ref string) (string, error) {
	if err := os.RemoveAll(dest); err != nil {
		return "", newVCSError("clone", url, err)
	}

	cloneOptions := &git.CloneOptions{URL: url, Auth: c.auth}
	if ref != "" {
		cloneOptions.ReferenceName = plumbing.NewBranchReferenceName(ref)
		cloneOptions.SingleBranch = true
	}
	repository, err := git.PlainClone(dest, false, cloneOptions)
	if err != nil {
		return "", newVCSError("clone", url, err)
	}

	head, err := repository.Head()
	if err != nil {
		return "", newVCSError("clone", url, err)
	}
	slog.Debug("repository cloned", "url", url, "ref", ref, "commit", shortHash(head.Hash()))
	return head.Hash().String(), nil
}

// FetchAndReset fetches origin and hard-resets the worktree to the remote
// ref, cleaning untracked files, so the tree exactly matches the remote.
// Returns the commit id the worktree ends up on.
func (c *Client) FetchAndReset(dest, url, ref string) (string, error) {
	repository, err := git.PlainOpen(dest)
	if err != nil {
		return "", newVCSError("fetch", url, err)
	}

	fetchOpts := &git.FetchOptions{
		RemoteName: "origin",
		Tags:       git.NoTags,
		RefSpecs:   []gitcfg.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
		Auth:       c.auth,
	}
	if err := repository.Fetch(fetchOpts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return "", newVCSError("fetch", url, err)
	}

	remoteRef, err := repository.Reference(plumbing.NewRemoteReferenceName("origin", ref), true)
	if err != nil {
		return "", newVCSError("fetch", url, fmt.Errorf("remote ref '%s': %w", ref, err))
	}

	wt, err := repository.Worktree()
	if err != nil {
		return "", newVCSError("fetch", url, err)
	}

	localBranchRef := plumbing.NewBranchReferenceName(ref)
	if _, lerr := repository.Reference(localBranchRef, true); lerr != nil {
		err = wt.Checkout(&git.CheckoutOptions{Branch: localBranchRef, Create: true, Force: true})
	} else {
		err = wt.Checkout(&git.CheckoutOptions{Branch: localBranchRef, Force: true})
	}
	if err != nil {
		return "", newVCSError("fetch", url, fmt.Errorf("checkout '%s': %w", ref, err))
	}

	if err := wt.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
		return "", newVCSError("fetch", url, fmt.Errorf("hard reset: %w", err))
	}
	if err := wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return "", newVCSError("fetch", url, fmt.Errorf("clean untracked: %w", err))
	}

	slog.Debug("repository synced", "url", url, "ref", ref, "commit", shortHash(remoteRef.Hash()))
	return remoteRef.Hash().String(), nil
}

func shortHash(h plumbing.Hash) string {
	return h.String()[:8]
}
