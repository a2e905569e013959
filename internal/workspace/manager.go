// Package workspace materializes version-control refs into per-repository
// scratch directories and guards each directory with a mutex so concurrent
// runs never share a tree.
package workspace

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/okarhu/pipewatch/internal/util"
)

// VCSClient is the version-control collaborator the manager needs.
type VCSClient interface {
	Clone(url, dest, ref string) (string, error)
	FetchAndReset(dest, url, ref string) (string, error)
}

// Workspace is the materialized file tree of one commit.
type Workspace struct {
	Path     string
	Commit   string
	SyncedOn time.Time
}

type Manager struct {
	baseDir string
	vcs     VCSClient
	locks   *LockMap[string]
}

func NewManager(baseDir string, vcs VCSClient) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{
		baseDir: baseDir,
		vcs:     vcs,
		locks:   NewLockMap[string](),
	}
}

// Lock returns the mutex guarding the workspace of a repository. Callers
// hold it for the duration of a run.
func (m *Manager) Lock(repository string) *sync.Mutex {
	return m.locks.Get(util.RepositoryDirName(repository))
}

// Path returns the workspace directory a repository syncs into.
func (m *Manager) Path(repository string) string {
	return filepath.Join(m.baseDir, util.RepositoryDirName(repository))
}

// Sync materializes the remote ref into the repository's workspace: a clone
// on first use, otherwise fetch and hard reset. On success the tree exactly
// matches the remote ref's tree.
func (m *Manager) Sync(repository, ref string) (*Workspace, error) {
	if err := os.MkdirAll(m.baseDir, 0o750); err != nil {
		return nil, err
	}

	dest := m.Path(repository)
	var commit string
	var err error
	if exists, _ := util.PathExists(filepath.Join(dest, ".git")); exists {
		commit, err = m.vcs.FetchAndReset(dest, repository, ref)
	} else {
		commit, err = m.vcs.Clone(repository, dest, ref)
	}
	if err != nil {
		return nil, err
	}

	ws := &Workspace{
		Path:     dest,
		Commit:   commit,
		SyncedOn: time.Now().UTC(),
	}
	slog.Debug("workspace synced", "repository", repository, "ref", ref, "path", ws.Path, "commit", commit)
	return ws, nil
}
