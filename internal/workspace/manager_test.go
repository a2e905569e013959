package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockVCSClient struct {
	mock.Mock
}

func (m *MockVCSClient) Clone(url, dest, ref string) (string, error) {
	args := m.Called(url, dest, ref)
	return args.String(0), args.Error(1)
}

func (m *MockVCSClient) FetchAndReset(dest, url, ref string) (string, error) {
	args := m.Called(dest, url, ref)
	return args.String(0), args.Error(1)
}

func TestManager_Sync(t *testing.T) {
	t.Run("success - first sync clones", func(t *testing.T) {
		// arrange
		baseDir := t.TempDir()
		mockVCS := new(MockVCSClient)
		manager := NewManager(baseDir, mockVCS)
		repo := "git@github.com:okarhu/sample-app.git"
		dest := filepath.Join(baseDir, "sample-app")
		mockVCS.On("Clone", repo, dest, "main").Return("abc123", nil)

		// act
		ws, err := manager.Sync(repo, "main")

		// assert
		assert.NoError(t, err)
		assert.NotNil(t, ws)
		assert.Equal(t, dest, ws.Path)
		assert.Equal(t, "abc123", ws.Commit)
		assert.False(t, ws.SyncedOn.IsZero())
		mockVCS.AssertExpectations(t)
	})
	t.Run("success - existing clone fetches and resets", func(t *testing.T) {
		// arrange
		baseDir := t.TempDir()
		mockVCS := new(MockVCSClient)
		manager := NewManager(baseDir, mockVCS)
		repo := "git@github.com:okarhu/sample-app.git"
		dest := filepath.Join(baseDir, "sample-app")
		assert.NoError(t, os.MkdirAll(filepath.Join(dest, ".git"), 0o750))
		mockVCS.On("FetchAndReset", dest, repo, "main").Return("def456", nil)

		// act
		ws, err := manager.Sync(repo, "main")

		// assert
		assert.NoError(t, err)
		assert.Equal(t, "def456", ws.Commit)
		mockVCS.AssertExpectations(t)
	})
	t.Run("success - repeated sync is idempotent", func(t *testing.T) {
		// arrange
		baseDir := t.TempDir()
		mockVCS := new(MockVCSClient)
		manager := NewManager(baseDir, mockVCS)
		repo := "https://github.com/okarhu/sample-app"
		dest := filepath.Join(baseDir, "sample-app")
		mockVCS.On("Clone", repo, dest, "main").Return("abc123", nil).Once()
		mockVCS.On("FetchAndReset", dest, repo, "main").Return("abc123", nil).Once()

		// act
		first, err1 := manager.Sync(repo, "main")
		assert.NoError(t, os.MkdirAll(filepath.Join(dest, ".git"), 0o750))
		second, err2 := manager.Sync(repo, "main")

		// assert
		assert.NoError(t, err1)
		assert.NoError(t, err2)
		assert.Equal(t, first.Commit, second.Commit)
		assert.Equal(t, first.Path, second.Path)
		mockVCS.AssertExpectations(t)
	})
	t.Run("failure - vcs error propagates", func(t *testing.T) {
		// arrange
		mockVCS := new(MockVCSClient)
		manager := NewManager(t.TempDir(), mockVCS)
		mockVCS.On("Clone", mock.Anything, mock.Anything, mock.Anything).
			Return("", assert.AnError)

		// act
		ws, err := manager.Sync("https://github.com/okarhu/sample-app", "main")

		// assert
		assert.Error(t, err)
		assert.Nil(t, ws)
	})
}

func TestManager_Lock(t *testing.T) {
	t.Run("success - same repository shares one mutex", func(t *testing.T) {
		// arrange
		manager := NewManager(t.TempDir(), new(MockVCSClient))

		// act
		a := manager.Lock("git@github.com:okarhu/sample-app.git")
		b := manager.Lock("https://github.com/okarhu/sample-app.git")

		// assert
		assert.Same(t, a, b)
	})
	t.Run("success - second run waits for the first", func(t *testing.T) {
		// arrange
		manager := NewManager(t.TempDir(), new(MockVCSClient))
		lock := manager.Lock("repo")
		lock.Lock()
		acquired := make(chan struct{})

		// act
		go func() {
			manager.Lock("repo").Lock()
			close(acquired)
			manager.Lock("repo").Unlock()
		}()

		// assert
		select {
		case <-acquired:
			t.Fatal("second run acquired the workspace while the first held it")
		default:
		}
		lock.Unlock()
		<-acquired
	})
}
