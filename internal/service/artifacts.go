package service

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/okarhu/pipewatch/internal/pipeline"
	"github.com/okarhu/pipewatch/internal/util"
	"github.com/okarhu/pipewatch/internal/workspace"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// ArtifactCollector copies the artifact paths declared by a pipeline script
// out of a finished workspace and archives them. Collect returns nil when
// no stage declares artifacts.
type ArtifactCollector interface {
	Collect(ps *pipeline.Script, ws *workspace.Workspace, runID int64) (*string, error)
}

func declaresArtifacts(ps *pipeline.Script) bool {
	for _, stage := range ps.Stages {
		if stage.Artifacts != "" {
			return true
		}
	}
	return false
}

func prepareArtifactsDir(root string, runID int64) (string, error) {
	if exists, _ := util.PathExists(root); !exists {
		if err := os.MkdirAll(root, 0o750); err != nil {
			return "", err
		}
	}
	artifactsDir := path.Join(root, fmt.Sprintf("%d", runID))
	if err := os.MkdirAll(artifactsDir, 0o750); err != nil {
		return "", err
	}
	return artifactsDir, nil
}

// LocalCollector gathers artifacts from a workspace on the same machine.
type LocalCollector struct {
	root string
}

func NewLocalCollector(root string) *LocalCollector {
	return &LocalCollector{root: root}
}

func (c *LocalCollector) Collect(
	ps *pipeline.Script,
	ws *workspace.Workspace,
	runID int64,
) (*string, error) {
	if !declaresArtifacts(ps) {
		return nil, nil
	}
	artifactsDir, err := prepareArtifactsDir(c.root, runID)
	if err != nil {
		return nil, err
	}

	for i, stage := range ps.Stages {
		if stage.Artifacts == "" {
			continue
		}
		stageName := util.RemoveNonAlphabetChars(stage.Stage)
		if err := util.CopyDirectory(
			filepath.Join(ws.Path, stage.Artifacts),
			filepath.Join(artifactsDir, fmt.Sprintf("%d_%s", i+1, stageName), stage.Artifacts),
		); err != nil {
			return nil, err
		}
	}

	archive, err := util.ArchiveDirectory(artifactsDir, c.root)
	if err != nil {
		return nil, err
	}
	return &archive, nil
}

// SFTPCollector gathers artifacts from a remote agent workspace over the
// run's SSH connection.
type SFTPCollector struct {
	root   string
	client *ssh.Client
}

func NewSFTPCollector(root string, client *ssh.Client) *SFTPCollector {
	return &SFTPCollector{root: root, client: client}
}

func (c *SFTPCollector) Collect(
	ps *pipeline.Script,
	ws *workspace.Workspace,
	runID int64,
) (*string, error) {
	if !declaresArtifacts(ps) {
		return nil, nil
	}
	artifactsDir, err := prepareArtifactsDir(c.root, runID)
	if err != nil {
		return nil, err
	}

	sftpClient, err := sftp.NewClient(c.client)
	if err != nil {
		return nil, err
	}
	defer sftpClient.Close()

	for i, stage := range ps.Stages {
		if stage.Artifacts == "" {
			continue
		}
		stageName := util.RemoveNonAlphabetChars(stage.Stage)
		if err := recursiveDownload(
			sftpClient,
			filepath.Join(ws.Path, stage.Artifacts),
			filepath.Join(artifactsDir, fmt.Sprintf("%d_%s", i+1, stageName), stage.Artifacts),
		); err != nil {
			return nil, err
		}
	}

	archive, err := util.ArchiveDirectory(artifactsDir, c.root)
	if err != nil {
		return nil, err
	}
	return &archive, nil
}

func recursiveDownload(sftpClient *sftp.Client, remotePath, localPath string) error {
	files, err := sftpClient.ReadDir(remotePath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(localPath, 0o750); err != nil {
		return err
	}

	for _, f := range files {
		remoteFilePath := filepath.Join(remotePath, f.Name())
		localFilePath := filepath.Join(localPath, f.Name())

		if f.IsDir() {
			if err := recursiveDownload(
				sftpClient, remoteFilePath, localFilePath,
			); err != nil {
				return err
			}
		} else {
			if err := downloadFile(
				sftpClient, remoteFilePath, localFilePath,
			); err != nil {
				return err
			}
		}
	}

	return nil
}

func downloadFile(sftpClient *sftp.Client, remotePath, localPath string) error {
	remoteFile, err := sftpClient.Open(remotePath)
	if err != nil {
		return err
	}
	defer remoteFile.Close()

	localFile, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer localFile.Close()

	if _, err := io.Copy(localFile, remoteFile); err != nil {
		return err
	}

	return nil
}
