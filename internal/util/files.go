package util

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

func PathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	return false, err
}

// ArchiveDirectory zips the contents of dirPath into destDir and returns the
// archive path.
func ArchiveDirectory(dirPath, destDir string) (string, error) {
	_, folderName := path.Split(dirPath)
	archive, err := os.Create(path.Join(destDir, folderName+".zip"))
	if err != nil {
		return "", err
	}
	defer archive.Close()

	paths := make([]string, 0)
	filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})

	zw := zip.NewWriter(archive)
	for _, p := range paths {
		if err := copyToArchive(zw, p); err != nil {
			return "", err
		}
	}

	if err := zw.Close(); err != nil {
		return "", err
	}

	return archive.Name(), nil
}

// CopyDirectory copies the tree rooted at srcDir into destDir, creating
// destDir and any intermediate directories.
func CopyDirectory(srcDir, destDir string) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return err
	}

	for _, entry := range entries {
		srcPath := filepath.Join(srcDir, entry.Name())
		destPath := filepath.Join(destDir, entry.Name())

		if entry.IsDir() {
			if err := CopyDirectory(srcPath, destPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, destPath); err != nil {
			return err
		}
	}

	return nil
}

func copyFile(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer dest.Close()

	_, err = io.Copy(dest, src)
	return err
}

func copyToArchive(zw *zip.Writer, p string) error {
	// open file to archive
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()

	// open file in archive
	zf, err := zw.Create(p)
	if err != nil {
		return err
	}

	// copy file to archive
	if _, err := io.Copy(zf, f); err != nil {
		return err
	}
	return nil
}
