package fetch

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/ulikunitz/xz"
)

type extractor func(archive *os.File, bar *progressbar.ProgressBar, destPath string, spec DepSpec) error

// getExtractor picks an extractor based on the archive's file extension.
func getExtractor(url string) (extractor, error) {
	switch {
	case strings.HasSuffix(url, ".zip"):
		return extractZip, nil
	case strings.HasSuffix(url, ".tar.gz"):
		return func(archive *os.File, bar *progressbar.ProgressBar, destPath string, spec DepSpec) error {
			reader, err := gzip.NewReader(archive)
			if err != nil {
				return eris.Wrap(err, "failed to open gzip stream")
			}
			defer reader.Close()

			return extractTar(reader, archive, bar, destPath, spec)
		}, nil
	case strings.HasSuffix(url, ".tar.xz"):
		return func(archive *os.File, bar *progressbar.ProgressBar, destPath string, spec DepSpec) error {
			reader, err := xz.NewReader(archive)
			if err != nil {
				return eris.Wrap(err, "failed to open xz stream")
			}

			return extractTar(reader, archive, bar, destPath, spec)
		}, nil
	}

	return nil, eris.Errorf("archive format of %s is not supported", url)
}

// stripTarget maps an archive entry to its destination path, dropping the
// first spec.Strip path elements. An empty result means the entry resolves
// to the destination root itself and should be skipped.
func stripTarget(destPath, item string, spec DepSpec) string {
	parts := strings.Split(filepath.Clean(filepath.FromSlash(item)), string(filepath.Separator))
	if len(parts) <= spec.Strip {
		return ""
	}

	dest := filepath.Join(destPath, strings.Join(parts[spec.Strip:], string(filepath.Separator)))
	if dest == destPath {
		return ""
	}

	return dest
}

func createTarget(dest string) (*os.File, error) {
	err := os.MkdirAll(filepath.Dir(dest), 0770)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to create directory %s", filepath.Dir(dest))
	}

	handle, err := os.Create(dest)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to create file %s", dest)
	}

	return handle, nil
}

func extractZip(archive *os.File, bar *progressbar.ProgressBar, destPath string, spec DepSpec) error {
	stat, err := archive.Stat()
	if err != nil {
		return eris.Wrap(err, "failed to stat archive")
	}

	reader, err := zip.NewReader(archive, stat.Size())
	if err != nil {
		return eris.Wrap(err, "failed to open zip archive")
	}

	for _, item := range reader.File {
		if strings.HasSuffix(item.Name, "/") {
			continue
		}

		dest := stripTarget(destPath, item.Name, spec)
		if dest == "" {
			continue
		}

		handle, err := createTarget(dest)
		if err != nil {
			return err
		}

		itemHandle, err := item.Open()
		if err != nil {
			handle.Close()
			return eris.Wrapf(err, "failed to open archive entry %s", item.Name)
		}

		_, err = io.Copy(handle, itemHandle)
		itemHandle.Close()
		handle.Close()
		if err != nil {
			return eris.Wrapf(err, "failed to write extracted file %s", dest)
		}

		if pos, err := archive.Seek(0, io.SeekCurrent); err == nil {
			bar.Set64(pos)
		}
	}

	return nil
}

func extractTar(stream io.Reader, archive *os.File, bar *progressbar.ProgressBar, destPath string, spec DepSpec) error {
	reader := tar.NewReader(stream)

	for {
		item, err := reader.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}

			return eris.Wrap(err, "failed to read archive entry")
		}

		fi := item.FileInfo()
		if fi.IsDir() {
			continue
		}

		dest := stripTarget(destPath, item.Name, spec)
		if dest == "" {
			continue
		}

		if item.Typeflag == tar.TypeSymlink {
			err = os.MkdirAll(filepath.Dir(dest), 0770)
			if err != nil {
				return eris.Wrapf(err, "failed to create directory %s", filepath.Dir(dest))
			}

			os.Remove(dest)
			err = os.Symlink(item.Linkname, dest)
			if err != nil {
				return eris.Wrapf(err, "failed to create symlink %s pointing to %s", dest, item.Linkname)
			}
			continue
		}

		handle, err := createTarget(dest)
		if err != nil {
			return err
		}

		_, err = io.Copy(handle, reader)
		handle.Close()
		if err != nil {
			return eris.Wrapf(err, "failed to write extracted file %s", dest)
		}

		os.Chmod(dest, fi.Mode())

		if pos, err := archive.Seek(0, io.SeekCurrent); err == nil {
			bar.Set64(pos)
		}
	}
}
