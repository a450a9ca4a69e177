// Package testdata keeps problem test-data packs on local disk. Packs live
// in object storage as zstd-compressed tarballs and are pulled down lazily,
// keyed by problem id and case version, so a version bump on the problem
// fetches fresh data without touching older extracts.
package testdata

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"vjudge/internal/common/storage"
	appErr "vjudge/pkg/errors"
	"vjudge/pkg/utils/logger"
)

const completeMarker = ".complete"

// Cache downloads and extracts test-data packs on demand.
type Cache struct {
	dir     string
	bucket  string
	storage storage.ObjectStorage
}

func NewCache(dir, bucket string, store storage.ObjectStorage) *Cache {
	return &Cache{dir: dir, bucket: bucket, storage: store}
}

// packKey is the object key of a problem's test-data pack.
func packKey(problemID int64, version string) string {
	return fmt.Sprintf("problem/%d/%s.tar.zst", problemID, version)
}

// EnsureLocal makes the pack for (problemID, version) available on disk and
// returns its directory. Already-extracted packs are reused; a partially
// extracted directory from a crashed run is re-extracted because its
// completion marker is missing.
func (c *Cache) EnsureLocal(ctx context.Context, problemID int64, version string) (string, error) {
	dir := filepath.Join(c.dir, strconv.FormatInt(problemID, 10), version)
	if _, err := os.Stat(filepath.Join(dir, completeMarker)); err == nil {
		return dir, nil
	}

	key := packKey(problemID, version)
	obj, err := c.storage.GetObject(ctx, c.bucket, key)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.TestDataMissing, "fetch test data pack %s", key)
	}
	defer obj.Close()

	if err := os.RemoveAll(dir); err != nil {
		return "", appErr.Wrapf(err, appErr.PackExtractFail, "clear stale extract dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", appErr.Wrapf(err, appErr.PackExtractFail, "create extract dir")
	}

	if err := extract(obj, dir); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, completeMarker), nil, 0o644); err != nil {
		return "", appErr.Wrapf(err, appErr.PackExtractFail, "write completion marker")
	}

	logger.Info(ctx, "extracted test data pack",
		zap.Int64("problem_id", problemID), zap.String("version", version))
	return dir, nil
}

// CasePath resolves a case file name inside an extracted pack.
func CasePath(dir, name string) string {
	return filepath.Join(dir, name)
}

func extract(r io.Reader, dir string) error {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return appErr.Wrapf(err, appErr.PackCorrupted, "open zstd stream")
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return appErr.Wrapf(err, appErr.PackCorrupted, "read tar entry")
		}

		name := filepath.Clean(hdr.Name)
		if strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			return appErr.Newf(appErr.PackCorrupted, "tar entry escapes pack: %s", hdr.Name)
		}
		target := filepath.Join(dir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return appErr.Wrapf(err, appErr.PackExtractFail, "create pack dir")
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return appErr.Wrapf(err, appErr.PackExtractFail, "create pack dir")
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return appErr.Wrapf(err, appErr.PackExtractFail, "create pack file")
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return appErr.Wrapf(err, appErr.PackExtractFail, "write pack file")
			}
			if err := f.Close(); err != nil {
				return appErr.Wrapf(err, appErr.PackExtractFail, "close pack file")
			}
		default:
			// Symlinks and devices have no business in a test-data pack.
			return appErr.Newf(appErr.PackCorrupted, "unsupported tar entry type %d for %s", hdr.Typeflag, hdr.Name)
		}
	}
}
