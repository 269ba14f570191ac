// Package files holds the path helpers shared by the hub cache and local vocabulary files.
package files

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Exists reports whether filePath names an existing file or directory.
func Exists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}

// IsRegular reports whether filePath names an existing regular file, following symlinks.
// Cached snapshot files are symlinks into the blobs directory.
func IsRegular(filePath string) bool {
	info, err := os.Stat(filePath)
	return err == nil && info.Mode().IsRegular()
}

// ReplaceTildeInDir replaces a leading "~" or "~user" by the home directory of the current (or named) user.
// Paths not starting with "~" are returned unchanged.
func ReplaceTildeInDir(dir string) (string, error) {
	if !strings.HasPrefix(dir, "~") {
		return dir, nil
	}
	userName, rest, _ := strings.Cut(dir[1:], "/")
	var (
		usr *user.User
		err error
	)
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return dir, errors.Wrapf(err, "failed to lookup home directory for %q", dir)
	}
	return filepath.Join(usr.HomeDir, rest), nil
}

// ExpandPath expands environment variables and a leading "~" in filePath, and cleans the result.
// An empty filePath is returned as is.
func ExpandPath(filePath string) (string, error) {
	if filePath == "" {
		return "", nil
	}
	expanded, err := ReplaceTildeInDir(os.ExpandEnv(filePath))
	if err != nil {
		return filePath, err
	}
	return filepath.Clean(expanded), nil
}
