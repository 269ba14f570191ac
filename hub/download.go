package hub

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gomlx/go-clip-tokenizer/internal/downloader"
	"github.com/gomlx/go-clip-tokenizer/internal/files"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
)

// Suffixes of the files kept next to a cached file while it is fetched.
const (
	lockSuffix    = ".lock"
	partialSuffix = ".downloading"
)

// downloadManager returns the Repo's download manager, creating it on first use.
// It must be called before fetching files concurrently.
func (r *Repo) downloadManager() *downloader.Manager {
	if r.manager == nil {
		r.manager = downloader.New().
			MaxParallel(r.MaxParallelDownload).
			WithAuthToken(r.authToken).
			WithUserAgent(UserAgent())
	}
	return r.manager
}

// newProgressCallback returns a callback drawing a progress bar for fileName, or nil without progress bars.
// The bar is created on the first call, once the size is known.
func (r *Repo) newProgressCallback(fileName string) downloader.ProgressCallback {
	if !r.progressBar {
		return nil
	}
	var bar *progressbar.ProgressBar
	return func(downloaded, total int64) {
		if bar == nil {
			bar = progressbar.DefaultBytes(total, fileName)
		}
		_ = bar.Set64(downloaded)
		if total > 0 && downloaded >= total {
			_ = bar.Finish()
		}
	}
}

// lockedDownload fetches url into localPath with the Repo's download manager, see fetch.
func (r *Repo) lockedDownload(ctx context.Context, url, localPath string, force bool, cb downloader.ProgressCallback) error {
	return r.fetch(ctx, r.downloadManager(), url, localPath, force, cb)
}

// fetch downloads url into localPath, unless localPath is already cached and force is false.
//
// Concurrent fetches of the same file, from this or other processes, are serialized with a lock file
// (localPath+".lock"): the first one downloads into localPath+".downloading" and renames it into place, the
// others find the file cached once they get the lock.
func (r *Repo) fetch(ctx context.Context, manager *downloader.Manager, url, localPath string, force bool,
	cb downloader.ProgressCallback) error {
	if files.IsRegular(localPath) {
		if !force {
			return nil
		}
		if err := os.Remove(localPath); err != nil {
			return errors.Wrapf(err, "failed to remove %q to fetch it again", localPath)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), DirPerm); err != nil {
		return errors.Wrapf(err, "failed to create directory for %q", localPath)
	}

	lockPath := localPath + lockSuffix
	return withFileLock(ctx, lockPath, func() error {
		if files.IsRegular(localPath) {
			return nil
		}
		partialPath := localPath + partialSuffix
		if err := manager.Download(ctx, url, partialPath, cb); err != nil {
			if errRm := os.Remove(partialPath); errRm != nil && !os.IsNotExist(errRm) {
				slog.Warn("failed to remove partial download", "file", partialPath, "error", errRm)
			}
			return err
		}
		if err := os.Rename(partialPath, localPath); err != nil {
			return errors.Wrapf(err, "failed to move %q into place", partialPath)
		}
		if r.Verbosity > 0 {
			slog.Info("fetched", "repo", r.ID, "url", url, "file", localPath)
		}
		// The file is in place, later fetches return before locking.
		if err := os.Remove(lockPath); err != nil {
			slog.Warn("failed to remove lock file", "file", lockPath, "error", err)
		}
		return nil
	})
}

// withFileLock runs fn holding an exclusive flock on lockPath, which is created if needed.
// While another process holds the lock it polls every 1 to 2 seconds, until ctx is done.
func withFileLock(ctx context.Context, lockPath string, fn func() error) (err error) {
	f, err := os.OpenFile(lockPath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, FilePerm)
	if err != nil {
		return errors.Wrapf(err, "failed to open lock file %q", lockPath)
	}
	defer func() {
		if errClose := f.Close(); errClose != nil {
			slog.Warn("failed to close lock file", "file", lockPath, "error", errClose)
		}
	}()

	for {
		errLock := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if errLock == nil {
			break
		}
		if !errors.Is(errLock, syscall.EWOULDBLOCK) {
			return errors.Wrapf(errLock, "failed to lock %q", lockPath)
		}
		wait := time.NewTimer(time.Second + rand.N(time.Second))
		select {
		case <-ctx.Done():
			wait.Stop()
			return errors.Wrapf(ctx.Err(), "waiting for lock %q", lockPath)
		case <-wait.C:
		}
	}
	defer func() {
		if errUnlock := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); errUnlock != nil && err == nil {
			err = errors.Wrapf(errUnlock, "failed to unlock %q", lockPath)
		}
	}()
	return fn()
}
