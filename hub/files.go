package hub

import (
	"context"
	"iter"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// IterFileNames yields the names of the files in the repository. Only the repository info is fetched.
//
// Names that could escape the snapshot directory (absolute, or with a ".." segment) end the iteration with an error.
func (r *Repo) IterFileNames() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := r.DownloadInfo(false); err != nil {
			yield("", err)
			return
		}
		for _, name := range r.info.FileNames() {
			if path.IsAbs(name) || slices.Contains(strings.Split(name, "/"), "..") {
				yield("", errors.Errorf("repository %q lists an invalid file name %q", r.ID, name))
				return
			}
			if !yield(name, nil) {
				return
			}
		}
	}
}

// cleanRelativeFilePath turns a "/" separated repository file name into an OS relative path that stays inside
// the snapshot directory. It returns "." for names that resolve to the directory itself.
func cleanRelativeFilePath(fileName string) string {
	cleaned := strings.TrimPrefix(path.Clean("/"+fileName), "/")
	if cleaned == "" {
		return "."
	}
	return filepath.FromSlash(cleaned)
}

// DownloadFiles fetches the given repository files into the cache, and returns their local paths in the same
// order. The returned files are shared with other programs and must not be modified.
//
// Cached files are not fetched again. The others are fetched concurrently, bounded by MaxParallelDownload.
func (r *Repo) DownloadFiles(fileNames ...string) ([]string, error) {
	return r.DownloadFilesContext(context.Background(), fileNames...)
}

// DownloadFilesContext is DownloadFiles with a context that cancels pending downloads.
func (r *Repo) DownloadFilesContext(ctx context.Context, fileNames ...string) ([]string, error) {
	if len(fileNames) == 0 {
		return nil, nil
	}
	snapshot, err := r.snapshotDir()
	if err != nil {
		return nil, err
	}

	type job struct {
		name, url, localPath string
	}
	jobs := make([]job, len(fileNames))
	for i, name := range fileNames {
		rel := cleanRelativeFilePath(name)
		if rel == "." {
			return nil, errors.Errorf("invalid file name %q for repository %q", name, r.ID)
		}
		url, err := r.FileURL(filepath.ToSlash(rel))
		if err != nil {
			return nil, err
		}
		jobs[i] = job{name: name, url: url, localPath: filepath.Join(snapshot, rel)}
	}

	manager := r.downloadManager()
	g, gCtx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		g.Go(func() error {
			err := r.fetch(gCtx, manager, j.url, j.localPath, false, r.newProgressCallback(j.name))
			return errors.WithMessagef(err, "failed to fetch %q from %q", j.name, r.ID)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	localPaths := make([]string, len(jobs))
	for i, j := range jobs {
		localPaths[i] = j.localPath
	}
	return localPaths, nil
}

// DownloadFile fetches a single file, see DownloadFiles.
func (r *Repo) DownloadFile(fileName string) (string, error) {
	localPaths, err := r.DownloadFiles(fileName)
	if err != nil {
		return "", err
	}
	return localPaths[0], nil
}
