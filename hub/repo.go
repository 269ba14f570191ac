package hub

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/go-clip-tokenizer/internal/downloader"
	"github.com/gomlx/go-clip-tokenizer/internal/files"
	"github.com/pkg/errors"
)

// Repo is a HuggingFace repository tokenizer files are fetched from. Create it with New and configure it with
// the With* methods before use.
//
// A Repo is not safe for concurrent configuration, but DownloadFiles may fetch several files concurrently.
type Repo struct {
	// ID of the repository, usually "owner/name", e.g. "openai/clip-vit-base-patch32".
	ID string

	// Verbosity 0 is quiet, 1 logs every fetched file at Info level.
	Verbosity int

	// MaxParallelDownload bounds the concurrent downloads of a Repo that creates its own download manager.
	// Values <= 0 remove the bound.
	MaxParallelDownload int

	endpoint  string
	repoType  RepoType
	revision  string
	authToken string
	cacheDir  string

	progressBar bool
	manager     *downloader.Manager

	// info is fetched lazily, see DownloadInfo.
	info *RepoInfo
}

// New returns a model Repo for id, using DefaultCacheDir and DefaultRevision.
func New(id string) *Repo {
	return &Repo{
		ID:                  id,
		Verbosity:           1,
		MaxParallelDownload: downloader.DefaultMaxParallel,
		endpoint:            defaultEndpoint(),
		repoType:            RepoTypeModel,
		revision:            DefaultRevision,
		cacheDir:            DefaultCacheDir(),
	}
}

// WithAuth sets the token sent as "Authorization: Bearer <token>". An empty token disables authentication.
func (r *Repo) WithAuth(authToken string) *Repo {
	r.authToken = authToken
	return r
}

// WithType sets the repository type. Defaults to RepoTypeModel.
func (r *Repo) WithType(repoType RepoType) *Repo {
	r.repoType = repoType
	return r
}

// WithEndpoint sets the hub URL. An empty endpoint restores DefaultEndpoint.
func (r *Repo) WithEndpoint(endpoint string) *Repo {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	r.endpoint = strings.TrimSuffix(endpoint, "/")
	return r
}

// WithRevision sets the branch, tag or commit hash to fetch files from.
func (r *Repo) WithRevision(revision string) *Repo {
	if revision == "" {
		revision = DefaultRevision
	}
	if revision != r.revision {
		r.info = nil
	}
	r.revision = revision
	return r
}

// WithCacheDir sets the root cache directory. A leading "~" and environment variables are expanded.
func (r *Repo) WithCacheDir(cacheDir string) *Repo {
	dir, err := files.ExpandPath(cacheDir)
	if err != nil || dir == "" {
		slog.Warn("ignoring cache directory", "dir", cacheDir, "current", r.cacheDir, "error", err)
		return r
	}
	r.cacheDir = dir
	return r
}

// WithDownloadManager shares manager between Repos, so that their downloads are bounded together.
func (r *Repo) WithDownloadManager(manager *downloader.Manager) *Repo {
	r.manager = manager
	return r
}

// WithProgressBar enables a progress bar on stderr for each downloaded file. Disabled by default.
func (r *Repo) WithProgressBar(enabled bool) *Repo {
	r.progressBar = enabled
	return r
}

// CacheDir returns the root cache directory.
func (r *Repo) CacheDir() string {
	return r.cacheDir
}

// Revision returns the revision files are fetched from.
func (r *Repo) Revision() string {
	return r.revision
}

// String returns the repository ID.
func (r *Repo) String() string {
	return r.ID
}

// folderName is the name of the repository folder in the cache, e.g. "models--openai--clip-vit-base-patch32".
func (r *Repo) folderName() string {
	return string(r.repoType) + folderSeparator + strings.ReplaceAll(r.ID, "/", folderSeparator)
}

// cachePath returns the path of elem inside the repository folder of the cache, creating its parent
// directories.
func (r *Repo) cachePath(elem ...string) (string, error) {
	p := filepath.Join(append([]string{r.cacheDir, r.folderName()}, elem...)...)
	if err := os.MkdirAll(filepath.Dir(p), DirPerm); err != nil {
		return "", errors.Wrapf(err, "failed to create cache directory for %q", p)
	}
	return p, nil
}

// snapshotDir returns the cache directory holding the files of the resolved revision.
func (r *Repo) snapshotDir() (string, error) {
	if err := r.DownloadInfo(false); err != nil {
		return "", err
	}
	dir, err := r.cachePath("snapshots", r.info.CommitHash)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, DirPerm); err != nil {
		return "", errors.Wrapf(err, "failed to create snapshot directory %q", dir)
	}
	return dir, nil
}

// FileURL returns the download URL of fileName at the commit the revision resolves to.
func (r *Repo) FileURL(fileName string) (string, error) {
	if err := r.DownloadInfo(false); err != nil {
		return "", err
	}
	base := r.endpoint
	if r.repoType != RepoTypeModel {
		base += "/" + string(r.repoType)
	}
	return fmt.Sprintf("%s/%s/resolve/%s/%s", base, r.ID, r.info.CommitHash, fileName), nil
}
