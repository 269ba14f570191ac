package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/gomlx/go-clip-tokenizer/internal/files"
	"github.com/pkg/errors"
)

// RepoInfo is the part of the hub API description of a repository
// (https://huggingface.co/api/models/<id>/revision/<revision>) used to locate its files.
type RepoInfo struct {
	ID         string      `json:"id"`
	Author     string      `json:"author"`
	CommitHash string      `json:"sha"`
	Private    bool        `json:"private"`
	Tags       []string    `json:"tags"`
	Siblings   []*FileInfo `json:"siblings"`
}

// FileInfo describes one file of the repository.
type FileInfo struct {
	Name string `json:"rfilename"`
}

// FileNames returns the names of the files in the repository, in the order the hub lists them.
func (info *RepoInfo) FileNames() []string {
	names := make([]string, 0, len(info.Siblings))
	for _, sibling := range info.Siblings {
		names = append(names, sibling.Name)
	}
	return names
}

// Info returns the repository description, fetching it if needed. It returns nil if it can't be fetched:
// use DownloadInfo to get the error.
func (r *Repo) Info() *RepoInfo {
	if err := r.DownloadInfo(false); err != nil {
		slog.Error("failed to fetch repository info", "repo", r.ID, "revision", r.revision, "error", err)
		return nil
	}
	return r.info
}

// HasFile reports whether the repository holds fileName. It is false if the repository info can't be fetched.
func (r *Repo) HasFile(fileName string) bool {
	info := r.Info()
	if info == nil {
		return false
	}
	for _, sibling := range info.Siblings {
		if sibling.Name == fileName {
			return true
		}
	}
	return false
}

func (r *Repo) infoURL() string {
	return fmt.Sprintf("%s/api/%s/%s/revision/%s", r.endpoint, r.repoType, r.ID, r.revision)
}

// DownloadInfo fetches the repository description for the current revision, unless it was already loaded.
//
// The description is cached in "<repo folder>/info/<revision>", so later Repos with the same cache work
// offline. forceDownload refreshes both the loaded and the cached description, e.g. to follow a branch.
func (r *Repo) DownloadInfo(forceDownload bool) error {
	if r.info != nil && !forceDownload {
		return nil
	}
	infoPath, err := r.cachePath("info", r.revision)
	if err != nil {
		return err
	}
	if forceDownload || !files.IsRegular(infoPath) {
		if err := r.lockedDownload(context.Background(), r.infoURL(), infoPath, forceDownload, nil); err != nil {
			return errors.WithMessagef(err, "failed to fetch info of %q", r.ID)
		}
	}

	info, err := readInfo(infoPath)
	if err != nil {
		return errors.WithMessagef(err, "info of %q downloaded from %q", r.ID, r.infoURL())
	}
	r.info = info
	return nil
}

// readInfo parses a cached repository description.
func readInfo(infoPath string) (*RepoInfo, error) {
	content, err := os.ReadFile(infoPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %q", infoPath)
	}
	info := &RepoInfo{}
	if err := json.Unmarshal(content, info); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %q, remove it to fetch it again", infoPath)
	}
	if info.CommitHash == "" {
		return nil, errors.Errorf("%q has no commit hash, remove it to fetch it again", infoPath)
	}
	return info, nil
}
