// Package hub fetches tokenizer files (tokenizer_config.json, merges.txt) from a HuggingFace Hub repository
// into the local cache.
//
// The cache uses the layout of the huggingface_hub python library ("models--<owner>--<name>/snapshots/<commit>/"),
// so files fetched by either one are reused by the other.
package hub

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	cliptokenizer "github.com/gomlx/go-clip-tokenizer"
	"github.com/google/uuid"
)

const (
	// DefaultEndpoint of the HuggingFace Hub, overridden by $HF_ENDPOINT.
	DefaultEndpoint = "https://huggingface.co"

	// DefaultRevision is the branch files are fetched from unless Repo.WithRevision is used.
	DefaultRevision = "main"

	// folderSeparator joins the repository type, owner and name into the cache folder name.
	folderSeparator = "--"
)

// RepoType is the kind of HuggingFace repository, as it appears in API paths.
type RepoType string

const (
	RepoTypeModel   RepoType = "models"
	RepoTypeDataset RepoType = "datasets"
	RepoTypeSpace   RepoType = "spaces"
)

// Permissions of the directories and files created in the cache.
var (
	DirPerm  os.FileMode = 0o755
	FilePerm os.FileMode = 0o644
)

// SessionID identifies this process in the user agent of every request.
var SessionID = strings.ReplaceAll(uuid.NewString(), "-", "")

// DefaultCacheDir returns the cache directory shared with huggingface_hub: $HF_HUB_CACHE, or $HF_HOME/hub, or
// $XDG_CACHE_HOME/huggingface/hub, or ~/.cache/huggingface/hub, the first that is set.
func DefaultCacheDir() string {
	if dir := os.Getenv("HF_HUB_CACHE"); dir != "" {
		return dir
	}
	if home := os.Getenv("HF_HOME"); home != "" {
		return filepath.Join(home, "hub")
	}
	cacheHome := os.Getenv("XDG_CACHE_HOME")
	if cacheHome == "" {
		cacheHome = filepath.Join(os.Getenv("HOME"), ".cache")
	}
	return filepath.Join(cacheHome, "huggingface", "hub")
}

// UserAgent sent with hub requests.
func UserAgent() string {
	return fmt.Sprintf("go-clip-tokenizer/%s; golang/%s; session_id/%s",
		cliptokenizer.Version, runtime.Version(), SessionID)
}

func defaultEndpoint() string {
	if endpoint := os.Getenv("HF_ENDPOINT"); endpoint != "" {
		return strings.TrimSuffix(endpoint, "/")
	}
	return DefaultEndpoint
}
