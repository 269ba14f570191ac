package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRepoID     = "openai/clip-test"
	testCommitHash = "0123456789abcdef"
)

// fakeHub serves the repository info and files of a single model repository.
type fakeHub struct {
	*httptest.Server
	files    map[string]string
	requests atomic.Int32
	auth     atomic.Value
}

func newFakeHub(t *testing.T, files map[string]string) *fakeHub {
	h := &fakeHub{files: files}
	h.auth.Store("")
	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("/api/models/%s/revision/", testRepoID), func(w http.ResponseWriter, req *http.Request) {
		h.requests.Add(1)
		h.auth.Store(req.Header.Get("Authorization"))
		var siblings []string
		for name := range h.files {
			siblings = append(siblings, fmt.Sprintf(`{"rfilename": %q}`, name))
		}
		_, _ = fmt.Fprintf(w, `{"id": %q, "sha": %q, "siblings": [%s]}`,
			testRepoID, testCommitHash, strings.Join(siblings, ","))
	})
	prefix := fmt.Sprintf("/%s/resolve/%s/", testRepoID, testCommitHash)
	mux.HandleFunc(prefix, func(w http.ResponseWriter, req *http.Request) {
		h.requests.Add(1)
		content, found := h.files[strings.TrimPrefix(req.URL.Path, prefix)]
		if !found {
			http.NotFound(w, req)
			return
		}
		_, _ = w.Write([]byte(content))
	})
	h.Server = httptest.NewServer(mux)
	t.Cleanup(h.Close)
	return h
}

func newTestRepo(t *testing.T, h *fakeHub) *Repo {
	return New(testRepoID).WithEndpoint(h.URL + "/").WithCacheDir(t.TempDir()).WithProgressBar(false)
}

func TestRepoDownloadInfo(t *testing.T) {
	h := newFakeHub(t, map[string]string{"merges.txt": "#version: 0.2\n", "tokenizer_config.json": "{}"})
	repo := newTestRepo(t, h).WithAuth("secret")
	require.NoError(t, repo.DownloadInfo(false))
	assert.Equal(t, testCommitHash, repo.Info().CommitHash)
	assert.Equal(t, "Bearer secret", h.auth.Load())
	assert.True(t, repo.HasFile("merges.txt"))
	assert.False(t, repo.HasFile("tokenizer.model"))

	var names []string
	for name, err := range repo.IterFileNames() {
		require.NoError(t, err)
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{"merges.txt", "tokenizer_config.json"}, names)
	assert.ElementsMatch(t, names, repo.Info().FileNames())

	// A new Repo on the same cache directory reads the info from disk.
	requests := h.requests.Load()
	repo2 := New(testRepoID).WithEndpoint(h.URL).WithCacheDir(repo.CacheDir())
	require.NoError(t, repo2.DownloadInfo(false))
	assert.Equal(t, testCommitHash, repo2.Info().CommitHash)
	assert.Equal(t, requests, h.requests.Load())

	url, err := repo.FileURL("merges.txt")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%s/%s/resolve/%s/merges.txt", h.URL, testRepoID, testCommitHash), url)
}

func TestRepoDownloadFiles(t *testing.T) {
	h := newFakeHub(t, map[string]string{
		"merges.txt":            "#version: 0.2\nh e\n",
		"tokenizer_config.json": `{"tokenizer_class": "CLIPTokenizer"}`,
	})
	repo := newTestRepo(t, h)
	paths, err := repo.DownloadFiles("merges.txt", "tokenizer_config.json")
	require.NoError(t, err)
	require.Len(t, paths, 2)
	for ii, want := range []string{"#version: 0.2\nh e\n", `{"tokenizer_class": "CLIPTokenizer"}`} {
		assert.True(t, strings.HasPrefix(paths[ii], repo.CacheDir()))
		assert.Contains(t, paths[ii], filepath.Join("models--openai--clip-test", "snapshots", testCommitHash))
		content, err := os.ReadFile(paths[ii])
		require.NoError(t, err)
		assert.Equal(t, want, string(content))
		assert.NoFileExists(t, paths[ii]+".lock")
		assert.NoFileExists(t, paths[ii]+".downloading")
	}

	// Files in the cache are not downloaded again.
	requests := h.requests.Load()
	path, err := repo.DownloadFile("merges.txt")
	require.NoError(t, err)
	assert.Equal(t, paths[0], path)
	assert.Equal(t, requests, h.requests.Load())
}

func TestRepoDownloadFilesErrors(t *testing.T) {
	h := newFakeHub(t, map[string]string{"merges.txt": "#version: 0.2\n"})
	repo := newTestRepo(t, h)
	_, err := repo.DownloadFile("missing.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	snapshotsDir, err := repo.snapshotDir()
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(snapshotsDir, "missing.txt"))
	assert.NoFileExists(t, filepath.Join(snapshotsDir, "missing.txt.downloading"))

	_, err = repo.DownloadFile("..")
	require.Error(t, err)

	unknown := New("openai/unknown").WithEndpoint(h.URL).WithCacheDir(t.TempDir())
	require.Error(t, unknown.DownloadInfo(false))
	assert.Nil(t, unknown.Info())
	assert.False(t, unknown.HasFile("merges.txt"))
}

func TestRepoBuilders(t *testing.T) {
	repo := New("openai/clip-vit-base-patch32")
	assert.Equal(t, "openai/clip-vit-base-patch32", repo.String())
	assert.Equal(t, "main", repo.Revision())
	assert.Equal(t, "models--openai--clip-vit-base-patch32", repo.folderName())

	repo.WithType(RepoTypeDataset).WithRevision("v1").WithEndpoint("")
	assert.Equal(t, "v1", repo.Revision())
	assert.Equal(t, "datasets--openai--clip-vit-base-patch32", repo.folderName())
	assert.Equal(t, DefaultEndpoint+"/api/datasets/openai/clip-vit-base-patch32/revision/v1", repo.infoURL())

	usr, err := user.Current()
	require.NoError(t, err)
	repo.WithCacheDir("~/hf-cache/")
	assert.Equal(t, filepath.Join(usr.HomeDir, "hf-cache"), repo.CacheDir())
	repo.WithCacheDir("")
	assert.Equal(t, filepath.Join(usr.HomeDir, "hf-cache"), repo.CacheDir())

	repo.WithRevision("")
	assert.Equal(t, DefaultRevision, repo.Revision())
}

func TestDefaultCacheDir(t *testing.T) {
	t.Setenv("HF_HUB_CACHE", "")
	t.Setenv("HF_HOME", "")
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg")
	assert.Equal(t, "/tmp/xdg/huggingface/hub", DefaultCacheDir())
	t.Setenv("HF_HOME", "/tmp/hf-home")
	assert.Equal(t, "/tmp/hf-home/hub", DefaultCacheDir())
	t.Setenv("HF_HUB_CACHE", "/tmp/hf")
	assert.Equal(t, "/tmp/hf", DefaultCacheDir())
}

func TestDefaultEndpoint(t *testing.T) {
	t.Setenv("HF_ENDPOINT", "")
	assert.Equal(t, DefaultEndpoint, New("openai/clip-vit-base-patch32").endpoint)
	t.Setenv("HF_ENDPOINT", "https://hf-mirror.example.com/")
	assert.Equal(t, "https://hf-mirror.example.com", New("openai/clip-vit-base-patch32").endpoint)
}

func TestUserAgent(t *testing.T) {
	ua := UserAgent()
	assert.True(t, strings.HasPrefix(ua, "go-clip-tokenizer/"))
	assert.Contains(t, ua, SessionID)
	assert.Len(t, SessionID, 32)
}

func TestWithFileLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "merges.txt.lock")
	calls := 0
	require.NoError(t, withFileLock(context.Background(), lockPath, func() error {
		calls++
		return nil
	}))
	assert.Equal(t, 1, calls)

	// A lock held through another open file blocks until the context is done.
	require.NoError(t, withFileLock(context.Background(), lockPath, func() error {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := withFileLock(ctx, lockPath, func() error {
			calls++
			return nil
		})
		require.ErrorIs(t, err, context.Canceled)
		return nil
	}))
	assert.Equal(t, 1, calls)

	fnErr := errors.New("fn failed")
	assert.ErrorIs(t, withFileLock(context.Background(), lockPath, func() error { return fnErr }), fnErr)
}
