package hub

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanRelativeFilePath(t *testing.T) {
	for input, want := range map[string]string{
		"merges.txt":                 "merges.txt",
		"tokenizer/merges.txt":       "tokenizer/merges.txt",
		"tokenizer//merges.txt":      "tokenizer/merges.txt",
		"tokenizer/./merges.txt":     "tokenizer/merges.txt",
		"/tokenizer/merges.txt":      "tokenizer/merges.txt",
		"vocab/../merges.txt":        "merges.txt",
		"../merges.txt":              "merges.txt",
		"../../../etc/passwd":        "etc/passwd",
		"tokenizer/..":               ".",
		"tokenizer/../../..":         ".",
		"tokenizer/merges.txt/../..": ".",
		"":                           ".",
		".":                          ".",
		"..":                         ".",
	} {
		assert.Equal(t, filepath.FromSlash(want), cleanRelativeFilePath(input), "input %q", input)
	}
}

func TestIterFileNamesParentSegments(t *testing.T) {
	h := newFakeHub(t, map[string]string{"model..v2.bin": "", "onnx/text..model.onnx": "", "merges.txt": ""})
	var names []string
	for name, err := range newTestRepo(t, h).IterFileNames() {
		require.NoError(t, err)
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{"model..v2.bin", "onnx/text..model.onnx", "merges.txt"}, names)

	for _, name := range []string{"../merges.txt", "onnx/../../merges.txt", "onnx/.."} {
		h := newFakeHub(t, map[string]string{name: ""})
		var err error
		for _, err = range newTestRepo(t, h).IterFileNames() {
		}
		require.Error(t, err, "name %q", name)
		assert.Contains(t, err.Error(), "invalid file name")
	}
}
