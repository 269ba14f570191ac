package clip

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeBatch(t *testing.T) {
	tok := newSmallTokenizer(t)
	const S, E = smallStartID, smallEndID

	testCases := []struct {
		name          string
		contextLength int
		texts         []string
		want          [][]int
	}{
		{"padded", 6, []string{"hello world"}, [][]int{{S, 515, 519, E, 0, 0}}},
		{"exact", 4, []string{"hello world"}, [][]int{{S, 515, 519, E}}},
		{"truncated", 3, []string{"hello world !!!"}, [][]int{{S, 515, E}}},
		{"markers only", 2, []string{"hello world"}, [][]int{{S, E}}},
		{"empty text", 4, []string{""}, [][]int{{S, E, 0, 0}}},
		{"several", 5, []string{"the", "hello world !!! the", "   "}, [][]int{
			{S, 526, E, 0, 0},
			{S, 515, 519, 521, E},
			{S, E, 0, 0, 0},
		}},
		{"no texts", 5, nil, [][]int{}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tok.TokenizeBatch(tc.contextLength, tc.texts...)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	for _, contextLength := range []int{1, 0, -3, MaxContextLength + 1, math.MaxInt} {
		_, err := tok.TokenizeBatch(contextLength, "hello")
		require.ErrorIs(t, err, ErrInvalidContextLength)
	}
}

func TestTokenize(t *testing.T) {
	tok := newSmallTokenizer(t)
	assert.Equal(t, DefaultContextLength, tok.ContextLength())
	rows, err := tok.Tokenize("hello")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0], DefaultContextLength)

	rows, err = tok.WithContextLength(3).Tokenize("hello", "world")
	require.NoError(t, err)
	assert.Equal(t, [][]int{{smallStartID, 515, smallEndID}, {smallStartID, 519, smallEndID}}, rows)

	_, err = tok.WithContextLength(1).Tokenize("hello")
	require.ErrorIs(t, err, ErrInvalidContextLength)

	rows, err = tok.WithContextLength(MaxContextLength).Tokenize("hello")
	require.NoError(t, err)
	require.Len(t, rows[0], MaxContextLength)
	assert.Equal(t, []int{smallStartID, 515, smallEndID, 0}, rows[0][:4])
}

func TestTokenizeBatchRowProperties(t *testing.T) {
	tok := newSmallTokenizer(t).WithParallelism(4)
	sequential := newSmallTokenizer(t).WithParallelism(1)
	texts := make([]string, 50)
	for i := range texts {
		texts[i] = fmt.Sprintf("hello %d world%s the", i, string(make([]byte, i%7)))
	}
	for _, contextLength := range []int{2, 3, 8, 77} {
		rows, err := tok.TokenizeBatch(contextLength, texts...)
		require.NoError(t, err)
		want, err := sequential.TokenizeBatch(contextLength, texts...)
		require.NoError(t, err)
		assert.Equal(t, want, rows)

		require.Len(t, rows, len(texts))
		for i, row := range rows {
			require.Len(t, row, contextLength)
			assert.Equal(t, smallStartID, row[0])
			ids := tok.Encode(texts[i])
			if len(ids) > contextLength-2 {
				assert.Equal(t, smallEndID, row[contextLength-1], "row %d must end with the end marker", i)
				assert.Equal(t, ids[:contextLength-2], row[1:contextLength-1])
				continue
			}
			assert.Equal(t, ids, row[1:1+len(ids)])
			assert.Equal(t, smallEndID, row[1+len(ids)])
			for _, pad := range row[2+len(ids):] {
				assert.Equal(t, PadID, pad)
			}
		}
	}
}
