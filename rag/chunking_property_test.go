package rag

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Property: windows cover the whole text with no gaps, every window
// sits at its expected offset, and the chunk count matches the closed
// form ceil((L-overlap)/(size-overlap)) for L > size, 1 otherwise.
func TestSplitTextProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(2, 64).Draw(t, "size")
		overlap := rapid.IntRange(1, size-1).Draw(t, "overlap")
		text := rapid.StringN(-1, 512, -1).Draw(t, "text")
		cfg := ChunkingConfig{ChunkSize: size, ChunkOverlap: overlap}

		chunks, err := SplitText(text, cfg)
		require.NoError(t, err)

		runes := []rune(text)
		if len(runes) == 0 {
			require.Empty(t, chunks)
			return
		}

		step := size - overlap
		wantCount := 1
		if len(runes) > size {
			wantCount = (len(runes) - overlap + step - 1) / step
		}
		require.Len(t, chunks, wantCount)

		for i, chunk := range chunks {
			start := i * step
			chunkRunes := []rune(chunk)
			require.LessOrEqual(t, len(chunkRunes), size)
			require.Equal(t, string(runes[start:start+len(chunkRunes)]), chunk,
				"window %d must sit at offset %d", i, start)
		}

		// The last window must reach the end of the text: no
		// truncation of trailing content.
		lastStart := (len(chunks) - 1) * step
		require.Equal(t, len(runes), lastStart+len([]rune(chunks[len(chunks)-1])))
	})
}

// Property: chunking is deterministic.
func TestSplitTextDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(2, 32).Draw(t, "size")
		overlap := rapid.IntRange(1, size-1).Draw(t, "overlap")
		text := rapid.StringN(-1, 256, -1).Draw(t, "text")
		cfg := ChunkingConfig{ChunkSize: size, ChunkOverlap: overlap}

		first, err := SplitText(text, cfg)
		require.NoError(t, err)
		second, err := SplitText(text, cfg)
		require.NoError(t, err)
		require.Equal(t, first, second)
	})
}
