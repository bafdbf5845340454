// Package indexer splits documents into sentence-aligned chunks for embedding.
package indexer

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Chunk is one contiguous piece of a document.
type Chunk struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	OffsetStart int    `json:"offset_start"`
	OffsetEnd   int    `json:"offset_end"`
	Section     string `json:"section"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
}

// Chunker splits text into overlapping sentence-aligned chunks. Sizes count runes.
type Chunker struct {
	chunkSize int
	overlap   int
}

// NewChunker creates a chunker with the given size and overlap (in characters).
// A non-positive size falls back to 512; overlap is clamped to [0, chunkSize).
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 512
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}
	return &Chunker{
		chunkSize: chunkSize,
		overlap:   overlap,
	}
}

// ChunkSize returns the configured chunk size.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text into chunks. Empty or whitespace-only text yields an empty slice.
func (c *Chunker) Chunk(text string) []Chunk {
	sentences := SplitSentences(text)
	contents := c.pack(sentences)

	chunks := make([]Chunk, len(contents))
	offset := 0
	for i, content := range contents {
		n := utf8.RuneCountInString(content)
		chunks[i] = Chunk{
			ID:          fmt.Sprintf("chunk_%d", i),
			Content:     content,
			OffsetStart: offset,
			OffsetEnd:   offset + n,
			Section:     DetectSection(content, i, len(contents)),
			ChunkIndex:  i,
			TotalChunks: len(contents),
		}
		// Offsets assume one separator between consecutive chunks.
		offset += n + 1
	}
	return chunks
}

// pack greedily accumulates sentences into chunk contents.
func (c *Chunker) pack(sentences []string) []string {
	out := make([]string, 0)
	var buf []string
	bufLen := 0

	flush := func() {
		if len(buf) > 0 {
			out = append(out, strings.Join(buf, " "))
		}
	}

	for _, s := range sentences {
		sLen := utf8.RuneCountInString(s)
		if sLen > c.chunkSize {
			flush()
			out = append(out, c.splitLong(s)...)
			buf, bufLen = nil, 0
			continue
		}
		if len(buf) > 0 && bufLen+1+sLen > c.chunkSize {
			flush()
			buf = c.overlapSuffix(buf)
			// Drop leading overlap sentences that would push the next chunk past the limit.
			for len(buf) > 0 && joinedLen(buf)+1+sLen > c.chunkSize {
				buf = buf[1:]
			}
			bufLen = joinedLen(buf)
		}
		if len(buf) > 0 {
			bufLen++
		}
		buf = append(buf, s)
		bufLen += sLen
	}
	flush()
	return out
}

// overlapSuffix returns the trailing sentences of buf whose joined length fits in overlap.
func (c *Chunker) overlapSuffix(buf []string) []string {
	if c.overlap <= 0 {
		return nil
	}
	start := len(buf)
	total := 0
	for i := len(buf) - 1; i >= 0; i-- {
		n := utf8.RuneCountInString(buf[i])
		if start < len(buf) {
			n++
		}
		if total+n > c.overlap {
			break
		}
		total += n
		start = i
	}
	if start == len(buf) {
		return nil
	}
	return append([]string(nil), buf[start:]...)
}

// splitLong breaks an oversized sentence at word boundaries; words longer than the chunk
// size are cut by rune.
func (c *Chunker) splitLong(sentence string) []string {
	var out []string
	var cur strings.Builder
	curLen := 0
	for _, word := range strings.Fields(sentence) {
		for _, piece := range c.hardSplit(word) {
			n := utf8.RuneCountInString(piece)
			if curLen > 0 && curLen+1+n > c.chunkSize {
				out = append(out, cur.String())
				cur.Reset()
				curLen = 0
			}
			if curLen > 0 {
				cur.WriteByte(' ')
				curLen++
			}
			cur.WriteString(piece)
			curLen += n
		}
	}
	if curLen > 0 {
		out = append(out, cur.String())
	}
	return out
}

func (c *Chunker) hardSplit(word string) []string {
	runes := []rune(word)
	if len(runes) <= c.chunkSize {
		return []string{word}
	}
	var pieces []string
	for i := 0; i < len(runes); i += c.chunkSize {
		end := i + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[i:end]))
	}
	return pieces
}

func joinedLen(parts []string) int {
	if len(parts) == 0 {
		return 0
	}
	n := len(parts) - 1
	for _, p := range parts {
		n += utf8.RuneCountInString(p)
	}
	return n
}
