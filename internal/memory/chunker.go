package memory

// splitChunks splits text into overlapping windows of size chunkSize with
// the given overlap. Step size is max(chunkSize-overlap, 1) so a
// pathological overlap >= chunkSize still makes forward progress. Offsets
// are byte offsets into text, not rune offsets — callers that need rune
// safety should chunk on rune boundaries upstream; Markdown notes are
// overwhelmingly ASCII-adjacent so this keeps the offsets cheap to
// recompute on reindex.
func splitChunks(text string, chunkSize, overlap int) []chunkSpan {
	if len(text) == 0 {
		return nil
	}
	step := chunkSize - overlap
	if step < 1 {
		step = 1
	}

	var spans []chunkSpan
	for start := 0; start < len(text); start += step {
		end := start + chunkSize
		if end > len(text) {
			end = len(text)
		}
		spans = append(spans, chunkSpan{start: start, end: end, text: text[start:end]})
		if end == len(text) {
			break
		}
	}
	return spans
}

type chunkSpan struct {
	start int
	end   int
	text  string
}
