package retrieval

// ChunkText splits text into fixed-width chunks of at most size bytes. The
// last chunk carries the remainder. Ingestion and the stored chunk_id both
// depend on this being deterministic.
func ChunkText(text string, size int) []string {
	if size <= 0 || text == "" {
		return nil
	}
	chunks := make([]string, 0, len(text)/size+1)
	for start := 0; start < len(text); start += size {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}
