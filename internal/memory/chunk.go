package memory

// Truncate keeps at most limit runes of s. A non-positive limit keeps everything.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// Chunk splits s into consecutive runs of size runes; only the last may be
// shorter. An empty s yields no chunks. A non-positive size yields s whole.
func Chunk(s string, size int) []string {
	if s == "" {
		return nil
	}
	if size <= 0 {
		return []string{s}
	}
	var chunks []string
	start, n := 0, 0
	for i := range s {
		if n == size {
			chunks = append(chunks, s[start:i])
			start, n = i, 0
		}
		n++
	}
	return append(chunks, s[start:])
}
