package codec

// Searcher finds a fixed pattern with Knuth-Morris-Pratt. The partial match
// table is built once and reused across scans.
type Searcher struct {
	pattern []byte
	table   []int
}

// NewSearcher precomputes the partial match table for pattern.
func NewSearcher(pattern []byte) *Searcher {
	p := append([]byte(nil), pattern...)
	table := make([]int, len(p))
	k := 0
	for i := 1; i < len(p); i++ {
		for k > 0 && p[i] != p[k] {
			k = table[k-1]
		}
		if p[i] == p[k] {
			k++
		}
		table[i] = k
	}
	return &Searcher{pattern: p, table: table}
}

// Index returns the offset of the first occurrence of the pattern in b, or -1.
func (s *Searcher) Index(b []byte) int {
	if len(s.pattern) == 0 {
		return 0
	}
	k := 0
	for i, c := range b {
		for k > 0 && c != s.pattern[k] {
			k = s.table[k-1]
		}
		if c == s.pattern[k] {
			k++
		}
		if k == len(s.pattern) {
			return i - k + 1
		}
	}
	return -1
}

// Len returns the pattern length.
func (s *Searcher) Len() int { return len(s.pattern) }

var markerSearcher = NewSearcher(SyncMarker[:])

// Resync returns the offset just past the next sync marker in b, or -1 when
// no marker remains.
func Resync(b []byte) int {
	i := markerSearcher.Index(b)
	if i < 0 {
		return -1
	}
	return i + markerSearcher.Len()
}
