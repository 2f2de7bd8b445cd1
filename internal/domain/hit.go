package domain

// Hit is a single search result.
type Hit struct {
	// Path is the absolute path of the matched file.
	Path string `json:"path"`
	// Title is the indexed display title, usually the file name.
	Title string `json:"title"`
	// Snippet is a short extract of the matched content, if any.
	Snippet string `json:"snippet,omitempty"`
	// Score is the retrieval relevance score, higher is better.
	Score float64 `json:"score"`

	// Indexed file metadata. Zero values mean the index did not
	// record them; predicate evaluation falls back to stat.
	Size  uint64 `json:"size,omitempty"`
	MTime uint64 `json:"mtime,omitempty"`
	CTime uint64 `json:"ctime,omitempty"`
	ATime uint64 `json:"atime,omitempty"`
}
