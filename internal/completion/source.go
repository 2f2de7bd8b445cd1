package completion

// SourceKind identifies what produced a completion item.
type SourceKind string

const (
	SourceKeyword    SourceKind = "keyword"
	SourceFileSystem SourceKind = "filesystem"
)

// Replacement describes how applying an item edits the query text:
// the byte range [Start, End) is replaced by Text.
type Replacement struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Item is one completion candidate.
type Item struct {
	Label       string      `json:"label"`
	Replacement Replacement `json:"replacement"`
	Source      SourceKind  `json:"source"`
}

// Source is a pull-based stream of completion candidates. Production
// is lazy: work happens only when Next is called, and abandoning the
// source stops it. Next reports ok=false once exhausted.
type Source interface {
	Next() (Item, bool)
	// Close releases any resources held by the source. Safe to call
	// more than once.
	Close()
}

type emptySource struct{}

func (emptySource) Next() (Item, bool) { return Item{}, false }
func (emptySource) Close()             {}

type sliceSource struct {
	items []Item
	pos   int
}

func fromSlice(items []Item) *sliceSource {
	return &sliceSource{items: items}
}

func (s *sliceSource) Next() (Item, bool) {
	if s.pos >= len(s.items) {
		return Item{}, false
	}
	item := s.items[s.pos]
	s.pos++
	return item, true
}

func (s *sliceSource) Close() { s.pos = len(s.items) }

// chainSource drains each source in order.
type chainSource struct {
	sources []Source
}

func chain(sources ...Source) *chainSource {
	return &chainSource{sources: sources}
}

func (c *chainSource) Next() (Item, bool) {
	for len(c.sources) > 0 {
		if item, ok := c.sources[0].Next(); ok {
			return item, true
		}
		c.sources[0].Close()
		c.sources = c.sources[1:]
	}
	return Item{}, false
}

func (c *chainSource) Close() {
	for _, s := range c.sources {
		s.Close()
	}
	c.sources = nil
}
