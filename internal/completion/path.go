package completion

import (
	"os"
	"path/filepath"
	"strings"
)

// PathCompleter completes filesystem paths. Relative prefixes resolve
// against cwd, "~" against the user's home directory.
type PathCompleter struct {
	cwd string
}

// NewPathCompleter creates a completer rooted at cwd.
func NewPathCompleter(cwd string) *PathCompleter {
	return &PathCompleter{cwd: cwd}
}

// NewPathCompleterCWD creates a completer rooted at the process
// working directory.
func NewPathCompleterCWD() (*PathCompleter, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return &PathCompleter{cwd: cwd}, nil
}

func (c *PathCompleter) homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return c.cwd
}

func (c *PathCompleter) expandTilde(path string) string {
	if path == "~" {
		return c.homeDir()
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		return c.homeDir() + "/" + rest
	}
	return path
}

// parsePrefix splits a typed prefix into the directory to list, the
// file-name prefix entries must match, and the display prefix kept in
// front of each completed name. cpath is the canonicalized form of
// the prefix.
//
//	"/etc/" -> ("/etc", "", "/etc/")
//	"/et"   -> ("/", "et", "/")
//	"~/Doc" -> ("/home/user", "Doc", "~/")
//	"dir/"  -> ("<cwd>/dir", "", "dir/")
//	"foo"   -> ("<cwd>", "foo", "")
func (c *PathCompleter) parsePrefix(prefix, cpath string) (searchDir, filePrefix, displayPrefix string) {
	if strings.HasSuffix(prefix, "/") {
		searchDir = cpath
	} else {
		// Split on the last separator by hand so "." and ".." stay
		// literal file-name prefixes instead of path components.
		if pos := strings.LastIndexByte(cpath, '/'); pos >= 0 {
			parent := cpath[:pos]
			if parent == "" {
				parent = "/"
			}
			searchDir, filePrefix = parent, cpath[pos+1:]
		} else {
			searchDir, filePrefix = "", cpath
		}
	}
	if pos := strings.LastIndexByte(prefix, '/'); pos >= 0 {
		displayPrefix = prefix[:pos+1]
	}
	return searchDir, filePrefix, displayPrefix
}

// softCanonicalize resolves only the parent directory, leaving the
// final file-name component untouched so partial names like "xxx/."
// survive as literal prefixes.
func (c *PathCompleter) softCanonicalize(path string, endsWithSlash bool) (string, error) {
	if endsWithSlash {
		return filepath.EvalSymlinks(path)
	}
	if pos := strings.LastIndexByte(path, '/'); pos >= 0 {
		parent := path[:pos]
		if parent == "" {
			parent = "/"
		}
		canonical, err := filepath.EvalSymlinks(parent)
		if err != nil {
			return "", err
		}
		return filepath.Join(canonical, path[pos+1:]), nil
	}
	canonical, err := filepath.EvalSymlinks(c.cwd)
	if err != nil {
		return "", err
	}
	return filepath.Join(canonical, path), nil
}

// Complete streams directory entries matching the typed prefix.
// Applying an item replaces the [replaceStart, replaceEnd) range of
// the query. Unreadable or nonexistent directories yield an empty
// stream, never an error.
//
//	"/et"       -> "/etc"
//	"/etc/"     -> everything under /etc
//	"~/.local/" -> everything under $HOME/.local
//	"dir0/"     -> everything under <cwd>/dir0
func (c *PathCompleter) Complete(prefix string, replaceStart, replaceEnd int) Source {
	if prefix == "~" {
		prefix = "~/"
	}
	endsWithSlash := strings.HasSuffix(prefix, "/")

	path := c.expandTilde(prefix)
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.cwd, path)
	}

	path, err := c.softCanonicalize(path, endsWithSlash)
	if err != nil {
		return emptySource{}
	}

	searchDir, filePrefix, displayPrefix := c.parsePrefix(prefix, path)

	dir, err := os.Open(searchDir)
	if err != nil {
		return emptySource{}
	}
	return &pathSource{
		dir:           dir,
		filePrefix:    filePrefix,
		displayPrefix: displayPrefix,
		replaceStart:  replaceStart,
		replaceEnd:    replaceEnd,
	}
}

// pathSource reads directory entries one at a time, so an abandoned
// completion never lists the whole directory.
type pathSource struct {
	dir           *os.File
	filePrefix    string
	displayPrefix string
	replaceStart  int
	replaceEnd    int
}

func (s *pathSource) Next() (Item, bool) {
	if s.dir == nil {
		return Item{}, false
	}
	for {
		entries, err := s.dir.ReadDir(1)
		if err != nil || len(entries) == 0 {
			s.Close()
			return Item{}, false
		}
		entry := entries[0]
		name := entry.Name()
		if !strings.HasPrefix(name, s.filePrefix) {
			continue
		}
		label := name
		if entry.IsDir() {
			label += "/"
		}
		return Item{
			Label: label,
			Replacement: Replacement{
				Start: s.replaceStart,
				End:   s.replaceEnd,
				Text:  s.displayPrefix + label,
			},
			Source: SourceFileSystem,
		}, true
	}
}

func (s *pathSource) Close() {
	if s.dir != nil {
		s.dir.Close()
		s.dir = nil
	}
}
