package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kestrelsearch/kestrel/internal/domain"
	"github.com/kestrelsearch/kestrel/internal/index"
)

// Compile-time check: Index implements index.Index.
var _ index.Index = (*Index)(nil)

const (
	indexName = "kestrel:docs"
	keyPrefix = "kestrel:doc:"
)

// Config holds connection parameters for a Redis-backed index.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
}

// Index is an FT.SEARCH-backed file index for Redis 8+.
type Index struct {
	client rueidis.Client
}

// Open connects to Redis and ensures the search index exists.
func Open(cfg Config) (*Index, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}

	ix := &Index{client: client}
	if err := ix.ensureIndex(context.Background()); err != nil {
		client.Close()
		return nil, err
	}
	return ix, nil
}

func (ix *Index) ensureIndex(ctx context.Context) error {
	cmd := ix.client.B().Arbitrary("FT.CREATE").Args(
		indexName, "ON", "HASH", "PREFIX", "1", keyPrefix, "SCHEMA",
		"title", "TEXT", "body", "TEXT", "path", "TEXT", "NOINDEX",
		"size", "NUMERIC", "NOINDEX", "mtime", "NUMERIC", "NOINDEX",
		"ctime", "NUMERIC", "NOINDEX", "atime", "NUMERIC", "NOINDEX",
	).Build()
	if err := ix.client.Do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return nil
		}
		return fmt.Errorf("create search index: %w", err)
	}
	return nil
}

// Search runs a BM25 FT.SEARCH over title and body.
func (ix *Index) Search(ctx context.Context, keywords []string, limit int) ([]domain.Hit, error) {
	if len(keywords) == 0 {
		return ix.MatchAll(ctx, limit)
	}

	escaped := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		escaped = append(escaped, escapeQuery(kw))
	}
	queryStr := fmt.Sprintf("@title|body:(%s)", strings.Join(escaped, "|"))

	cmd := ix.client.B().Arbitrary("FT.SEARCH").Args(
		indexName, queryStr,
		"WITHSCORES",
		"LIMIT", "0", strconv.Itoa(limit),
		"DIALECT", "2",
	).Build()
	raw, err := ix.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("ft.search: %w", err)
	}
	return parseScoredResult(raw)
}

// MatchAll returns documents without a text predicate.
func (ix *Index) MatchAll(ctx context.Context, limit int) ([]domain.Hit, error) {
	cmd := ix.client.B().Arbitrary("FT.SEARCH").Args(
		indexName, "*",
		"LIMIT", "0", strconv.Itoa(limit),
		"DIALECT", "2",
	).Build()
	raw, err := ix.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("ft.search: %w", err)
	}
	return parseListResult(raw)
}

// Upsert writes documents as hashes under the index prefix.
func (ix *Index) Upsert(ctx context.Context, docs []index.Document) error {
	cmds := make(rueidis.Commands, 0, len(docs))
	for _, doc := range docs {
		cmds = append(cmds, ix.client.B().Hset().Key(keyPrefix+doc.Path).FieldValue().
			FieldValue("title", doc.Title).
			FieldValue("body", doc.Body).
			FieldValue("path", doc.Path).
			FieldValue("size", strconv.FormatUint(doc.Size, 10)).
			FieldValue("mtime", strconv.FormatUint(doc.MTime, 10)).
			FieldValue("ctime", strconv.FormatUint(doc.CTime, 10)).
			FieldValue("atime", strconv.FormatUint(doc.ATime, 10)).
			Build())
	}
	for _, resp := range ix.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("hset doc: %w", err)
		}
	}
	return nil
}

// Ping checks connectivity.
func (ix *Index) Ping(ctx context.Context) error {
	cmd := ix.client.B().Ping().Build()
	if err := ix.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func (ix *Index) Close() error {
	ix.client.Close()
	return nil
}

// parseScoredResult parses the 3-stride WITHSCORES reply:
// [total, key1, score1, fields1, key2, score2, fields2, ...].
func parseScoredResult(raw []rueidis.RedisMessage) ([]domain.Hit, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	hits := make([]domain.Hit, 0, total)
	for i := 1; i+2 < len(raw); i += 3 {
		scoreStr, err := raw[i+1].ToString()
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(scoreStr, 64)
		if err != nil {
			continue
		}
		fields, err := raw[i+2].ToArray()
		if err != nil {
			continue
		}
		hit := hitFromFields(parseFieldPairs(fields))
		hit.Score = score
		hits = append(hits, hit)
	}
	return hits, nil
}

// parseListResult parses the 2-stride reply without scores.
func parseListResult(raw []rueidis.RedisMessage) ([]domain.Hit, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	hits := make([]domain.Hit, 0, total)
	for i := 1; i+1 < len(raw); i += 2 {
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		hits = append(hits, hitFromFields(parseFieldPairs(fields)))
	}
	return hits, nil
}

func hitFromFields(m map[string]string) domain.Hit {
	parse := func(key string) uint64 {
		v, _ := strconv.ParseUint(m[key], 10, 64)
		return v
	}
	return domain.Hit{
		Path:  m["path"],
		Title: m["title"],
		Size:  parse("size"),
		MTime: parse("mtime"),
		CTime: parse("ctime"),
		ATime: parse("atime"),
	}
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// isRedisErr checks if err is a Redis server error containing substr.
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
	`:`, `\:`,
)
