// Package retriever implements the deterministic lexical search over a
// markdown knowledge-base corpus described in §4.2. It is grounded on
// the teacher's RAG chunker's documented-defaults Config shape
// (internal/rag/chunker/recursive.go) and the Manager coordinator
// pattern (internal/rag/index/manager.go), but — per the Non-goal of
// "no actual language model reasoning" — there is no embedding
// provider and no vector store: queries are scored against a plain
// inverted index rebuilt from disk on every call.
package retriever

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/legaladvisor/engine/internal/errs"
	"github.com/legaladvisor/engine/pkg/models"
)

// Config mirrors the teacher's documented-defaults pattern: fields a
// caller can override, with a constructor applying sane defaults.
type Config struct {
	// KBRoot is the corpus root directory.
	KBRoot string

	// WindowLines is the fixed window size used to split each file.
	// Default: 20.
	WindowLines int
}

// DefaultConfig returns the spec's defaults.
func DefaultConfig(kbRoot string) Config {
	return Config{KBRoot: kbRoot, WindowLines: 20}
}

// Retriever answers search and read_file calls over the markdown
// corpus rooted at Config.KBRoot.
type Retriever struct {
	cfg Config
}

// New builds a Retriever over cfg.
func New(cfg Config) *Retriever {
	if cfg.WindowLines <= 0 {
		cfg.WindowLines = 20
	}
	return &Retriever{cfg: cfg}
}

type window struct {
	filePath  string
	title     string
	text      string
	tokens    []string
	lineStart int
	lineEnd   int
}

// Search scopes to {kb_root}/{scenario} if that directory exists, else
// the whole root, splits every markdown file into fixed windows,
// builds an in-memory inverted index, and returns the top-k windows
// ranked by token overlap with query. Empty query or empty corpus
// yields an empty slice, never an error.
func (r *Retriever) Search(query, scenario string, topK int) ([]models.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.SearchResult{}, nil
	}

	root := r.scopedRoot(scenario)
	windows, err := r.loadWindows(root)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return []models.SearchResult{}, nil
	}

	index := buildIndex(windows)
	queryTokens := tokenize(query)

	type scored struct {
		w     *window
		score float64
	}
	var results []scored
	seen := make(map[*window]bool)
	for _, tok := range queryTokens {
		for _, w := range index[tok] {
			if seen[w] {
				continue
			}
			seen[w] = true
			results = append(results, scored{w: w, score: overlapScore(queryTokens, w.tokens)})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		if results[i].w.filePath != results[j].w.filePath {
			return results[i].w.filePath < results[j].w.filePath
		}
		return results[i].w.lineStart < results[j].w.lineStart
	})

	if topK < len(results) {
		results = results[:topK]
	}

	out := make([]models.SearchResult, 0, len(results))
	for _, res := range results {
		out = append(out, models.SearchResult{
			FilePath:  res.w.filePath,
			Title:     res.w.title,
			Snippet:   res.w.text,
			LineStart: res.w.lineStart,
			LineEnd:   res.w.lineEnd,
			Score:     res.score,
		})
	}
	return out, nil
}

// ReadFile returns the full content of a file under kb_root. path is
// interpreted relative to KBRoot; no scenario scoping is applied.
func (r *Retriever) ReadFile(path string) (string, error) {
	full := filepath.Join(r.cfg.KBRoot, path)
	data, err := os.ReadFile(full)
	if err != nil {
		return "", errs.Wrap(errs.KindStorage, err, "read kb file")
	}
	return string(data), nil
}

func (r *Retriever) scopedRoot(scenario string) string {
	if scenario == "" {
		return r.cfg.KBRoot
	}
	scoped := filepath.Join(r.cfg.KBRoot, scenario)
	if info, err := os.Stat(scoped); err == nil && info.IsDir() {
		return scoped
	}
	return r.cfg.KBRoot
}

func (r *Retriever) loadWindows(root string) ([]*window, error) {
	var windows []*window
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(strings.ToLower(path), ".md") {
			return nil
		}
		fileWindows, err := r.windowsForFile(path)
		if err != nil {
			return err
		}
		windows = append(windows, fileWindows...)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.KindStorage, err, "walk kb root")
	}
	return windows, nil
}

func (r *Retriever) windowsForFile(path string) ([]*window, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "open kb file")
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "scan kb file")
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	size := r.cfg.WindowLines

	var windows []*window
	for start := 0; start < len(lines); start += size {
		end := start + size
		if end > len(lines) {
			end = len(lines)
		}
		chunkLines := lines[start:end]
		text := strings.Join(chunkLines, "\n")
		title := headingOrStem(chunkLines, stem)
		windows = append(windows, &window{
			filePath:  path,
			title:     title,
			text:      text,
			tokens:    tokenize(text),
			lineStart: start + 1,
			lineEnd:   end,
		})
	}
	return windows, nil
}

func headingOrStem(lines []string, stem string) string {
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	return stem
}

// buildIndex maps each token to the windows containing it.
func buildIndex(windows []*window) map[string][]*window {
	index := make(map[string][]*window)
	for _, w := range windows {
		added := make(map[string]bool)
		for _, tok := range w.tokens {
			if added[tok] {
				continue
			}
			added[tok] = true
			index[tok] = append(index[tok], w)
		}
	}
	return index
}

// overlapScore counts how many query tokens appear in candidate,
// weighted by repeated occurrence in candidate so denser windows rank
// higher.
func overlapScore(query, candidate []string) float64 {
	counts := make(map[string]int)
	for _, tok := range candidate {
		counts[tok]++
	}
	var score float64
	for _, tok := range query {
		score += float64(counts[tok])
	}
	return score
}

// tokenize splits s into CJK-codepoint tokens (one token per Chinese
// character) and latin/digit runs (one token per contiguous run),
// lower-cased, so that whitespace-free Chinese text can still match
// word-boundary-delimited latin queries.
func tokenize(s string) []string {
	var tokens []string
	var run []rune
	flush := func() {
		if len(run) > 0 {
			tokens = append(tokens, strings.ToLower(string(run)))
			run = run[:0]
		}
	}
	for _, r := range s {
		switch {
		case isCJK(r):
			flush()
			tokens = append(tokens, string(r))
		case isWordRune(r):
			run = append(run, r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified Ideographs
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0xF900 && r <= 0xFAFF) // CJK Compatibility Ideographs
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
