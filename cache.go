package devutils

import (
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// cacheFormatVersion tags the on-disk store. A store carrying any other
// version is discarded on load rather than migrated.
const cacheFormatVersion = "1.0"

// CacheEntry is the persisted verdict for one (tool, file) pair. Mtime is
// the file's modification time in float seconds at verdict time; an entry
// is reusable iff the file's current mtime equals it exactly. No content
// hashing is done, so touching a file without changing it causes a stale
// cache miss, never a false hit on a changed file.
type CacheEntry struct {
	Mtime  float64 `yaml:"mtime"`
	Status string  `yaml:"status"`
	Error  string  `yaml:"error,omitempty"`
	Year   int     `yaml:"year,omitempty"`
}

type cacheData struct {
	Version string                `yaml:"version"`
	Cache   map[string]CacheEntry `yaml:"cache"`
}

// ResultCache persists per-file tool verdicts keyed by
// "<category>:<tool>:<relative-path>" and serves them back while the
// file's mtime is unchanged. It is safe for concurrent use: all map
// access goes through one coarse mutex, held only for a lookup or
// insert, never across a tool invocation.
//
// It also holds the per-run results of package-level tool invocations,
// which are computed once per pass and partitioned per file. Those never
// touch the disk store.
type ResultCache struct {
	fs      afero.Fs
	path    string
	root    string
	enabled bool

	mu   sync.Mutex
	data cacheData

	pkgMu      sync.Mutex
	pkgResults map[string]map[string]ToolResult
}

// NewResultCache creates a cache backed by the store at path, keyed
// relative to root. When enabled is false every lookup misses and every
// store is a no-op; the persisted file is left untouched.
func NewResultCache(fs afero.Fs, path, root string, enabled bool) *ResultCache {
	c := &ResultCache{
		fs:      fs,
		path:    path,
		root:    root,
		enabled: enabled,
		data: cacheData{
			Version: cacheFormatVersion,
			Cache:   make(map[string]CacheEntry),
		},
		pkgResults: make(map[string]map[string]ToolResult),
	}

	if c.enabled {
		c.load()
	}

	return c
}

// load reads the on-disk store best-effort. A missing, corrupt, or
// version-mismatched store leaves the cache empty; a cache failure must
// never abort the command.
func (c *ResultCache) load() {
	raw, err := afero.ReadFile(c.fs, c.path)
	if err != nil {
		return
	}

	var data cacheData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return
	}
	if data.Version != cacheFormatVersion || data.Cache == nil {
		return
	}

	c.data = data
}

// Key builds the deterministic cache key for a (category, tool, file)
// triple. The file path is stored relative to the project root so keys
// stay portable across machines.
func (c *ResultCache) Key(category, tool, file string) string {
	return category + ":" + tool + ":" + RelPath(c.root, file)
}

// Lookup returns the cached entry for the given tool and file. It misses
// when caching is disabled, when no entry exists, when the stat fails
// (a file deleted mid-run is a miss, not an error), or when the file's
// current mtime differs from the stored one.
func (c *ResultCache) Lookup(category, tool, file string) (CacheEntry, bool) {
	if !c.enabled {
		return CacheEntry{}, false
	}

	key := c.Key(category, tool, file)

	c.mu.Lock()
	entry, ok := c.data.Cache[key]
	c.mu.Unlock()

	if !ok {
		return CacheEntry{}, false
	}

	mtime, err := statMtime(c.fs, file)
	if err != nil {
		return CacheEntry{}, false
	}
	if entry.Mtime != mtime {
		return CacheEntry{}, false
	}

	return entry, true
}

// Store upserts the entry for the given tool and file, stamping it with
// the file's current mtime. No-op when caching is disabled or the stat
// fails.
func (c *ResultCache) Store(category, tool, file string, entry CacheEntry) {
	if !c.enabled {
		return
	}

	mtime, err := statMtime(c.fs, file)
	if err != nil {
		return
	}
	entry.Mtime = mtime

	key := c.Key(category, tool, file)

	c.mu.Lock()
	c.data.Cache[key] = entry
	c.mu.Unlock()
}

// Flush writes the store to disk atomically: the data goes to a sibling
// temporary file which is then renamed over the destination, so an
// interrupted write never leaves a truncated store behind. I/O failures
// are reported but must be treated as non-fatal by callers.
func (c *ResultCache) Flush() error {
	if !c.enabled {
		return nil
	}

	c.mu.Lock()
	raw, err := yaml.Marshal(c.data)
	c.mu.Unlock()
	if err != nil {
		return NewCacheError("failed to encode cache store", err)
	}

	dir := filepath.Dir(c.path)
	if err := c.fs.MkdirAll(dir, 0o755); err != nil {
		return WithDetails(NewCacheError("failed to create cache directory", err), c.path)
	}

	tmpPath := c.path + ".tmp"
	if err := afero.WriteFile(c.fs, tmpPath, raw, 0o644); err != nil {
		_ = c.fs.Remove(tmpPath)
		return WithDetails(NewCacheError("failed to write cache store", err), c.path)
	}
	if err := c.fs.Rename(tmpPath, c.path); err != nil {
		_ = c.fs.Remove(tmpPath)
		return WithDetails(NewCacheError("failed to replace cache store", err), c.path)
	}

	return nil
}

// Len returns the number of persisted entries.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data.Cache)
}

// PackageResult returns the partitioned per-file result of a
// package-level tool run, if that run happened this pass.
func (c *ResultCache) PackageResult(runKey, file string) (ToolResult, bool) {
	c.pkgMu.Lock()
	defer c.pkgMu.Unlock()

	results, ok := c.pkgResults[runKey]
	if !ok {
		return ToolResult{}, false
	}
	res, ok := results[NormalizePath(file)]
	return res, ok
}

// HasPackageResults reports whether a package-level run is already
// recorded under runKey, so the orchestrator invokes each package-level
// tool at most once per pass.
func (c *ResultCache) HasPackageResults(runKey string) bool {
	c.pkgMu.Lock()
	defer c.pkgMu.Unlock()
	_, ok := c.pkgResults[runKey]
	return ok
}

// ResetPackageResults forgets all recorded package-level runs, so the
// next pass re-invokes each package-level tool.
func (c *ResultCache) ResetPackageResults() {
	c.pkgMu.Lock()
	c.pkgResults = make(map[string]map[string]ToolResult)
	c.pkgMu.Unlock()
}

// SetPackageResults records the partitioned results of one package-level
// tool run.
func (c *ResultCache) SetPackageResults(runKey string, results map[string]ToolResult) {
	normalized := make(map[string]ToolResult, len(results))
	for file, res := range results {
		normalized[NormalizePath(file)] = res
	}

	c.pkgMu.Lock()
	c.pkgResults[runKey] = normalized
	c.pkgMu.Unlock()
}

// statMtime returns a file's modification time as float seconds, the
// precision the store carries.
func statMtime(fs afero.Fs, path string) (float64, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return 0, err
	}
	return float64(info.ModTime().UnixNano()) / 1e9, nil
}

// entryFromResult converts a tool verdict into its persisted form. Issue
// subtypes ride in the status field, matching the license cache layout.
func entryFromResult(res ToolResult) CacheEntry {
	status := string(res.Status)
	if res.Status == StatusIssue && res.Detail != "" {
		status = res.Detail
	}
	return CacheEntry{
		Status: status,
		Error:  res.Message,
		Year:   res.Year,
	}
}

// resultFromEntry converts a persisted entry back into a tool verdict.
func resultFromEntry(tool string, entry CacheEntry) ToolResult {
	res := ToolResult{
		Tool:    tool,
		Status:  ParseStatus(entry.Status),
		Message: entry.Error,
		Year:    entry.Year,
	}
	if entry.Status == "missing" || entry.Status == "incorrect" {
		res.Detail = entry.Status
	}
	return res
}
