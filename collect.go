package devutils

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// maxWalkDepth bounds recursion below a search directory. Project source
// trees never get near this, so hitting the bound only cuts off a
// runaway symlink loop or a pathological layout.
const maxWalkDepth = 64

// CollectFiles returns the deduplicated, lexicographically sorted set of
// existing files matching the given extension filters. Each search
// directory that exists is walked recursively; each explicit file that
// exists is included verbatim. Non-existent directories and files are
// silently skipped, since the surrounding project may not have built all
// of its libraries yet.
func CollectFiles(fs afero.Fs, extensions []string, searchDirs []string, explicitFiles []string) []string {
	extSet := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		extSet[ext] = true
	}

	seen := make(map[string]bool)

	for _, dir := range searchDirs {
		info, err := fs.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}

		baseDepth := strings.Count(NormalizePath(dir), "/")
		_ = afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil // Continue walking
			}
			if info.IsDir() {
				if strings.Count(NormalizePath(path), "/")-baseDepth > maxWalkDepth {
					return filepath.SkipDir
				}
				return nil
			}
			if extSet[filepath.Ext(path)] {
				seen[NormalizePath(path)] = true
			}
			return nil
		})
	}

	for _, file := range explicitFiles {
		info, err := fs.Stat(file)
		if err != nil || info.IsDir() {
			continue
		}
		seen[NormalizePath(file)] = true
	}

	files := make([]string, 0, len(seen))
	for file := range seen {
		files = append(files, file)
	}
	sort.Strings(files)

	return files
}

// FindFilesByName returns the sorted paths of every file named name below
// dir. A missing directory yields an empty result.
func FindFilesByName(fs afero.Fs, dir, name string) []string {
	var files []string
	_ = afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if filepath.Base(path) == name {
			files = append(files, NormalizePath(path))
		}
		return nil
	})
	sort.Strings(files)
	return files
}
