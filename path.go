package devutils

import (
	"path/filepath"
	"strings"
)

// NormalizePath converts a path to use forward slashes consistently
// regardless of the operating system and cleans the path.
// It removes redundant separators, dot-segments, and normalizes separators to forward slashes.
// This ensures consistent path handling across different operating systems.
// Empty paths remain empty to maintain backward compatibility.
func NormalizePath(path string) string {
	// Special case: empty path should remain empty
	if path == "" {
		return ""
	}

	// Clean the path to handle dot-segments and redundant separators
	cleaned := filepath.Clean(path)
	// Replace all backslashes with forward slashes
	return strings.ReplaceAll(cleaned, "\\", "/")
}

// JoinPaths joins path elements and normalizes the result.
// It joins elements using the system's path separator, then normalizes to forward slashes,
// and cleans the path to remove redundant separators and dot-segments.
func JoinPaths(elem ...string) string {
	return NormalizePath(filepath.Join(elem...))
}

// RelPath returns path relative to root, normalized to forward slashes.
// Relative paths keep cache keys portable across machines with different
// absolute project locations. If path is not under root, the normalized
// path is returned unchanged.
func RelPath(root, path string) string {
	normalizedRoot := NormalizePath(root)
	normalizedPath := NormalizePath(path)

	if normalizedRoot == "" || normalizedRoot == "." {
		return normalizedPath
	}

	rel, err := filepath.Rel(normalizedRoot, normalizedPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return normalizedPath
	}
	return NormalizePath(rel)
}

// IsSubPath checks if childPath is a subdirectory of parentPath.
// Both paths are normalized before comparison.
func IsSubPath(parentPath, childPath string) bool {
	normalizedParent := NormalizePath(parentPath)
	normalizedChild := NormalizePath(childPath)

	// Handle empty paths
	if normalizedParent == "" || normalizedParent == "." {
		return true // Empty parent means any path is a subpath
	}

	// Check for exact match first
	if normalizedParent == normalizedChild {
		return true
	}

	// Ensure paths end with slash for proper prefix matching
	if !strings.HasSuffix(normalizedParent, "/") {
		normalizedParent += "/"
	}

	return strings.HasPrefix(normalizedChild, normalizedParent)
}
