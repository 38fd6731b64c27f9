package devutils

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()

	config, err := LoadConfig(fs, "/project", "")
	require.NoError(t, err)

	assert.Equal(t, "/project", config.Root)
	assert.Equal(t, 0, config.Workers)
	assert.Equal(t, ".devutils", config.CacheDir)
	assert.Equal(t, "Logenium Authors and Contributors", config.License.Owner)
	assert.Equal(t, "BSD-3-Clause", config.License.SPDX)
}

func TestLoadConfigOverrides(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := "workers: 4\nlicense:\n  owner: Example Org\n"
	require.NoError(t, afero.WriteFile(fs, "/project/devutils.yml", []byte(content), 0o644))

	config, err := LoadConfig(fs, "/project", "")
	require.NoError(t, err)

	assert.Equal(t, 4, config.Workers)
	assert.Equal(t, "Example Org", config.License.Owner)
	// Untouched keys keep their defaults.
	assert.Equal(t, "BSD-3-Clause", config.License.SPDX)
}

func TestLoadConfigExplicitFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/custom.yml", []byte("cache_dir: .cache\n"), 0o644))

	config, err := LoadConfig(fs, "/project", "/etc/custom.yml")
	require.NoError(t, err)

	assert.Equal(t, ".cache", config.CacheDir)
}

func TestLoadConfigUnreadableFile(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := LoadConfig(fs, "/project", "/etc/missing.yml")
	require.Error(t, err)

	info, found := GetErrorInfo(err)
	require.True(t, found)
	assert.Equal(t, ErrorTypeConfig, info.Type)
}

func TestCacheFile(t *testing.T) {
	config := Config{Root: "/project", CacheDir: ".devutils"}
	assert.Equal(t, "/project/.devutils/lint-cache.yml", config.CacheFile("lint"))
	assert.Equal(t, "/project/.devutils/license-cache.yml", config.CacheFile("license"))
}

func TestFormatLanguageStep(t *testing.T) {
	lang := FormatLanguage{
		Tool:      "clang-format",
		CheckArgs: []string{"--dry-run", "-Werror"},
		FixArgs:   []string{"-i"},
	}

	step := lang.Step()
	assert.True(t, step.CanFix)
	assert.True(t, step.ExitCodeOnly)
	assert.False(t, step.PackageLevel)
	assert.Equal(t, "clang-format", step.Tool)
}

func TestDefaultLintLanguages(t *testing.T) {
	languages := DefaultLintLanguages("/project")
	require.Len(t, languages, 2)

	cpp := languages[0]
	assert.Equal(t, "C/C++", cpp.Name)
	require.Len(t, cpp.Steps, 2)
	assert.Equal(t, "clang-tidy", cpp.Steps[0].Tool)
	assert.True(t, cpp.Steps[0].CanFix)
	assert.Equal(t, "clang-check", cpp.Steps[1].Tool)
	assert.False(t, cpp.Steps[1].CanFix)

	python := languages[1]
	assert.Equal(t, "Python", python.Name)
	for _, step := range python.Steps {
		assert.True(t, step.PackageLevel)
	}
}

func TestDefaultLicenseLanguagesIncludesCMakeLists(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/project/libs/foo/CMakeLists.txt")

	languages := DefaultLicenseLanguages(fs, "/project")

	var cmake *LicenseLanguage
	for i := range languages {
		if languages[i].Name == "CMake" {
			cmake = &languages[i]
		}
	}
	require.NotNil(t, cmake)
	assert.Equal(t, "#", cmake.CommentPrefix)
	assert.Contains(t, cmake.ExplicitFiles, "/project/CMakeLists.txt")
	assert.Contains(t, cmake.ExplicitFiles, "/project/libs/foo/CMakeLists.txt")
}
