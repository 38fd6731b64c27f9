package devutils

import (
	"errors"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Config holds the run-wide settings. Everything has a built-in default;
// an optional devutils.yml at the project root overrides individual keys.
// Configuration is constructed fresh per command invocation and never
// persisted.
type Config struct {
	Root     string        `yaml:"-" mapstructure:"-"`
	Workers  int           `yaml:"workers" mapstructure:"workers"`
	CacheDir string        `yaml:"cache_dir" mapstructure:"cache_dir"`
	License  LicenseConfig `yaml:"license" mapstructure:"license"`
}

// LicenseConfig describes the expected SPDX header contents.
type LicenseConfig struct {
	Owner string `yaml:"owner" mapstructure:"owner"`
	SPDX  string `yaml:"spdx" mapstructure:"spdx"`
}

// CacheFile returns the cache store path for one check category.
func (c Config) CacheFile(category string) string {
	return JoinPaths(c.Root, c.CacheDir, category+"-cache.yml")
}

// LoadConfig reads the optional devutils.yml at the project root. A
// missing config file is not an error, the built-in defaults describe a
// complete setup; only a present-but-unreadable file fails.
func LoadConfig(fs afero.Fs, root string, cfgFile string) (Config, error) {
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigType("yml")

	v.SetDefault("workers", 0)
	v.SetDefault("cache_dir", ".devutils")
	v.SetDefault("license.owner", "Logenium Authors and Contributors")
	v.SetDefault("license.spdx", "BSD-3-Clause")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("devutils")
		v.AddConfigPath(root)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, NewConfigError("failed loading config file", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, NewConfigError("failed unmarshaling config file", err)
	}
	config.Root = root

	return config, nil
}

// LanguageConfig describes one language category: its display name, the
// file extensions it owns, the directories searched recursively, and any
// explicit extra files.
type LanguageConfig struct {
	Name          string
	Extensions    []string
	SearchDirs    []string
	ExplicitFiles []string
}

// Collect returns the language's file set, deduplicated and sorted.
func (c LanguageConfig) Collect(fs afero.Fs) []string {
	return CollectFiles(fs, c.Extensions, c.SearchDirs, c.ExplicitFiles)
}

// LintStep is one ordered check within a language. Steps run strictly in
// configured order for each file, since a later step's fix may depend on
// an earlier step's already-applied fix.
type LintStep struct {
	Tool         string
	CheckArgs    []string
	FixArgs      []string
	CanFix       bool
	PackageLevel bool
	ExitCodeOnly bool // formatters: classify by exit code alone, skip output markers
}

// LintLanguage couples a language category with its ordered lint steps.
type LintLanguage struct {
	LanguageConfig
	Steps []LintStep
}

// FormatLanguage couples a language category with its single formatter.
type FormatLanguage struct {
	LanguageConfig
	Tool      string
	CheckArgs []string
	FixArgs   []string
}

// Step expresses the formatter as a lint step so it runs through the same
// orchestration engine. Formatters always support fixing and are judged
// by exit code alone.
func (f FormatLanguage) Step() LintStep {
	return LintStep{
		Tool:         f.Tool,
		CheckArgs:    f.CheckArgs,
		FixArgs:      f.FixArgs,
		CanFix:       true,
		ExitCodeOnly: true,
	}
}

// LicenseLanguage couples a language category with its comment style for
// SPDX headers.
type LicenseLanguage struct {
	LanguageConfig
	CommentPrefix string
}

var (
	cExtensions      = []string{".c", ".h"}
	cppExtensions    = []string{".cc", ".cpp", ".cxx", ".hh", ".hpp", ".hxx"}
	pythonExtensions = []string{".py"}
	cmakeExtensions  = []string{".cmake"}
)

// DefaultLintLanguages returns the built-in lint configuration.
// clang-tidy and clang-check run per file against the compile database;
// mypy and ruff check the whole Python package in one invocation.
func DefaultLintLanguages(root string) []LintLanguage {
	build := JoinPaths(root, "build")
	devutilsSrc := JoinPaths(root, "devutils", "src")

	return []LintLanguage{
		{
			LanguageConfig: LanguageConfig{
				Name:       "C/C++",
				Extensions: append(append([]string{}, cExtensions...), cppExtensions...),
				SearchDirs: []string{
					JoinPaths(root, "src"),
					JoinPaths(root, "include"),
					JoinPaths(root, "tests"),
					JoinPaths(root, "libs"),
				},
			},
			Steps: []LintStep{
				{
					Tool:      "clang-tidy",
					CheckArgs: []string{"-p", build},
					FixArgs:   []string{"-p", build, "--fix"},
					CanFix:    true,
				},
				{
					Tool:      "clang-check",
					CheckArgs: []string{"--analyze", "-p", build},
					CanFix:    false,
				},
			},
		},
		{
			LanguageConfig: LanguageConfig{
				Name:       "Python",
				Extensions: pythonExtensions,
				SearchDirs: []string{devutilsSrc},
			},
			Steps: []LintStep{
				{
					Tool:         "mypy",
					CheckArgs:    []string{"--config-file", JoinPaths(root, "devutils", "pyproject.toml"), devutilsSrc},
					CanFix:       false,
					PackageLevel: true,
				},
				{
					Tool:         "ruff",
					CheckArgs:    []string{"check", devutilsSrc},
					FixArgs:      []string{"check", "--fix", devutilsSrc},
					CanFix:       true,
					PackageLevel: true,
				},
			},
		},
	}
}

// DefaultFormatLanguages returns the built-in formatter configuration.
func DefaultFormatLanguages(root string) []FormatLanguage {
	return []FormatLanguage{
		{
			LanguageConfig: LanguageConfig{
				Name:       "C/C++",
				Extensions: append(append([]string{}, cExtensions...), cppExtensions...),
				SearchDirs: []string{
					JoinPaths(root, "src"),
					JoinPaths(root, "include"),
					JoinPaths(root, "libs"),
				},
			},
			Tool:      "clang-format",
			CheckArgs: []string{"--dry-run", "-Werror"},
			FixArgs:   []string{"-i"},
		},
		{
			LanguageConfig: LanguageConfig{
				Name:       "Python",
				Extensions: pythonExtensions,
				SearchDirs: []string{JoinPaths(root, "devutils", "src")},
			},
			Tool:      "ruff",
			CheckArgs: []string{"format", "--check"},
			FixArgs:   []string{"format"},
		},
	}
}

// DefaultLicenseLanguages returns the built-in license-header
// configuration. CMake list files carry no extension, so they are
// discovered by name and included explicitly.
func DefaultLicenseLanguages(fs afero.Fs, root string) []LicenseLanguage {
	cmakeFiles := []string{JoinPaths(root, "CMakeLists.txt")}
	cmakeFiles = append(cmakeFiles, FindFilesByName(fs, JoinPaths(root, "libs"), "CMakeLists.txt")...)
	cmakeFiles = append(cmakeFiles, FindFilesByName(fs, JoinPaths(root, "tests"), "CMakeLists.txt")...)

	return []LicenseLanguage{
		{
			LanguageConfig: LanguageConfig{
				Name:       "C/C++",
				Extensions: append(append([]string{}, cExtensions...), cppExtensions...),
				SearchDirs: []string{
					JoinPaths(root, "src"),
					JoinPaths(root, "include"),
					JoinPaths(root, "tests"),
					JoinPaths(root, "libs"),
				},
			},
			CommentPrefix: "//",
		},
		{
			LanguageConfig: LanguageConfig{
				Name:          "CMake",
				Extensions:    cmakeExtensions,
				SearchDirs:    []string{JoinPaths(root, "cmake")},
				ExplicitFiles: cmakeFiles,
			},
			CommentPrefix: "#",
		},
		{
			LanguageConfig: LanguageConfig{
				Name:       "Python",
				Extensions: pythonExtensions,
				SearchDirs: []string{JoinPaths(root, "devutils", "src")},
			},
			CommentPrefix: "#",
		},
		{
			LanguageConfig: LanguageConfig{
				Name:          "Bash",
				ExplicitFiles: []string{JoinPaths(root, "devutils.sh")},
			},
			CommentPrefix: "#",
		},
	}
}
