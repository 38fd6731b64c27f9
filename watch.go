package devutils

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

// WatchMode provides continuous monitoring: source files are watched and
// changed ones re-checked through the normal lint pass, so the mtime cache
// keeps unchanged files free.
type WatchMode struct {
	fs           afero.Fs
	logger       *slog.Logger
	config       Config
	languages    []LintLanguage
	checkers     map[string][]Checker
	cache        *ResultCache
	orchestrator *Orchestrator
	out          io.Writer

	watcher      *fsnotify.Watcher
	debounceTime time.Duration

	// Debouncing state
	mu             sync.Mutex
	pendingChanges map[string]time.Time
	debounceTimer  *time.Timer

	stats WatchStats
}

// WatchStats holds statistics about watch mode operation
type WatchStats struct {
	mu               sync.Mutex
	totalAnalyses    int
	filesAnalyzed    int
	issuesFound      int
	lastAnalysisTime time.Time
}

// WatchConfig holds configuration for watch mode
type WatchConfig struct {
	Root         string
	ConfigFile   string
	Logger       *slog.Logger
	FS           afero.Fs
	Commander    Commander
	Out          io.Writer
	DebounceTime time.Duration
	Workers      int
	NoCache      bool
}

// NewWatchMode creates a new WatchMode instance
func NewWatchMode(cfg WatchConfig) (*WatchMode, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if cfg.FS == nil {
		cfg.FS = afero.NewOsFs()
	}
	if cfg.Commander == nil {
		cfg.Commander = NewExecCommander()
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.DebounceTime == 0 {
		cfg.DebounceTime = 100 * time.Millisecond
	}

	config, err := LoadConfig(cfg.FS, cfg.Root, cfg.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	languages := DefaultLintLanguages(cfg.Root)
	runner := NewToolRunner(cfg.Commander, cfg.Logger, cfg.Root)

	checkers := make(map[string][]Checker, len(languages))
	for _, lang := range languages {
		steps := make([]Checker, 0, len(lang.Steps))
		for _, step := range lang.Steps {
			steps = append(steps, NewToolChecker(runner, step))
		}
		checkers[lang.Name] = steps
	}

	cache := NewResultCache(cfg.FS, config.CacheFile("lint"), cfg.Root, !cfg.NoCache)
	printer := NewStatusPrinter(cfg.Out, cfg.Root)

	opts := []OrchestratorOption{WithIssueTag("[HAS_ISSUES]")}
	if cfg.Workers > 0 {
		opts = append(opts, WithWorkerCount(cfg.Workers))
	}
	orchestrator, err := NewOrchestrator(cache, printer, cfg.Logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	wm := &WatchMode{
		fs:             cfg.FS,
		logger:         cfg.Logger,
		config:         config,
		languages:      languages,
		checkers:       checkers,
		cache:          cache,
		orchestrator:   orchestrator,
		out:            cfg.Out,
		watcher:        watcher,
		debounceTime:   cfg.DebounceTime,
		pendingChanges: make(map[string]time.Time),
	}

	return wm, nil
}

// Start runs an initial full check, then begins watching for changes.
func (w *WatchMode) Start(ctx context.Context) error {
	w.printHeader()
	w.logger.Info("Starting watch mode", "root", w.config.Root)

	w.runInitialAnalysis()

	if err := w.addDirsToWatcher(); err != nil {
		return fmt.Errorf("failed to add directories to watcher: %w", err)
	}

	w.printWatchingMessage()

	return w.processEvents(ctx)
}

// Stop gracefully stops the watcher
func (w *WatchMode) Stop() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

// runInitialAnalysis checks every language's full file set once.
func (w *WatchMode) runInitialAnalysis() {
	stats := NewStatistics("[HAS_ISSUES]")
	total := 0

	for _, lang := range w.languages {
		files := lang.Collect(w.fs)
		if len(files) == 0 {
			continue
		}
		total += len(files)
		w.orchestrator.RunPass(lang.Name, files, w.checkers[lang.Name], ModeCheck, stats)
	}

	w.flushCache()
	w.printOutcome(stats)
	w.updateStats(total, stats.Counts().Issues+stats.Counts().Errors)
}

// addDirsToWatcher registers every search directory tree. Directories are
// watched rather than individual files so newly created files are seen.
func (w *WatchMode) addDirsToWatcher() error {
	for _, lang := range w.languages {
		for _, dir := range lang.SearchDirs {
			if _, err := w.fs.Stat(dir); err != nil {
				continue
			}
			err := afero.Walk(w.fs, dir, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					w.logger.Warn("Error walking path", "path", path, "error", err)
					return nil // Continue walking
				}
				if !info.IsDir() {
					return nil
				}
				if strings.HasPrefix(info.Name(), ".") || info.Name() == "build" {
					return filepath.SkipDir
				}
				if err := w.watcher.Add(path); err != nil {
					w.logger.Warn("Failed to watch directory", "path", path, "error", err)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// processEvents handles file system events with debouncing
func (w *WatchMode) processEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping watch mode")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("Watcher error", "error", err)
		}
	}
}

// handleEvent processes a single file system event
func (w *WatchMode) handleEvent(event fsnotify.Event) {
	if !w.shouldProcessEvent(event) {
		return
	}
	// Watched directories can be symlinked from elsewhere; only paths
	// under the project root belong to a pass.
	if !IsSubPath(w.config.Root, event.Name) {
		return
	}
	if w.matchLanguage(event.Name) == nil {
		return
	}

	w.mu.Lock()
	w.pendingChanges[NormalizePath(event.Name)] = time.Now()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceTime, w.processPendingChanges)
	w.mu.Unlock()
}

// shouldProcessEvent filters events we care about
func (w *WatchMode) shouldProcessEvent(event fsnotify.Event) bool {
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

// matchLanguage returns the language owning a path, by extension.
func (w *WatchMode) matchLanguage(path string) *LintLanguage {
	ext := filepath.Ext(path)
	for i := range w.languages {
		for _, langExt := range w.languages[i].Extensions {
			if ext == langExt {
				return &w.languages[i]
			}
		}
	}
	return nil
}

// processPendingChanges re-checks all debounced file changes.
func (w *WatchMode) processPendingChanges() {
	w.mu.Lock()
	changes := make([]string, 0, len(w.pendingChanges))
	for path := range w.pendingChanges {
		changes = append(changes, path)
	}
	w.pendingChanges = make(map[string]time.Time)
	w.mu.Unlock()

	if len(changes) == 0 {
		return
	}

	w.printTimestamp()
	for _, path := range changes {
		fmt.Fprintln(w.out, color.New(color.FgCyan).Sprintf("📝 %s changed", path))
	}

	fileText := "file"
	if len(changes) > 1 {
		fileText = "files"
	}
	fmt.Fprintln(w.out, color.New(color.FgMagenta).Sprintf("⚡ Re-checking %d %s...", len(changes), fileText))

	// Changed files may invalidate package-level results from the
	// previous analysis.
	w.cache.ResetPackageResults()

	stats := NewStatistics("[HAS_ISSUES]")
	checked := 0
	for _, lang := range w.languages {
		files := w.filterChanges(lang, changes)
		if len(files) == 0 {
			continue
		}
		checked += len(files)
		w.orchestrator.RunPass(lang.Name, files, w.checkers[lang.Name], ModeCheck, stats)
	}

	w.flushCache()
	w.printOutcome(stats)
	w.updateStats(checked, stats.Counts().Issues+stats.Counts().Errors)
}

// filterChanges keeps the changed paths that still exist and belong to a
// language. A file deleted between the event and the re-check is skipped.
func (w *WatchMode) filterChanges(lang LintLanguage, changes []string) []string {
	extSet := make(map[string]bool, len(lang.Extensions))
	for _, ext := range lang.Extensions {
		extSet[ext] = true
	}

	var files []string
	for _, path := range changes {
		if !extSet[filepath.Ext(path)] {
			continue
		}
		info, err := w.fs.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				w.logger.Debug("File was deleted, skipping", "path", path)
				continue
			}
			w.logger.Warn("Failed to stat file", "path", path, "error", err)
			continue
		}
		if info.IsDir() {
			continue
		}
		files = append(files, path)
	}
	return files
}

func (w *WatchMode) flushCache() {
	if err := w.cache.Flush(); err != nil {
		w.logger.Warn("Failed to persist cache", "error", err)
	}
}

// printHeader prints the initial header
func (w *WatchMode) printHeader() {
	boxColor := color.New(color.FgHiBlack)
	titleColor := color.New(color.Bold)

	boxTop := "╭─────────────────────────────────────────────────────╮"
	boxBottom := "╰─────────────────────────────────────────────────────╯"

	fmt.Fprintln(w.out, boxColor.Sprint(boxTop))
	fmt.Fprintln(w.out, boxColor.Sprint("│")+"  "+titleColor.Sprint("devutils Watch Mode")+strings.Repeat(" ", 32)+boxColor.Sprint("│"))
	fmt.Fprintln(w.out, boxColor.Sprint(boxBottom))
	fmt.Fprintln(w.out)
}

// printWatchingMessage prints the watching message
func (w *WatchMode) printWatchingMessage() {
	fmt.Fprintln(w.out)
	watchMsg := fmt.Sprintf("👀 Watching %s for changes...", w.config.Root)
	fmt.Fprintln(w.out, color.New(color.FgGreen, color.Bold).Sprint(watchMsg))
	fmt.Fprintln(w.out, color.New(color.FgHiBlack).Sprint("Press Ctrl+C to stop"))
	fmt.Fprintln(w.out)
}

// printTimestamp prints the current timestamp
func (w *WatchMode) printTimestamp() {
	timestamp := time.Now().Format("15:04:05")
	fmt.Fprintf(w.out, "[%s] ", color.New(color.FgHiBlack).Sprint(timestamp))
}

// printOutcome summarizes one analysis round.
func (w *WatchMode) printOutcome(stats *Statistics) {
	counts := stats.Counts()
	if !stats.HasFailures() {
		fmt.Fprintln(w.out, color.New(color.FgGreen, color.Bold).Sprint("✅ All checks passed"))
		fmt.Fprintln(w.out)
		return
	}

	fmt.Fprintln(w.out, color.New(color.FgRed, color.Bold).Sprintf("❌ %d file(s) with issues, %d error(s)", counts.Issues, counts.Errors))
	fmt.Fprintln(w.out)
}

// updateStats updates watch mode statistics
func (w *WatchMode) updateStats(files, issues int) {
	w.stats.mu.Lock()
	defer w.stats.mu.Unlock()

	w.stats.totalAnalyses++
	w.stats.filesAnalyzed += files
	w.stats.issuesFound += issues
	w.stats.lastAnalysisTime = time.Now()
}

// Counts reports how many analyses ran and what they found.
func (w *WatchMode) Counts() (analyses, files, issues int) {
	w.stats.mu.Lock()
	defer w.stats.mu.Unlock()
	return w.stats.totalAnalyses, w.stats.filesAnalyzed, w.stats.issuesFound
}
