// Package importer loads hand-written lore from a directory of markdown files
// into a world. Each file becomes a canonical article, its similarity index
// entry and its graph node, so imported lore constrains later generation
// exactly as generated lore does.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/lorewiki/internal/engine"
	"github.com/scrypster/lorewiki/internal/graph"
	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/storage"
	"github.com/scrypster/lorewiki/internal/world"
	"github.com/scrypster/lorewiki/pkg/types"
)

// Job states.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Options controls one import.
type Options struct {
	// Overwrite replaces the content of articles that already exist.
	// Otherwise existing titles are skipped.
	Overwrite bool
}

// Result summarizes a finished import.
type Result struct {
	JobID         string        `json:"job_id,omitempty"`
	World         string        `json:"world"`
	FilesFound    int           `json:"files_found"`
	Imported      int           `json:"imported"`
	Updated       int           `json:"updated"`
	Skipped       int           `json:"skipped"`
	Failed        int           `json:"failed"`
	Relationships int           `json:"relationships"`
	Aliases       int           `json:"aliases"`
	Errors        []string      `json:"errors,omitempty"`
	Duration      time.Duration `json:"duration_ms"`
}

// Progress is a live view of a running import job.
type Progress struct {
	JobID          string `json:"job_id"`
	World          string `json:"world"`
	Status         string `json:"status"`
	FilesTotal     int    `json:"files_total"`
	FilesProcessed int    `json:"files_processed"`
	CurrentFile    string `json:"current_file,omitempty"`
	Message        string `json:"message,omitempty"`
}

// Job tracks an asynchronous import.
type Job struct {
	mu       sync.RWMutex
	progress Progress
	result   *Result
	done     chan struct{}
}

// Progress returns a snapshot of the job's progress.
func (j *Job) Progress() Progress {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.progress
}

// Result returns the final summary, or nil while the job runs.
func (j *Job) Result() *Result {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.result
}

// Done is closed when the job finishes.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

func (j *Job) update(fn func(p *Progress)) {
	j.mu.Lock()
	fn(&j.progress)
	j.mu.Unlock()
}

// Importer imports markdown lore and tracks background import jobs.
type Importer struct {
	log *logger.Logger

	mu   sync.RWMutex
	jobs map[string]*Job
}

// New creates an Importer.
func New(log *logger.Logger) *Importer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Importer{log: log, jobs: make(map[string]*Job)}
}

// Start validates dir and imports it in the background. The returned job ID
// works with Job.
func (imp *Importer) Start(ctx context.Context, h *world.Handle, dir string, opts Options) (string, error) {
	if err := checkDir(dir); err != nil {
		return "", err
	}

	id := uuid.New().String()
	job := &Job{
		progress: Progress{JobID: id, World: h.Name, Status: StatusRunning},
		done:     make(chan struct{}),
	}
	imp.mu.Lock()
	imp.jobs[id] = job
	imp.mu.Unlock()

	go func() {
		defer close(job.done)
		result := imp.run(ctx, h, dir, opts, job)
		result.JobID = id

		job.mu.Lock()
		defer job.mu.Unlock()
		job.result = result
		job.progress.CurrentFile = ""
		if result.FilesFound > 0 && result.Imported+result.Updated+result.Skipped == 0 {
			job.progress.Status = StatusFailed
			job.progress.Message = "import failed"
		} else {
			job.progress.Status = StatusComplete
			job.progress.Message = fmt.Sprintf("imported %d articles from %d files", result.Imported+result.Updated, result.FilesFound)
		}
	}()
	return id, nil
}

// Job returns the job with the given ID.
func (imp *Importer) Job(id string) (*Job, bool) {
	imp.mu.RLock()
	defer imp.mu.RUnlock()
	job, ok := imp.jobs[id]
	return job, ok
}

// Import synchronously imports every markdown file under dir into h.
func (imp *Importer) Import(ctx context.Context, h *world.Handle, dir string, opts Options) (*Result, error) {
	if err := checkDir(dir); err != nil {
		return nil, err
	}
	return imp.run(ctx, h, dir, opts, nil), nil
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot access directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %q is not a directory", storage.ErrInvalidInput, dir)
	}
	return nil
}

func (imp *Importer) run(ctx context.Context, h *world.Handle, dir string, opts Options, job *Job) *Result {
	start := time.Now()
	result := &Result{World: h.Name}
	defer func() { result.Duration = time.Since(start) }()

	files, err := collectMarkdownFiles(dir)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("walk error: %v", err))
		return result
	}
	result.FilesFound = len(files)
	if job != nil {
		job.update(func(p *Progress) { p.FilesTotal = len(files) })
	}

	for i, path := range files {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, "context cancelled")
			break
		}
		rel, _ := filepath.Rel(dir, path)
		if job != nil {
			job.update(func(p *Progress) {
				p.FilesProcessed = i
				p.CurrentFile = rel
			})
		}

		data, err := os.ReadFile(path)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: read error: %v", rel, err))
			continue
		}
		if strings.TrimSpace(string(data)) == "" {
			result.Skipped++
			continue
		}

		f, err := ParseLoreFile(data, rel)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		f.Title = engine.NormalizeTitle(f.Title)
		if f.Title == "" || f.Content == "" {
			result.Skipped++
			continue
		}

		outcome, err := imp.importFile(ctx, h, f, opts)
		if err != nil {
			imp.log.Warn("import failed", "world", h.Name, "file", rel, "error", err)
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rel, err))
			continue
		}
		switch outcome.state {
		case fileInserted:
			result.Imported++
		case fileUpdated:
			result.Updated++
		case fileSkipped:
			result.Skipped++
			continue
		}
		result.Relationships += len(f.Related) + len(f.WikiLinks)
		result.Aliases += outcome.aliases
	}

	if job != nil {
		job.update(func(p *Progress) { p.FilesProcessed = len(files) })
	}
	imp.log.Info("import finished",
		"world", h.Name,
		"files", result.FilesFound,
		"imported", result.Imported,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"failed", result.Failed)
	return result
}

type fileState int

const (
	fileInserted fileState = iota
	fileUpdated
	fileSkipped
)

type fileOutcome struct {
	state   fileState
	aliases int
}

// importFile writes one parsed file to the article store, the similarity
// index and the graph.
func (imp *Importer) importFile(ctx context.Context, h *world.Handle, f *LoreFile, opts Options) (fileOutcome, error) {
	now := time.Now().UTC()
	article := &types.Article{
		ID:                uuid.New().String(),
		World:             h.Name,
		Title:             f.Title,
		Summary:           f.Summary,
		Content:           f.Content,
		ChronologyDisplay: f.DisplayDate,
		RelatedEntities:   f.Plan().RelatedEntities,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	state := fileInserted
	err := h.Store.InsertArticle(ctx, article)
	if errors.Is(err, storage.ErrAlreadyExists) {
		if !opts.Overwrite {
			return fileOutcome{state: fileSkipped}, nil
		}
		existing, gerr := h.Store.GetArticle(ctx, f.Title)
		if gerr != nil {
			return fileOutcome{}, gerr
		}
		article, err = h.Store.UpdateArticle(ctx, existing.ID, types.ArticleUpdate{Summary: &f.Summary, Content: &f.Content})
		state = fileUpdated
	}
	if err != nil {
		return fileOutcome{}, err
	}

	if err := h.Store.IndexArticle(ctx, article); err != nil {
		return fileOutcome{}, fmt.Errorf("index %q: %w", f.Title, err)
	}

	aliases, err := imp.freeAliases(ctx, h, f)
	if err != nil {
		return fileOutcome{}, err
	}
	err = h.Graph.Update(ctx, func(g *graph.Graph) error {
		return applyLoreFile(g, f, aliases)
	})
	if err != nil {
		return fileOutcome{}, fmt.Errorf("graph %q: %w", f.Title, err)
	}
	return fileOutcome{state: state, aliases: len(aliases)}, nil
}

// freeAliases drops aliases that already name a canonical article.
func (imp *Importer) freeAliases(ctx context.Context, h *world.Handle, f *LoreFile) ([]string, error) {
	var out []string
	for _, alias := range f.Aliases {
		alias = engine.NormalizeTitle(alias)
		if alias == "" || alias == f.Title {
			continue
		}
		_, err := h.Store.GetArticle(ctx, alias)
		switch {
		case err == nil:
			imp.log.Warn("alias names an existing article", "world", h.Name, "title", f.Title, "alias", alias)
			continue
		case !errors.Is(err, storage.ErrNotFound):
			return nil, err
		}
		out = append(out, alias)
	}
	return out, nil
}

// applyLoreFile merges f into g: aliases first so related entities that
// name them fold onto the article, then the plan, then any legacy year.
func applyLoreFile(g *graph.Graph, f *LoreFile, aliases []string) error {
	for _, alias := range aliases {
		if n, ok := g.Node(alias); ok && n.Type == types.NodeTypeArticle {
			continue
		}
		if err := g.UpsertEntity(alias, types.NodeTypeAlias, types.NodeAttributes{}, true); err != nil {
			return err
		}
		if err := g.UpsertRelationship(alias, f.Title, types.RelationAliasOf); err != nil {
			return err
		}
	}

	if err := engine.ApplyPlan(g, f.Title, f.Plan()); err != nil {
		return err
	}

	if f.LegacyYear != "" {
		return g.UpsertEntity(f.Title, types.NodeTypeArticle, types.NodeAttributes{
			LegacyYear:  f.LegacyYear,
			DisplayDate: f.DisplayDate,
		}, true)
	}
	return nil
}

// collectMarkdownFiles returns every .md and .markdown file under dir,
// skipping hidden directories such as .git or .obsidian.
func collectMarkdownFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if ext == ".md" || ext == ".markdown" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
