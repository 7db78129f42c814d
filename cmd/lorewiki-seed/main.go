// lorewiki-seed creates a world and fills it from the command line, either by
// generating a seed article or by importing a directory of Markdown lore.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrypster/lorewiki/internal/app"
	"github.com/scrypster/lorewiki/internal/config"
	"github.com/scrypster/lorewiki/internal/engine"
	"github.com/scrypster/lorewiki/internal/importer"
	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/world"
	"github.com/scrypster/lorewiki/pkg/types"
)

type options struct {
	World          string
	Description    string
	Design         string
	Title          string
	Instructions   string
	ImportDir      string
	Overwrite      bool
	SkipValidation bool
	Backup         bool
	WorldsPath     string
}

func parseArgs(args []string, errOut io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("lorewiki-seed", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&o.World, "world", "", "World name (required)")
	fs.StringVar(&o.Description, "description", "", "Description for a new world")
	fs.StringVar(&o.Design, "design", "", "Idea to design a new world from")
	fs.StringVar(&o.Title, "title", "", "Article title to generate")
	fs.StringVar(&o.Instructions, "instructions", "", "Extra guidance for the generated article")
	fs.StringVar(&o.ImportDir, "import", "", "Directory of Markdown lore files to import")
	fs.BoolVar(&o.Overwrite, "overwrite", false, "Replace existing articles on import")
	fs.BoolVar(&o.SkipValidation, "skip-validation", false, "Skip the consistency check for generated articles")
	fs.BoolVar(&o.Backup, "backup", false, "Back up the world when done (needs LOREWIKI_BACKUP_DIR)")
	fs.StringVar(&o.WorldsPath, "worlds", "", "Worlds directory (overrides LOREWIKI_WORLDS_PATH)")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	if o.World == "" {
		return o, errors.New("-world is required")
	}
	if err := world.ValidateName(o.World); err != nil {
		return o, err
	}
	if o.Title == "" && o.ImportDir == "" && o.Design == "" && !o.Backup {
		return o, errors.New("nothing to do: pass -title, -import, -design or -backup")
	}
	if o.Title != "" && o.ImportDir != "" {
		return o, errors.New("-title and -import are mutually exclusive")
	}
	return o, nil
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "lorewiki-seed: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if opts.WorldsPath != "" {
		cfg.Storage.WorldsPath = opts.WorldsPath
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", "error", err)
	}
	runErr := seed(ctx, a, opts, os.Stdout)

	// Let queued image jobs finish before exiting.
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	if runErr != nil {
		log.Fatal("seed failed", "world", opts.World, "error", runErr)
	}
}

// seed creates the world when it is missing, then generates or imports,
// and finally backs the world up when asked.
func seed(ctx context.Context, a *app.App, o options, out io.Writer) error {
	if o.Backup && a.Backups == nil {
		return errors.New("-backup needs LOREWIKI_BACKUP_DIR")
	}
	if err := ensureWorld(ctx, a, o, out); err != nil {
		return err
	}

	switch {
	case o.ImportDir != "":
		h, err := a.Registry.Open(ctx, o.World)
		if err != nil {
			return err
		}
		res, err := a.Importer.Import(ctx, h, o.ImportDir, importer.Options{Overwrite: o.Overwrite})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "imported %d, updated %d, skipped %d, failed %d of %d files (%d relationships, %d aliases) in %s\n",
			res.Imported, res.Updated, res.Skipped, res.Failed, res.FilesFound, res.Relationships, res.Aliases,
			res.Duration.Round(time.Millisecond))
		for _, e := range res.Errors {
			fmt.Fprintf(out, "  %s\n", e)
		}
	case o.Title != "":
		res, err := a.Engine.Generate(ctx, o.World, engine.GenerateRequest{
			Title:          o.Title,
			Instructions:   o.Instructions,
			SkipValidation: o.SkipValidation,
		})
		if err != nil {
			return err
		}
		printArticle(out, res)
	}

	if o.Backup {
		res, err := a.Backups.BackupWorld(ctx, o.World)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "backed up to %s\n", res.Path)
	}
	return nil
}

func ensureWorld(ctx context.Context, a *app.App, o options, out io.Writer) error {
	if a.Registry.Exists(o.World) {
		return nil
	}

	cfg := types.WorldConfig{Name: o.World, Description: o.Description}
	req := engine.CreateWorldRequest{SkipValidation: o.SkipValidation}
	if o.Design != "" {
		design, err := a.Engine.DesignWorld(ctx, o.Design)
		if err != nil {
			return err
		}
		cfg = design.WorldConfig
		cfg.Name = o.World
		if o.Title == "" && o.ImportDir == "" {
			req.SeedTitle = design.SeedArticleTitle
			req.SeedInstructions = design.SeedArticleDescription
		}
	}
	req.Config = cfg

	res, err := a.Engine.CreateWorld(ctx, req)
	if res != nil {
		fmt.Fprintf(out, "created world %s\n", res.Config.Name)
		if res.Seed != nil {
			printArticle(out, res.Seed)
		}
	}
	return err
}

func printArticle(out io.Writer, res *engine.GenerateResult) {
	verb := "found"
	if res.Created() {
		verb = "generated"
	}
	fmt.Fprintf(out, "%s %q", verb, res.Article.Title)
	if res.Article.Title != res.RequestedTitle {
		fmt.Fprintf(out, " (requested %q)", res.RequestedTitle)
	}
	fmt.Fprintln(out)
	for _, issue := range res.Issues {
		fmt.Fprintf(out, "  issue: %s\n", issue)
	}
	if res.SyncErr != nil {
		fmt.Fprintf(out, "  warning: %v\n", res.SyncErr)
	}
}
