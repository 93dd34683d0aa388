package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/brainquiz/internal/config"
	"github.com/conorfennell/brainquiz/internal/domain"
	"github.com/conorfennell/brainquiz/internal/logging"
	"github.com/conorfennell/brainquiz/internal/lookup"
	"github.com/conorfennell/brainquiz/internal/notify"
	"github.com/conorfennell/brainquiz/internal/parser"
	"github.com/conorfennell/brainquiz/internal/scheduler"
	"github.com/conorfennell/brainquiz/internal/storage"
	"github.com/conorfennell/brainquiz/internal/sync"
	"github.com/conorfennell/brainquiz/internal/web"
)

const usage = `Usage: brainquiz [flags] <command> [args]

Commands:
  serve            run the web UI
  review           review due cards in the terminal
  import FILE...   add cards from .json or .md files
  due              print how many cards are due
  remind           notify when cards are due (--watch to keep checking, --test to send a test)
  lookup QUERY...  look a topic up on Wikipedia
  sync             import cards from the configured sources

Flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		slog.Error("brainquiz failed", "error", err)
		os.Exit(1)
	}
}

type app struct {
	cfg   *config.Config
	store storage.Store
	sched *scheduler.Scheduler
	out   io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := pflag.NewFlagSet("brainquiz", pflag.ContinueOnError)
	configFile := fs.String("config", "", "YAML config file (default brainquiz.yaml if present)")
	envFile := fs.String("env-file", "", "dotenv file (default .env if present)")
	watch := fs.Bool("watch", false, "remind: keep checking on the configured schedule")
	test := fs.Bool("test", false, "remind: send a test notification and exit")
	config.RegisterFlags(fs)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("no command given")
	}

	cfg, err := config.Load(config.Options{File: *configFile, EnvFile: *envFile, Flags: fs})
	if err != nil {
		return err
	}
	logging.New(cfg.Log, os.Stderr)

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]

	// lookup needs no card store.
	if cmd == "lookup" {
		return runLookup(ctx, cfg, cmdArgs, stdout)
	}

	a, err := open(ctx, cfg, stdout)
	if err != nil {
		return err
	}
	defer a.store.Close()

	switch cmd {
	case "serve":
		return a.serve(ctx)
	case "review":
		client := lookup.NewClient(cfg.Lookup.Lang, slog.Default())
		client.Sentences = cfg.Lookup.Sentences
		return runReview(ctx, a.sched.NewSession(), stdin, stdout, client)
	case "import":
		return a.importFiles(ctx, cmdArgs)
	case "due":
		fmt.Fprintf(stdout, "%d of %d cards are due.\n", a.sched.DueCount(), a.sched.Total())
		return nil
	case "remind":
		return a.remind(ctx, *watch, *test)
	case "sync":
		report, err := a.sync(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Synced %d sources: %d new cards from %d files, %d already known, %d errors.\n",
			report.Sources, report.Added, report.Files, report.Skipped, len(report.Errors))
		return nil
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func open(ctx context.Context, cfg *config.Config, out io.Writer) (*app, error) {
	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	sched, err := scheduler.New(ctx, store, scheduler.WithOrder(scheduler.Order(cfg.Scheduler.Order)))
	if err != nil {
		store.Close()
		return nil, err
	}
	slog.Debug("Store opened", "driver", cfg.Storage.Driver, "path", cfg.Storage.Path, "cards", sched.Total())
	return &app{cfg: cfg, store: store, sched: sched, out: out}, nil
}

func (a *app) sync(ctx context.Context) (sync.Report, error) {
	return sync.Run(ctx, a.sched, a.cfg.Sync.Sources, sync.Options{ReposDir: a.cfg.Sync.ReposDir})
}

func (a *app) serve(ctx context.Context) error {
	client := lookup.NewClient(a.cfg.Lookup.Lang, slog.Default())
	client.Sentences = a.cfg.Lookup.Sentences

	handler, err := web.NewServer(a.sched,
		web.WithLookup(client),
		web.WithSync(a.sync),
	)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", a.cfg.Server.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	slog.Info("Shutting down server")
	return srv.Shutdown(shutdownCtx)
}

// importFiles parses every file before importing any, so one malformed
// file leaves the collection untouched.
func (a *app) importFiles(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return errors.New("import needs at least one file")
	}

	batches := make([][]domain.Card, len(paths))
	for i, path := range paths {
		cards, err := parser.ParseFile(path)
		if err != nil {
			return fmt.Errorf("failed to import %s: %w", path, err)
		}
		batches[i] = cards
	}

	for i, cards := range batches {
		res, err := a.sched.Import(ctx, cards)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s: %d added, %d already known.\n", paths[i], res.Added, res.Skipped)
	}
	fmt.Fprintf(a.out, "%d cards in total.\n", a.sched.Total())
	return nil
}

func (a *app) notifier() (notify.Notifier, error) {
	notifiers := notify.Multi{notify.Log{}}
	if a.cfg.Notify.Desktop {
		notifiers = append(notifiers, notify.NewDesktop(""))
	}
	if tg := a.cfg.Notify.Telegram; tg.Enabled() {
		t, err := notify.NewTelegram(tg.Token, tg.Chat, "", nil)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, t)
	}
	return notifiers, nil
}

func (a *app) remind(ctx context.Context, watch, test bool) error {
	n, err := a.notifier()
	if err != nil {
		return err
	}

	switch {
	case test:
		return n.Notify(ctx, "Test", "The notification system is working!")
	case watch:
		r := &notify.Reminder{
			Pending:   a.sched,
			Notifier:  n,
			Schedule:  a.cfg.Notify.Schedule,
			Immediate: true,
		}
		return r.Run(ctx)
	default:
		due, err := notify.CheckPending(ctx, a.sched, n)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%d cards are due.\n", due)
		return nil
	}
}

func runLookup(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	client := lookup.NewClient(cfg.Lookup.Lang, slog.Default())
	client.Sentences = cfg.Lookup.Sentences

	res, err := client.Summary(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, res)
	return nil
}
