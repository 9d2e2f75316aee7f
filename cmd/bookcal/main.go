package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"bookcal/internal/capture"
	"bookcal/internal/config"
	"bookcal/internal/ics"
	appLog "bookcal/internal/log"
	"bookcal/internal/store"
	"bookcal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	exportPath string
	snapshot   bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.Info("bookcal starting", "version", "0.1.0")

	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	loc := conf.Location()

	appLog.Info("effective config",
		"listen", conf.Listen,
		"database", conf.Database,
		"timezone", loc.String(),
		"week_start", conf.WeekStart,
		"refresh", conf.RefreshCron,
		"ics_count", len(conf.ICS),
		"once", flags.once,
		"export", flags.exportPath,
		"snapshot", flags.snapshot,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(conf.Database), 0o755); err != nil {
		appLog.Error("failed to create database dir", err, "path", conf.Database)
		os.Exit(1)
	}
	st, err := store.Open(ctx, conf.Database, loc)
	if err != nil {
		appLog.Error("failed to open store", err, "path", conf.Database)
		os.Exit(1)
	}
	defer st.Close()

	imp := newImporter(conf, st, loc)

	if flags.once || flags.exportPath != "" || flags.snapshot {
		if err := runOnce(ctx, conf, st, imp, flags); err != nil {
			appLog.Error("one-shot run failed", err)
			st.Close()
			os.Exit(1)
		}
		return
	}

	imp.run(ctx)

	sched := cron.New()
	if _, err := sched.AddFunc(conf.RefreshCron, func() { imp.run(ctx) }); err != nil {
		appLog.Error("invalid refresh schedule; feeds will only import at startup", err, "refresh", conf.RefreshCron)
	} else {
		sched.Start()
		defer func() { <-sched.Stop().Done() }()
	}

	if err := web.NewServer(conf, st).Serve(ctx); err != nil {
		appLog.Error("web server failed", err)
	}
	appLog.Info("bookcal exiting")
}

// runOnce imports the feeds, then exports and/or snapshots as requested.
// A snapshot needs a server answering on conf.Snapshot.URL, so one is run
// for the duration of the capture.
func runOnce(ctx context.Context, conf *config.Config, st *store.Store, imp *importer, flags flagConfig) error {
	imp.run(ctx)

	if flags.exportPath != "" {
		events, err := st.List(ctx)
		if err != nil {
			return err
		}
		if err := os.WriteFile(flags.exportPath, []byte(ics.Export(events, time.Now().UTC())), 0o644); err != nil {
			return err
		}
		appLog.Info("calendar exported", "path", flags.exportPath, "events", len(events))
	}

	if !flags.snapshot {
		return nil
	}
	srvCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	srvErr := make(chan error, 1)
	go func() { srvErr <- web.NewServer(conf, st).Serve(srvCtx) }()

	err := capture.CaptureCalendarPNG(ctx, capture.OptionsFromConfig(conf.Snapshot))
	cancel()
	if serr := <-srvErr; serr != nil {
		appLog.Error("snapshot server failed", serr)
	}
	return err
}

// importer re-imports every configured feed into the store.
type importer struct {
	fetcher *ics.Fetcher
	store   *store.Store
	sources []ics.Source
	opts    ics.ParseOptions
}

func newImporter(conf *config.Config, st *store.Store, loc *time.Location) *importer {
	sources := make([]ics.Source, 0, len(conf.ICS))
	for _, c := range conf.ICS {
		id := c.ID
		if id == "" {
			id = c.Name
		}
		if id == "" {
			id = c.URL
		}
		sources = append(sources, ics.Source{ID: id, URL: c.URL})
	}
	return &importer{
		fetcher: ics.NewFetcher(filepath.Join(filepath.Dir(conf.Database), "ics-cache")),
		store:   st,
		sources: sources,
		opts:    ics.ParseOptions{Location: loc},
	}
}

func (i *importer) run(ctx context.Context) {
	if len(i.sources) == 0 {
		return
	}
	if err := ics.Sync(ctx, i.fetcher, i.store, i.sources, i.opts); err != nil {
		appLog.Error("ics import finished with errors", err)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/bookcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Import feeds once and exit")
	flag.StringVar(&cfg.exportPath, "export", "", "Write all events as an ICS file to this path and exit")
	flag.BoolVar(&cfg.snapshot, "snapshot", false, "Capture /calendar as a PNG (see snapshot in config) and exit")

	flag.Parse()

	return cfg
}
