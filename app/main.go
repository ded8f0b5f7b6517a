package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/joho/godotenv"
	"github.com/oklog/run"
	"github.com/redis/go-redis/v9"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/umputun/jobtrack/app/store"
	"github.com/umputun/jobtrack/app/tracker"
	"github.com/umputun/jobtrack/app/web"
)

var opts struct {
	Listen         string        `short:"l" long:"listen" env:"JOBTRACK_LISTEN" default:":8080" description:"web server listen address"`
	BaseURL        string        `long:"base-url" env:"JOBTRACK_BASE_URL" description:"base URL path for reverse proxy (e.g., /jobtrack)"`
	UpdateInterval time.Duration `long:"update-interval" env:"JOBTRACK_UPDATE_INTERVAL" default:"10s" description:"browser poll interval, 0 to disable"`
	Catalog        string        `short:"c" long:"catalog" env:"JOBTRACK_CATALOG" description:"yaml file with available processes"`
	Hostname       string        `long:"hostname" env:"JOBTRACK_HOSTNAME" description:"host name to display in UI"`
	MutationRate   float64       `long:"mutation-rate" env:"JOBTRACK_MUTATION_RATE" default:"10" description:"max changes per second per client"`
	Schema         bool          `long:"schema" description:"print project document JSON schema and exit"`
	CatalogSchema  bool          `long:"catalog-schema" description:"print processes catalog JSON schema and exit"`

	Store struct {
		Type            string `long:"type" env:"TYPE" choice:"sqlite" choice:"postgres" default:"sqlite" description:"store type"`
		SQLite          string `long:"sqlite" env:"SQLITE" default:"jobtrack.db" description:"sqlite database file"`
		Postgres        string `long:"postgres" env:"POSTGRES" description:"postgres connection string"`
		Atomic          bool   `long:"atomic" env:"ATOMIC" description:"replace all projects in one transaction on save"`
		ConnectAttempts int    `long:"connect-attempts" env:"CONNECT_ATTEMPTS" default:"5" description:"how many times to try opening the store"`
	} `group:"store" namespace:"store" env-namespace:"JOBTRACK_STORE"`

	Redis struct {
		Addr     string `long:"addr" env:"ADDR" description:"redis address, enables change fan-out between instances"`
		Password string `long:"password" env:"PASSWORD" description:"redis password"`
		DB       int    `long:"db" env:"DB" default:"0" description:"redis database"`
		Channel  string `long:"channel" env:"CHANNEL" default:"jobtrack:projects" description:"redis pub/sub channel"`
	} `group:"redis" namespace:"redis" env-namespace:"JOBTRACK_REDIS"`

	Sync struct {
		Schedule string `long:"schedule" env:"SCHEDULE" default:"@every 5m" description:"backstop reload schedule, empty to disable"`
	} `group:"sync" namespace:"sync" env-namespace:"JOBTRACK_SYNC"`

	Log struct {
		Enabled         bool   `long:"enabled" env:"ENABLED" description:"log to file"`
		Debug           bool   `long:"debug" env:"DEBUG" description:"debug mode"`
		Filename        string `long:"filename" env:"FILENAME" default:"jobtrack.log" description:"log file name"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"max log file size in megabytes"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"0" description:"max days to keep old log files"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"max number of old log files"`
		EnabledCompress bool   `long:"compress" env:"COMPRESS" description:"compress rotated log files"`
	} `group:"log" namespace:"log" env-namespace:"JOBTRACK_LOG"`
}

var revision = "unknown"

func main() {
	fmt.Printf("jobtrack %s\n", revision)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(2)
	}

	if opts.Schema || opts.CatalogSchema {
		if err := printSchema(os.Stdout, opts.CatalogSchema); err != nil {
			fmt.Fprintf(os.Stderr, "failed to print schema: %v\n", err)
			os.Exit(1)
		}
		return
	}

	setupLogs()

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	signals() // dump stack traces on SIGQUIT
	if err := runApp(context.Background()); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

// runApp opens the store, loads projects and runs web server and change watcher until a signal
func runApp(ctx context.Context) error {
	processes, err := tracker.LoadCatalog(opts.Catalog)
	if err != nil {
		return fmt.Errorf("failed to load processes catalog: %w", err)
	}
	state := tracker.NewState(processes)

	st, err := makeStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("[WARN] failed to close store, %v", err)
		}
	}()

	syncr, err := tracker.NewSynchronizer(st, state, tracker.SyncOpts{
		Atomic:   opts.Store.Atomic,
		Schedule: opts.Sync.Schedule,
		OnLoad: func(rev uint64) {
			s := state.Stats()
			log.Printf("[DEBUG] loaded revision %d, %d projects, %d jobs", rev, s.TotalProjects, s.TotalJobs)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to make synchronizer: %w", err)
	}
	syncr.Load(ctx)

	srv, err := web.New(web.Config{
		State:          state,
		Sync:           syncr,
		UpdateInterval: opts.UpdateInterval,
		BaseURL:        validateBaseURL(opts.BaseURL),
		Hostname:       makeHostName(),
		Version:        revision,
		MutationRate:   opts.MutationRate,
	})
	if err != nil {
		return fmt.Errorf("failed to make web server: %w", err)
	}

	var g run.Group
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	// web server
	{
		srvCtx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return srv.Run(srvCtx, opts.Listen)
		}, func(error) {
			cancel()
		})
	}

	// store change watcher
	{
		watchCtx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			if err := syncr.Watch(watchCtx); err != nil {
				return fmt.Errorf("watcher failed: %w", err)
			}
			return nil
		}, func(error) {
			cancel()
		})
	}

	err = g.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		log.Printf("[INFO] terminated by %v", sigErr.Signal)
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// makeStore opens the configured backend, retrying with backoff, and wraps it
// with redis fan-out if redis address is set
func makeStore(ctx context.Context) (store.Backend, error) {
	var backend store.Backend
	rptr := repeater.New(&strategy.Backoff{Repeats: max(opts.Store.ConnectAttempts, 1), Duration: time.Second,
		Factor: 2, Jitter: true})

	err := rptr.Do(ctx, func() error {
		switch opts.Store.Type {
		case "postgres":
			pg, err := store.NewPostgres(ctx, opts.Store.Postgres)
			if err != nil {
				log.Printf("[WARN] can't open postgres store, %v", err)
				return err
			}
			backend = pg
		default:
			sq, err := store.NewSQLite(opts.Store.SQLite)
			if err != nil {
				log.Printf("[WARN] can't open sqlite store %s, %v", opts.Store.SQLite, err)
				return err
			}
			backend = sq
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", opts.Store.Type, err)
	}
	log.Printf("[INFO] %s store opened", opts.Store.Type)

	if opts.Redis.Addr == "" {
		return backend, nil
	}

	client := redis.NewClient(&redis.Options{Addr: opts.Redis.Addr, Password: opts.Redis.Password, DB: opts.Redis.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		_ = backend.Close()
		return nil, fmt.Errorf("failed to connect to redis %s: %w", opts.Redis.Addr, err)
	}
	log.Printf("[INFO] change fan-out via redis %s, channel %s", opts.Redis.Addr, opts.Redis.Channel)
	return store.NewFanout(backend, client, opts.Redis.Channel), nil
}

// printSchema writes project document schema, or catalog schema if catalog is set
func printSchema(w io.Writer, catalog bool) error {
	schema := tracker.DocumentSchema()
	if catalog {
		schema = tracker.CatalogSchema()
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func makeHostName() string {
	if opts.Hostname != "" {
		return opts.Hostname
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

// validateBaseURL normalizes base URL: no trailing slash, leading slash added, root becomes empty
func validateBaseURL(u string) string {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	if u != "" && !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return u
}

// setupLogs configures lgr, returns the writer logs go to
func setupLogs() io.Writer {
	var out io.Writer = os.Stdout
	if opts.Log.Enabled {
		out = &lumberjack.Logger{
			Filename:   opts.Log.Filename,
			MaxSize:    opts.Log.MaxSize,
			MaxAge:     opts.Log.MaxAge,
			MaxBackups: opts.Log.MaxBackups,
			Compress:   opts.Log.EnabledCompress,
		}
	}

	if opts.Log.Debug {
		log.Setup(log.Out(out), log.Debug, log.Msec, log.CallerFunc, log.CallerPkg, log.CallerFile)
		return out
	}
	log.Setup(log.Out(out), log.Msec)
	return out
}

func signals() {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for range sigChan { // catch SIGQUIT and print stack traces
			length := runtime.Stack(stacktrace, true)
			fmt.Println(string(stacktrace[:length]))
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT)
}
