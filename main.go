package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"golang.org/x/term"

	"github.com/ZawYePhyo/Handy/fieldsync"
	"github.com/ZawYePhyo/Handy/gateway"
	"github.com/ZawYePhyo/Handy/history"
	"github.com/ZawYePhyo/Handy/log"
	"github.com/ZawYePhyo/Handy/notify"
	"github.com/ZawYePhyo/Handy/settings"
	"github.com/ZawYePhyo/Handy/translate"
)

var version = "dev"

const opChangeAPIKey = "change_api_key"

// App bundles everything the TUI drives. All mutations flow through the
// gateway; the stores are only read directly.
type App struct {
	Settings *settings.Store
	History  *history.Store
	Gateway  *gateway.Gateway
	Hub      *notify.Hub
	Field    *fieldsync.Controller
	Workflow *history.Workflow

	settingsCh <-chan struct{}
	historyCh  <-chan struct{}
}

func main() {
	run()
}

func defaultDataDir() (string, error) {
	cfg, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg, "handy"), nil
}

func run() {
	settingsFlag := flag.String("settings", "", "Settings file path (default: OS config dir)")
	dbFlag := flag.String("db", "", "History database path (default: OS config dir)")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("handy %s\n", version)
		os.Exit(0)
	}

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)

	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
	}
	defer log.Close()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "Error: handy needs a terminal to run its UI")
		os.Exit(1)
	}

	dataDir, err := defaultDataDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot resolve config directory: %v\n", err)
		os.Exit(1)
	}
	settingsPath := *settingsFlag
	if settingsPath == "" {
		settingsPath = filepath.Join(dataDir, "settings.json")
	}
	dbPath := *dbFlag
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "history.db")
	}

	store, err := settings.Load(settingsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	hist, err := history.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer hist.Close()

	cur := store.Current()
	if err := hist.Cleanup(context.Background(), cur.HistoryLimit, cur.RecordingRetentionPeriod); err != nil {
		log.Warnf("startup history cleanup failed: %v", err)
	}

	hub := notify.NewHub()
	translator := translate.NewGemini(
		func() string { return store.APIKey(settings.APIKeyGemini) },
		func() string { return store.Current().TranslationLanguage },
	)

	gw := gateway.New()
	registerOperations(gw, store, hist, translator)

	watcher, err := settings.Watch(store, hub)
	if err != nil {
		log.Warnf("settings file watching disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	app := &App{
		Settings: store,
		History:  hist,
		Gateway:  gw,
		Hub:      hub,
	}
	settingsCh, cancelS := hub.Subscribe(notify.TopicSettings)
	historyCh, cancelH := hub.Subscribe(notify.TopicHistory)
	defer cancelS()
	defer cancelH()
	app.settingsCh = settingsCh
	app.historyCh = historyCh

	app.Field = fieldsync.New(settings.APIKeyGemini, store.APIKey(settings.APIKeyGemini), fieldsync.Deps{
		Gateway: gw,
		Store:   store,
		Op:      opChangeAPIKey,
		Post:    postToUI,
	})
	app.Workflow = history.NewWorkflow(history.Deps{
		Gateway: gw,
		Hub:     hub,
		Post:    postToUI,
	})

	p := NewTUIProgram(app)
	tuiMu.Lock()
	tuiProgram = p
	tuiMu.Unlock()

	log.Infof("handy %s started, settings=%s db=%s", version, settingsPath, dbPath)

	_, runErr := p.Run()

	tuiMu.Lock()
	tuiProgram = nil
	tuiMu.Unlock()

	// no implicit save at teardown: a dirty draft is discarded and logged
	app.Field.Dispose()
	app.Workflow.Dispose()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}

// registerOperations binds the remote command surface. Handlers run on
// gateway goroutines and must only touch the thread-safe stores.
func registerOperations(gw *gateway.Gateway, store *settings.Store, hist *history.Store, translator translate.Translator) {
	gw.Register(opChangeAPIKey, func(_ context.Context, args map[string]any) (any, error) {
		return nil, store.SetAPIKey(gateway.String(args, "key"), gateway.String(args, "value"))
	})

	gw.Register("get_history_entries", func(ctx context.Context, args map[string]any) (any, error) {
		limit := int(gateway.Int64(args, "limit"))
		if limit == 0 {
			limit = store.Current().HistoryLimit
		}
		return hist.Entries(ctx, limit)
	})

	gw.Register(history.OpUpdateText, func(ctx context.Context, args map[string]any) (any, error) {
		return nil, hist.UpdateText(ctx, gateway.Int64(args, "id"), gateway.String(args, "new_text"))
	})

	gw.Register(history.OpToggleSaved, func(ctx context.Context, args map[string]any) (any, error) {
		return nil, hist.ToggleSaved(ctx, gateway.Int64(args, "id"))
	})

	gw.Register(history.OpDelete, func(ctx context.Context, args map[string]any) (any, error) {
		return nil, hist.Delete(ctx, gateway.Int64(args, "id"))
	})

	gw.Register(history.OpTranslate, func(ctx context.Context, args map[string]any) (any, error) {
		return translator.Translate(ctx, gateway.String(args, "text"))
	})

	gw.Register("change_translation_language", func(_ context.Context, args map[string]any) (any, error) {
		return nil, store.SetTranslationLanguage(gateway.String(args, "language"))
	})

	gw.Register("update_history_limit", func(ctx context.Context, args map[string]any) (any, error) {
		limit := int(gateway.Int64(args, "limit"))
		if err := store.SetHistoryLimit(limit); err != nil {
			return nil, err
		}
		return nil, hist.Cleanup(ctx, limit, store.Current().RecordingRetentionPeriod)
	})

	gw.Register("update_recording_retention_period", func(ctx context.Context, args map[string]any) (any, error) {
		period, err := settings.ParseRetention(gateway.String(args, "period"))
		if err != nil {
			return nil, err
		}
		if err := store.SetRetention(period); err != nil {
			return nil, err
		}
		return nil, hist.Cleanup(ctx, store.Current().HistoryLimit, period)
	})
}
