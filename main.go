package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/atotto/clipboard"

	"meetscribe/bus"
	"meetscribe/capture"
	"meetscribe/config"
	"meetscribe/host"
	"meetscribe/kv"
	"meetscribe/log"
	"meetscribe/overlay"
	"meetscribe/recognition"
	"meetscribe/session"
	"meetscribe/shutdown"
	"meetscribe/store"
)

var version = "dev"

// busNotifier turns store mutations into reload signals on every channel.
type busNotifier struct {
	fan bus.Fanout
}

func (n busNotifier) StoreChanged() {
	n.fan.Publish(bus.TopicStoreChanged)
}

// teaView forwards engine snapshots into the running TUI.
type teaView struct{}

func (teaView) Update(s session.Snapshot) {
	tuiSend(SnapshotMsg{Snapshot: s})
}

func run() int {
	viewFlag := flag.String("view", "", "print a saved transcript by id, copy it to the clipboard, and exit")
	tuiFlag := flag.Bool("tui", true, "run with terminal UI (false: headless, API only)")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	versionFlag := flag.Bool("version", false, "print version and exit")
	crashFlag := flag.Bool("crash", false, "trigger synthetic panic for testing crash logging")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("meetscribe %s\n", version)
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
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
	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	shutdown.OnExit(log.Close)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: create data dir: %v\n", err)
		return 1
	}
	area, err := openStorage(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open storage: %v\n", err)
		return 1
	}
	shutdown.OnExit(func() { area.Close() })

	if *viewFlag != "" {
		return runViewMode(area, *viewFlag)
	}

	broker := bus.NewBroker()
	hub := bus.NewHub()
	fan := bus.Fanout{broker, hub}
	shutdown.OnExit(hub.Close)

	st := store.New(area, busNotifier{fan: fan})
	recognizer := recognition.NewRemote(cfg.EngineURL, cfg.Language)
	backend, err := capture.NewBackend()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: init audio: %v\n", err)
		return 1
	}
	shutdown.OnExit(backend.Close)

	recorder := session.NewRecorder(recognizer, backend, st)
	shutdown.OnExit(func() { recorder.Stop() })

	keeper := overlay.NewKeeper(area)
	overlayVisible := true
	if state, err := keeper.Load(); err == nil && state != nil {
		overlayVisible = state.Visible
	}

	svc := &host.Service{
		Store:    st,
		Recorder: recorder,
		Bus:      fan,
		OpenView: func(id string) { tuiSend(OpenTranscriptMsg{ID: id}) },
	}
	router := host.NewRouter(svc, hub)
	server := &http.Server{Addr: cfg.ListenAddr, Handler: router}
	go func() {
		log.Infof("surface API listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("surface API: %v", err)
		}
	}()
	shutdown.OnExit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	})

	shutdown.Watch()

	if !*tuiFlag {
		select {} // headless; shutdown.Watch exits on signal
	}

	tuiMu.Lock()
	tuiProgram = NewTUIProgram(tuiDeps{recorder: recorder, store: st, overlay: overlayVisible})
	tuiMu.Unlock()

	recorder.Attach(teaView{})
	// Primary sync channel: the persistence change feed catches writes from
	// any process. The bus broadcast is the secondary, best-effort channel.
	cancelFeed := area.Subscribe(func(c kv.Change) {
		if c.Key == store.StorageKey {
			tuiSend(StoreChangedMsg{})
		}
	})
	cancelStore := broker.Subscribe(bus.TopicStoreChanged, func() { tuiSend(StoreChangedMsg{}) })
	cancelOverlay := broker.Subscribe(bus.TopicToggleOverlay, func() { tuiSend(ToggleOverlayMsg{}) })
	defer cancelFeed()
	defer cancelStore()
	defer cancelOverlay()

	model, err := tuiProgram.Run()
	if err != nil {
		log.Errorf("TUI error: %v", err)
		return 1
	}
	if m, ok := model.(tuiModel); ok {
		keeper.Save(overlay.State{Visible: m.showOverlay})
	}
	shutdown.Run()
	return 0
}

// openStorage builds the failover area: sqlite primary, file fallback.
// When sqlite cannot be opened at all the engine runs degraded on the
// file area alone.
func openStorage(cfg config.Config) (kv.Store, error) {
	fallback, err := kv.OpenFile(cfg.FallbackDir())
	if err != nil {
		return nil, err
	}
	primary, err := kv.OpenSQLite(cfg.DatabasePath())
	if err != nil {
		log.StoreFallback("open", err)
		return fallback, nil
	}
	return kv.NewFailover(primary, fallback), nil
}

func runViewMode(area kv.Store, id string) int {
	st := store.New(area, nil)
	t, err := st.Get(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("%s  (%ds)\n\n", t.Date, t.DurationSeconds)
	if t.Text == "" {
		fmt.Println("(no speech)")
		return 0
	}
	fmt.Println(t.Text)
	if err := clipboard.WriteAll(t.Text); err != nil {
		log.Warnf("clipboard copy failed: %v", err)
	} else {
		fmt.Println("\n[copied to clipboard]")
	}
	return 0
}

func main() {
	os.Exit(run())
}
