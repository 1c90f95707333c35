package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	persistlog "charttopper.fm/internal/persistence/log"
	"charttopper.fm/internal/persistence/snapshot"
	"charttopper.fm/internal/protocol"
	"charttopper.fm/internal/sim/catalogs"
	"charttopper.fm/internal/sim/engine"
	"charttopper.fm/internal/sim/model"
	"charttopper.fm/internal/sim/tuning"
	"charttopper.fm/internal/transport/feed"
	"charttopper.fm/internal/transport/mcp"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		gameID     = flag.String("game", "game_1", "game id")
		seed       = flag.Int64("seed", 1337, "game seed (used only when starting a fresh game)")
		player     = flag.String("player", "New Artist", "player artist name (fresh games only)")
		difficulty = flag.String("difficulty", "", "difficulty key (fresh games only; default from tuning)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite chart archive")

		weekInterval = flag.Duration("week_interval", 10*time.Second, "wall time per simulated week")
		saveEvery    = flag.Int("save_every", 13, "write a save every N weeks (0 disables)")
		autoplay     = flag.Bool("autoplay", true, "let the scripted manager make release decisions")
		fast         = flag.Bool("fast", false, "skip feed posts and summaries")

		snapPath   = flag.String("snapshot", "", "path to save to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest save from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	gameDir := filepath.Join(*dataDir, "games", *gameID)
	saveDir := filepath.Join(gameDir, "saves")
	_ = os.MkdirAll(gameDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad, err = snapshot.Latest(saveDir)
		if err != nil {
			logger.Fatalf("find latest save: %v", err)
		}
	}

	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	sim, err := engine.New(engine.Config{
		Tuning:   tune,
		Catalogs: cats,
		Logger:   log.New(os.Stdout, "[sim] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		logger.Fatalf("simulator: %v", err)
	}

	var st model.State
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read save: %v", err)
		}
		if snap.Header.CatalogsDigest != "" && snap.Header.CatalogsDigest != cats.Digest() {
			logger.Printf("warning: catalogs changed since save (save=%s now=%s); weeks will not replay", snap.Header.CatalogsDigest, cats.Digest())
		}
		st = snap.State
		logger.Printf("resumed from save=%s week=%d", filepath.Base(snapshotToLoad), st.Week)
	} else {
		st = engine.NewGame(tune, engine.GameConfig{Seed: *seed, PlayerName: *player, Difficulty: *difficulty})
		logger.Printf("new game seed=%d player=%q difficulty=%s", st.Seed, st.Player.Name, st.Player.Difficulty)
	}

	weekLog := persistlog.NewWeekLogger(gameDir)
	defer weekLog.Close()
	sim.SetWeekLogger(weekLog)
	noteLog := persistlog.NewNotificationLogger(gameDir)
	defer noteLog.Close()

	idx, err := openRuntimeIndex(gameDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}

	mirror, err := buildMirror(*dataDir, logger)
	if err != nil {
		logger.Fatalf("init mirror: %v", err)
	}
	defer mirror.Close()

	feedSrv := feed.NewServer(protocol.CatalogDigests{CatalogsDigest: cats.Digest(), TuningVersion: tune.Version}, logger)
	feedSrv.SetGame(st)

	loop := newGameLoop(sim, st, logger)
	loop.gameDir = gameDir
	loop.saveDir = saveDir
	loop.every = *saveEvery
	loop.fastRuns = *fast
	loop.feed = feedSrv
	loop.notes = noteLog
	if mirror != nil {
		loop.mirror = mirror
	}
	if *autoplay {
		ap := engine.DefaultAutoplay(cats)
		loop.auto = &ap
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
		loop.index = idx
	}
	if snapshotToLoad == "" {
		// Week 0 save so replays can start from the beginning.
		if _, err := loop.save(); err != nil {
			logger.Fatalf("initial save: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(ctx, *weekInterval)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(rw, "charttopper_feed_subscribers{game=%q} %d\n", *gameID, feedSrv.Subscribers())
		fmt.Fprintf(rw, "charttopper_feed_dropped_total{game=%q} %d\n", *gameID, feedSrv.Dropped())
		if idx != nil {
			s := idx.Stats()
			fmt.Fprintf(rw, "charttopper_index_queue_depth{game=%q} %d\n", *gameID, s.QueueDepth)
			fmt.Fprintf(rw, "charttopper_index_dropped_total{game=%q,kind=\"week\"} %d\n", *gameID, s.DropWeekTotal)
			fmt.Fprintf(rw, "charttopper_index_dropped_total{game=%q,kind=\"save\"} %d\n", *gameID, s.DropSaveTotal)
		}
		writeMirrorMetrics(rw, mirror)
	})

	if envBool("CT_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		mux.HandleFunc("/admin/v1/state", loopbackOnly(loop.stateHandler()))
		mux.HandleFunc("/admin/v1/snapshot", loopbackOnly(loop.saveHandler()))
		mux.HandleFunc("/admin/v1/step", loopbackOnly(loop.stepHandler()))
	} else {
		logger.Printf("admin endpoints disabled (CT_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("CT_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/feed", feedSrv.Handler())

	playSrv, err := mcp.NewServer(mcp.Config{Studio: studio{g: loop}, HMACSecret: os.Getenv("CT_MCP_HMAC_SECRET")})
	if err != nil {
		logger.Fatalf("mcp: %v", err)
	}
	if strings.TrimSpace(os.Getenv("CT_MCP_HMAC_SECRET")) != "" {
		mux.HandleFunc("/mcp", playSrv.Handler())
	} else {
		// Unsigned play is for local use only.
		mux.HandleFunc("/mcp", loopbackOnly(playSrv.Handler()))
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-loopDone
	if _, err := loop.save(); err != nil {
		logger.Printf("final save: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
