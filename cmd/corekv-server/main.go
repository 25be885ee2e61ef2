// Command corekv-server is the single binary described by spec.md's
// CLI surface: `corekv-server [config-path] [-v|--version]`. Grounded
// on the teacher's cmd/cc-backend/main.go: LoadEnv before config load,
// an optional gops agent behind a boolean, and a WaitGroup plus
// signal.Notify(SIGINT, SIGTERM) graceful-shutdown sequence around the
// listener's Shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/corekv/corekv/internal/adminhttp"
	"github.com/corekv/corekv/internal/aof"
	"github.com/corekv/corekv/internal/config"
	"github.com/corekv/corekv/internal/corelog"
	"github.com/corekv/corekv/internal/dispatch"
	"github.com/corekv/corekv/internal/maintenance"
	"github.com/corekv/corekv/internal/notify"
	"github.com/corekv/corekv/internal/observability"
	"github.com/corekv/corekv/internal/pubsub"
	"github.com/corekv/corekv/internal/server"
	"github.com/corekv/corekv/internal/snapshot"
	"github.com/corekv/corekv/internal/store"
)

const version = "corekv-0.1"

func main() {
	args := os.Args[1:]
	configPath := "./corekv.json"
	for _, a := range args {
		switch a {
		case "-v", "--version":
			fmt.Println(version)
			return
		default:
			configPath = a
		}
	}

	if err := config.LoadEnv("./.env"); err != nil {
		corelog.Fatalf("parsing './.env' file failed: %v", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		corelog.Fatalf("loading config %q failed: %v", configPath, err)
	}

	if cfg.Gops {
		if err := agent.Listen(agent.Options{}); err != nil {
			corelog.Fatalf("gops/agent.Listen failed: %v", err)
		}
	}

	runID := uuid.New().String()
	startedAt := time.Now()
	maintenance.ServerVersion = version

	dispatchSrv := dispatch.NewServer(cfg.Databases)

	dispatchSrv.Notifier.SetFlags(notify.ParseFlags(cfg.NotifyKeyspaceEvents))

	if cfg.RequirePass != "" {
		if u, ok := dispatchSrv.ACL.GetUser("default"); ok {
			u.ParseRules([]string{">" + cfg.RequirePass})
			dispatchSrv.ACL.SetUser(u)
		}
	}
	if cfg.ACLFile != "" {
		if err := dispatchSrv.ACL.LoadFromFile(cfg.ACLFile); err != nil {
			corelog.Fatalf("loading ACL file %q failed: %v", cfg.ACLFile, err)
		}
	}

	dispatchSrv.ScriptTimeout = time.Duration(cfg.ScriptingTimeoutMs) * time.Millisecond

	var natsMirror *pubsub.NatsMirror
	if cfg.NotifyNatsURL != "" {
		natsMirror, err = pubsub.DialNatsMirror(cfg.NotifyNatsURL, "corekv")
		if err != nil {
			corelog.Warnf("notify-nats-url configured but connect failed: %v", err)
		} else {
			dispatchSrv.PubSub.Mirror = natsMirror.Publish
		}
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	saveRules, err := config.ParseSaveRules(cfg.Save)
	if err != nil {
		corelog.Fatalf("parsing save directive %q failed: %v", cfg.Save, err)
	}
	mgrSaveRules := make([]maintenance.SaveRule, len(saveRules))
	for i, r := range saveRules {
		mgrSaveRules[i] = maintenance.SaveRule{Seconds: r.Seconds, Changes: r.Changes}
	}

	mgr, err := maintenance.NewManager(maintenance.Config{
		MaxMemoryBytes:   cfg.MaxMemory,
		MaxMemoryPolicy:  maintenance.ParsePolicy(cfg.MaxMemoryPolicy),
		MaxMemorySamples: cfg.MaxMemorySamples,
		SaveRules:        mgrSaveRules,
		SnapshotPath:     cfg.DBFilename,
		Databases:        dispatchSrv.Databases,
		Notifier:         dispatchSrv.Notifier,
		Metrics:          metrics,
	})
	if err != nil {
		corelog.Fatalf("starting maintenance manager failed: %v", err)
	}

	restoreFromDisk(dispatchSrv, cfg)

	var appendLog *aof.Log
	if cfg.AppendOnly {
		policy, err := aof.ParseFsyncPolicy(cfg.AppendFsync)
		if err != nil {
			corelog.Fatalf("parsing appendfsync policy failed: %v", err)
		}
		appendLog, err = aof.Open(cfg.AppendFilename, policy)
		if err != nil {
			corelog.Fatalf("opening append log %q failed: %v", cfg.AppendFilename, err)
		}
	}

	mgr.Start()

	monitor := observability.NewMonitor()
	slowlog := observability.NewSlowlog(cfg.SlowlogLogSlowerThan, cfg.SlowlogMaxLen)

	addr := fmt.Sprintf("%s:%d", cfg.Bind, cfg.Port)
	srv := server.New(addr, dispatchSrv, monitor, slowlog)
	srv.AOF = appendLog
	srv.Maintenance = mgr
	srv.Metrics = metrics

	var adminSrv *adminhttp.Server
	if cfg.HTTPAddr != "" {
		adminSrv = adminhttp.New(adminhttp.Config{
			Addr:     cfg.HTTPAddr,
			Registry: reg,
			InfoProvider: func() observability.InfoInput {
				return buildInfoInput(cfg, srv, mgr, runID, startedAt)
			},
			MetricsSnapshot: metrics.Snapshot,
			Healthy:         func() bool { return true },
		})
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(); err != nil {
			corelog.Fatalf("RESP server failed: %v", err)
		}
	}()

	if adminSrv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := adminSrv.ListenAndServe(); err != nil {
				corelog.Errorf("admin HTTP server failed: %v", err)
			}
		}()
	}

	wg.Add(1)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer wg.Done()
		<-sigs
		corelog.Infof("corekv-server: shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			corelog.Errorf("error while shutting down RESP server: %v", err)
		}
		if adminSrv != nil {
			if err := adminSrv.Shutdown(ctx); err != nil {
				corelog.Errorf("error while shutting down admin HTTP server: %v", err)
			}
		}
		if err := mgr.Shutdown(); err != nil {
			corelog.Errorf("error while shutting down maintenance manager: %v", err)
		}
		if appendLog != nil {
			if err := appendLog.Close(); err != nil {
				corelog.Errorf("error while closing append log: %v", err)
			}
		}
		if natsMirror != nil {
			natsMirror.Close()
		}
	}()

	corelog.Infof("corekv-server: ready on %s (run_id=%s)", addr, runID)
	wg.Wait()
	corelog.Infof("corekv-server: graceful shutdown complete")
}

// restoreFromDisk replays the append log if append-only persistence is
// enabled, otherwise restores the last snapshot if one exists on disk
// (spec.md §4.6/§5's mutually exclusive persistence-on-boot paths).
func restoreFromDisk(srv *dispatch.Server, cfg config.Config) {
	if cfg.AppendOnly {
		replayConn := srv.NewConn(0)
		replayConn.Authenticated = true
		n := 0
		err := aof.Replay(cfg.AppendFilename, func(argv [][]byte) error {
			dispatch.Dispatch(srv, replayConn, argv, true)
			n++
			return nil
		})
		if err != nil {
			corelog.Fatalf("replaying append log %q failed: %v", cfg.AppendFilename, err)
		}
		corelog.Infof("corekv-server: replayed %d commands from %s", n, cfg.AppendFilename)
		return
	}

	f, err := os.Open(cfg.DBFilename)
	if err != nil {
		if !os.IsNotExist(err) {
			corelog.Errorf("opening snapshot %q failed: %v", cfg.DBFilename, err)
		}
		return
	}
	defer f.Close()

	n := 0
	dec := snapshot.NewDecoder(f)
	err = dec.Load(func(rec snapshot.KeyRecord) error {
		if rec.DBIndex < 0 || rec.DBIndex >= len(srv.Databases) {
			return nil
		}
		e := store.NewEntry(rec.Value)
		e.SetExpireAt(rec.ExpiresAt)
		srv.Databases[rec.DBIndex].Insert(rec.Key, e)
		n++
		return nil
	})
	if err != nil {
		corelog.Fatalf("restoring snapshot %q failed: %v", cfg.DBFilename, err)
	}
	corelog.Infof("corekv-server: restored %d keys from %s", n, cfg.DBFilename)
}

func buildInfoInput(cfg config.Config, srv *server.Server, mgr *maintenance.Manager, runID string, startedAt time.Time) observability.InfoInput {
	clients := srv.Clients()
	dbStats := make([]observability.DBStat, len(srv.Dispatch.Databases))
	for i, ks := range srv.Dispatch.Databases {
		dbStats[i] = observability.DBStat{Index: i, Keys: ks.Len()}
	}
	return observability.InfoInput{
		Version:          version,
		RunID:            runID,
		StartedAt:        startedAt,
		Port:             cfg.Port,
		ConnectedClients: len(clients),
		MaxClients:       cfg.MaxClients,
		MaxMemoryBytes:   cfg.MaxMemory,
		Dirty:            mgr.Dirty(),
		LastSaveUnix:     mgr.LastSaveUnix(),
		LastSaveOK:       true,
		Databases:        dbStats,
	}
}
