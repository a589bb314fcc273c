package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/labelport/annotation_tool/internal/metrics"
	"github.com/labelport/annotation_tool/pkg/annotation"
	"github.com/labelport/annotation_tool/pkg/config"
	"github.com/labelport/annotation_tool/pkg/encryption"
	faults "github.com/labelport/annotation_tool/pkg/errors"
	"github.com/labelport/annotation_tool/pkg/fault"
	"github.com/labelport/annotation_tool/pkg/keycache"
	"github.com/labelport/annotation_tool/pkg/logger"
	"github.com/labelport/annotation_tool/pkg/notify"
	"github.com/labelport/annotation_tool/pkg/portal"
)

// app holds the services shared by every command. Each is created once and
// passed by reference.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	metrics   *metrics.Metrics
	store     *faults.ErrorStore
	scheduler *cron.Cron
	pipeline  *fault.Pipeline
	portal    *portal.Client
	keys      *keycache.Manager
	encryptor *encryption.Encryptor
	journal   *annotation.Journal

	closeOnce sync.Once
}

func newApp(cfg *config.Config, needPortal bool) (*app, error) {
	a := &app{
		cfg:     cfg,
		metrics: metrics.New(),
		journal: annotation.NewJournal(cfg.SubmissionsPath()),
	}

	if err := logger.Initialize(cfg.ToLoggerConfig()); err != nil {
		return nil, err
	}
	a.log = logger.Global()

	var store fault.Store
	if cfg.Errors.StoreEnabled {
		s, err := faults.NewErrorStore(cfg.ToStoreConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to open error store: %w", err)
		}
		a.store = s
		store = s
	}

	var presenter notify.Presenter
	switch cfg.Notifications.Mode {
	case "headless":
		presenter = notify.Headless{Out: os.Stderr}
	default:
		presenter = notify.NewConsole()
	}

	a.pipeline = fault.New(fault.Config{
		Logger:    a.log,
		Presenter: presenter,
		Store:     store,
		Metrics:   a.metrics,
		Exit: func(code int) {
			a.Close()
			os.Exit(code)
		},
	})

	if a.store != nil {
		a.startCleanup()
	}

	if !needPortal {
		return a, nil
	}

	if err := cfg.RequirePortal(); err != nil {
		a.Close()
		return nil, err
	}

	portalCfg := cfg.ToPortalConfig()
	portalCfg.Observe = a.metrics.RecordPortalRequest
	client, err := portal.NewClient(portalCfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.portal = client

	a.keys, err = keycache.New(keycache.Config{
		Path:    cfg.PublicKeyPath(),
		Fetcher: client,
		Logger:  a.log,
		OnResolve: func(origin keycache.Origin) {
			a.metrics.RecordKeyResolution(string(origin))
		},
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.encryptor = encryption.New(a.keys)

	return a, nil
}

// startCleanup purges old resolved faults now and on the configured schedule
func (a *app) startCleanup() {
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := a.store.Cleanup(ctx); err != nil {
			log.Printf("Warning: error store cleanup failed: %v", err)
		}
	}
	cleanup()

	schedule := a.cfg.Errors.CleanupSchedule
	if schedule == "" {
		return
	}
	a.scheduler = cron.New()
	job := func() {
		defer a.pipeline.Recover(context.Background())
		cleanup()
	}
	if _, err := a.scheduler.AddFunc(schedule, job); err != nil {
		log.Printf("Warning: invalid errors.cleanup_schedule %q: %v", schedule, err)
		a.scheduler = nil
		return
	}
	a.scheduler.Start()
}

// Close stops background work, exports metrics and releases files
func (a *app) Close() {
	a.closeOnce.Do(func() {
		if a.scheduler != nil {
			<-a.scheduler.Stop().Done()
		}
		if snap := a.metrics.GetSnapshot(); snap["faults"] > 0 {
			log.Printf("Handled %d fault(s), %d fatal; see %s", snap["faults"], snap["fatal"], a.cfg.LogFilePath())
		}
		if path := a.cfg.Metrics.Textfile; path != "" {
			if err := a.metrics.WriteTextfile(path); err != nil {
				log.Printf("Warning: failed to write metrics textfile: %v", err)
			}
		}
		if a.store != nil {
			a.store.Close()
		}
		logger.Shutdown()
	})
}
