package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/collegium/apps/api/echo"
	"github.com/trezcool/collegium/apps/shared"
	"github.com/trezcool/collegium/core"
	"github.com/trezcool/collegium/core/event"
	"github.com/trezcool/collegium/core/forum"
	"github.com/trezcool/collegium/core/localstore"
	"github.com/trezcool/collegium/core/message"
	"github.com/trezcool/collegium/core/query"
	"github.com/trezcool/collegium/core/resource"
	"github.com/trezcool/collegium/services/logger"
	"github.com/trezcool/collegium/services/metrics"
	"github.com/trezcool/collegium/services/supabase"
	"github.com/trezcool/collegium/storage/localquery"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// =========================================================================
	// Set up Dependencies

	conf, err := core.NewConfig()
	if err != nil {
		return err
	}

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	defer logger.Close()

	storeLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "STORE : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// set up storage
	kv, err := shared.OpenSubstrate(ctx, conf, storeLogger, true /* migrate */)
	if err != nil {
		logger.Error("Failed to open storage", err)
		return err
	}
	defer func() {
		if err := kv.Close(); err != nil {
			storeLogger.Error("Failed to close", err)
		}
	}()

	metrics := metricsvc.New()
	store := localstore.New(kv,
		localstore.WithKeyPrefix(conf.Storage.KeyPrefix),
		localstore.WithLogger(storeLogger),
		localstore.WithObserver(metrics),
	)

	validate, translator := shared.NewValidator()

	// set up services
	remote := supabase.NewClientFromConfig(conf.Remote, supabase.WithLogger(logger), supabase.WithSessionStore(kv))
	var remoteSrc query.Source // nil unless configured
	if conf.Remote.URL != "" && conf.Remote.AnonKey != "" {
		remoteSrc = remote
	} else {
		logger.Warn("Remote backend not configured: remote queries are disabled")
	}

	// =========================================================================
	// Start API Service

	logger.Info(fmt.Sprintf("Application initializing : version %q (%s storage)", conf.Build, conf.Storage.Driver))
	defer logger.Info("Application stopped")

	server := echoapi.NewServer(
		&echoapi.Options{
			Address:        conf.Server.Address,
			Debug:          conf.Debug,
			TestMode:       conf.TestMode,
			DisableReqLogs: conf.Server.DisableReqLogs,
			JWTSecret:      conf.Server.JWTSecret,
			Logger:         logger,
			Validate:       validate,
			Translator:     translator,
			Store:          store,
			MessageSvc:     message.NewService(store, validate),
			EventSvc:       event.NewService(store, validate),
			ResourceSvc:    resource.NewService(store, validate),
			ForumSvc:       forum.NewService(store, validate),
			RemoteSource:   remoteSrc,
			LocalSource:    localquery.New(store),
			QueryObs:       metrics,
			Metrics:        metrics.Handler(),
		},
		stop,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	if remoteSrc != nil {
		g.Go(func() error { return remote.Auth().AutoRefresh(gctx) })
	}

	// =========================================================================
	// Shutdown

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Start shutdown...")

		// give outstanding requests a deadline for completion
		sctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Stop(sctx); err != nil {
			return errors.Wrap(err, "could not stop server gracefully")
		}
		return nil
	})

	if err = g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("server error: %v", err), err)
		return err
	}
	return nil
}
