package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/logging"
	"github.com/deemkeen/microblog/activitypub"
	"github.com/deemkeen/microblog/log"
	"github.com/deemkeen/microblog/middleware"
	"github.com/deemkeen/microblog/telemetry"
	"github.com/deemkeen/microblog/util"
	"github.com/deemkeen/microblog/web"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web server, the ssh server and the delivery worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConf()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), conf)
	},
}

func serve(parent context.Context, conf *util.AppConfig) error {
	logger := log.New(util.Name)
	logger.Info("starting", "version", util.GetVersion(), "origin", conf.Origin())

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, util.Name, util.GetVersion(), conf.Conf.OtelEndpoint)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "err", err)
		}
	}()

	database, err := openDB(conf)
	if err != nil {
		return err
	}
	defer database.Close()

	keys := activitypub.NewKeyManager(database)
	var opts []activitypub.TransportOption
	if conf.Conf.Scheme == "http" {
		opts = append(opts, activitypub.WithPlainHTTP())
	}
	transport, err := activitypub.NewHTTPTransport(database, keys, log.SubLogger(logger, "transport"), opts...)
	if err != nil {
		return err
	}
	defer transport.Close()

	fed, err := activitypub.New(conf.Origin(), database, keys, transport, log.SubLogger(logger, "federation"))
	if err != nil {
		return err
	}

	sshServer, err := newSSHServer(conf, fed, log.SubLogger(logger, "ssh"))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return web.Router(ctx, web.NewServer(conf, fed, transport, log.SubLogger(logger, "web")))
	})
	g.Go(func() error {
		logger.Info("starting ssh server", "addr", sshServer.Addr)
		if err := sshServer.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return sshServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		transport.RunDeliveryWorker(ctx, conf.Conf.DeliveryInterval)
		return nil
	})

	err = g.Wait()
	logger.Info("stopped")
	return err
}

func newSSHServer(conf *util.AppConfig, fed *activitypub.Federation, logger *slog.Logger) (*ssh.Server, error) {
	hostKeyPath := util.ResolveFilePath(conf.Conf.HostKeyPath)
	if err := os.MkdirAll(filepath.Dir(hostKeyPath), 0700); err != nil {
		return nil, fmt.Errorf("creating host key directory: %w", err)
	}

	return wish.NewServer(
		wish.WithAddress(conf.SshAddr()),
		wish.WithHostKeyPath(hostKeyPath),
		wish.WithAuthorizedKeys(util.ResolveFilePath(conf.Conf.AuthorizedKeys)),
		wish.WithMiddleware(
			middleware.MainTui(fed, logger),
			middleware.AuthMiddleware(logger),
			logging.MiddlewareWithLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug)), // last middleware executed first
		),
	)
}
