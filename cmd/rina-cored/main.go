// Command rina-cored is the daemon binary that hosts a pkg/rina.Core over a
// directory of per-namespace Unix control sockets (§12). It follows the
// teacher's cmd/ublk-mem flag-parse/log/create-and-serve/signal-wait shape,
// generalized from one device to a directory of namespace sockets and from
// flag to cobra+viper so config can come from flags or RINA_-prefixed
// environment variables; no config file is read.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dif-systems/rina-core/factory/normal"
	"github.com/dif-systems/rina-core/internal/logging"
	"github.com/dif-systems/rina-core/pkg/rina"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "rina-cored",
		Short: "RINA control-plane core daemon",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Host isolation domains over a directory of control sockets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), v)
		},
	}
	serve.Flags().String("socket-dir", "/run/rina", "directory holding one control socket per namespace")
	serve.Flags().StringSlice("namespace", []string{"default"}, "namespaces to open a control device for at startup")
	serve.Flags().Int64("flow-del-wait-ms", 0, "grace period before a deallocated flow's entry is reclaimed (0 = package default)")
	serve.Flags().String("metrics-addr", ":9090", "address to serve /metrics on, empty to disable")
	serve.Flags().Bool("verbose", false, "debug-level logging")
	serve.Flags().UintSlice("privileged-uid", []uint{uint(os.Getuid())}, "UIDs allowed to issue privileged control messages")

	if err := v.BindPFlags(serve.Flags()); err != nil {
		panic(err)
	}
	v.SetEnvPrefix("RINA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}

	root.AddCommand(serve, versionCmd)
	return root
}

func runServe(ctx context.Context, v *viper.Viper) error {
	logConfig := logging.DefaultConfig()
	if v.GetBool("verbose") {
		logConfig.Level = logrus.DebugLevel
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	privileged := make(map[uint32]bool)
	for _, uid := range v.GetUintSlice("privileged-uid") {
		privileged[uint32(uid)] = true
	}

	core := rina.New(rina.Config{
		FlowDelWaitMs:  v.GetInt64("flow-del-wait-ms"),
		PrivilegedUIDs: privileged,
		Logger:         logger,
	})

	if err := core.RegisterFactory(normal.Factory()); err != nil {
		return fmt.Errorf("register normal factory: %w", err)
	}

	socketDir := v.GetString("socket-dir")
	if err := os.MkdirAll(socketDir, 0755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}

	for _, ns := range v.GetStringSlice("namespace") {
		sock := filepath.Join(socketDir, ns+".sock")
		ln, err := core.OpenControlDevice(ns, sock)
		if err != nil {
			core.Close()
			return fmt.Errorf("open control device %q: %w", ns, err)
		}
		logger.Info("control device listening", "namespace", ns, "addr", ln.Addr())
	}

	var metricsSrv *http.Server
	if addr := v.GetString("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", core.MetricsHandler())
		metricsSrv = &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		logger.Info("metrics listening", "addr", addr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown error", "error", err)
		}
	}

	if err := core.Close(); err != nil {
		logger.Error("error stopping core", "error", err)
		return err
	}
	logger.Info("core stopped successfully")
	return nil
}
