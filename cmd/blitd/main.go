// Command blitd runs the blit transfer daemon: it loads a TOML module
// configuration and serves the Push/Pull control plane over gRPC.
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/blitxfer/blit/internal/blitrpc"
	"github.com/blitxfer/blit/internal/daemon"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "blitd",
		Short: "blit transfer daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "/etc/blitd.toml", "path to the daemon's TOML config")

	if err := root.Execute(); err != nil {
		logrus.StandardLogger().WithError(err).Error("blitd exited with an error")
		os.Exit(1)
	}
}

func run(configPath string) error {
	log := logrus.StandardLogger()

	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", addr, err)
	}

	srv := daemon.NewServer(cfg, cfg.BindAddress, log)
	grpcServer := grpc.NewServer(blitrpc.ServerOption())
	blitrpc.RegisterBlitServer(grpcServer, srv)

	log.WithField("addr", addr).WithField("modules", len(cfg.Modules)).Info("blitd listening")
	return grpcServer.Serve(ln)
}
