package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rudransh-shrivastava/ao-chat/internal/config"
	"github.com/rudransh-shrivastava/ao-chat/internal/logger"
	"github.com/rudransh-shrivastava/ao-chat/internal/node"
	"github.com/rudransh-shrivastava/ao-chat/internal/telemetry"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	cfg      *config.Config
	log      *logrus.Logger
	shutdown func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:           `aochat`,
	Long:          `aochat is a chat and call client for AO actor processes`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if log, err = logger.New(os.Stderr, cfg.LogLevel); err != nil {
			return err
		}
		shutdown, err = telemetry.Setup(cmd.Context(), "aochat", cfg.Telemetry.Endpoint, cfg.Telemetry.Enabled)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if shutdown == nil {
			return nil
		}
		return shutdown(context.Background())
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a yaml config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(addressCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(inviteCmd)
	rootCmd.AddCommand(acceptCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(contactsCmd)
	rootCmd.AddCommand(invitationsCmd)
	rootCmd.AddCommand(chatroomCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(dialCmd)
	rootCmd.AddCommand(listenCmd)
}

// startNode builds a node from the loaded config and runs it until the
// command's context ends. Callers must Close it.
func startNode(cmd *cobra.Command) (*node.Node, error) {
	n, err := node.New(node.Options{Config: cfg, Logger: log})
	if err != nil {
		return nil, err
	}
	if err := n.Start(cmd.Context()); err != nil {
		_ = n.Close()
		return nil, err
	}
	return n, nil
}
