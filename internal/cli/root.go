// Package cli 实现离线工具 memoctl 的命令。
package cli

import (
	"fmt"
	"slices"

	"github.com/anzchy/chat-memo-pro-sub000/internal/config"
	"github.com/spf13/cobra"
)

// RootOptions 是所有子命令共享的全局参数。
type RootOptions struct {
	ConfigPath string
	DBPath     string
	Format     string // "json" | "text"
	Verbose    bool
}

// ValidFormats 是允许的输出格式。
var ValidFormats = []string{"text", "json"}

// NewRootCommand 创建 memoctl 根命令。
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "memoctl",
		Short: "memoctl - offline tooling for the chat-memo sync service",
		Long:  "Run reconciliations against a local SQLite store, inspect stored conversations and publish capture events.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config.yaml (defaults are used when empty)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "sqlite database path (overrides database.sqlite.path)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewPublishCommand(opts))
	cmd.AddCommand(NewHashSecretCommand(opts))

	return cmd
}

// loadConfig 读取 --config 指定的配置，未指定时使用默认值；--db 覆盖 SQLite 路径。
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(o.ConfigPath); err != nil {
			return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
		}
	}
	if o.DBPath != "" {
		cfg.Database.SQLite.Path = o.DBPath
	}
	return cfg, nil
}
