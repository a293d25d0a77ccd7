package cli

import (
	"context"
	"fmt"

	"github.com/anzchy/chat-memo-pro-sub000/pkg/kafka"
	"github.com/spf13/cobra"
)

// PublishOptions 是 publish 命令的参数。
type PublishOptions struct {
	*RootOptions
	File string
}

// NewPublishCommand 创建 publish 命令。
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PublishOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a captured page snapshot to the Kafka capture topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "capture file (YAML, must contain a page)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runPublish(ctx context.Context, opts *PublishOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	file, err := LoadCaptureFile(opts.File)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid capture file", err)
	}
	event, err := file.Event()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid capture file", err)
	}

	kafka.InitProducer(cfg.Kafka)
	defer func() {
		if err := kafka.CloseProducer(); err != nil {
			out.VerboseLog("close producer: %v", err)
		}
	}()
	if err := kafka.ProduceCaptureEvent(ctx, event); err != nil {
		return WrapExitError(ExitFailure, "failed to publish capture event", err)
	}
	return out.Success(fmt.Sprintf("published %s to %s", event.Page.URL, cfg.Kafka.Topic))
}
