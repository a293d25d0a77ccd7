package cli

import (
	"github.com/anzchy/chat-memo-pro-sub000/pkg/hash"
	"github.com/spf13/cobra"
)

// NewHashSecretCommand 创建 hash-secret 命令，输出可填入 clients[].secret_hash 的哈希。
func NewHashSecretCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-secret <secret>",
		Short: "Print the bcrypt hash of a capture client secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := hash.HashPassword(args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "failed to hash secret", err)
			}
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(h)
		},
	}
}
