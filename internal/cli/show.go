package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"github.com/anzchy/chat-memo-pro-sub000/internal/service"
	"github.com/spf13/cobra"
)

// ShowOptions 是 show 命令的参数。
type ShowOptions struct {
	*RootOptions
	ID   string
	Link string
}

// conversationView 是 show 命令的文本输出形式，json 模式下输出完整记录。
type conversationView struct {
	*model.Conversation
}

func (v conversationView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  [%s] %s\n", v.ID, v.Platform, v.Title)
	fmt.Fprintf(&b, "%s\n", v.Link)
	fmt.Fprintf(&b, "%d messages, updated %s\n", v.MessageCount, v.UpdatedAt.Format("2006-01-02 15:04:05"))
	for _, m := range v.Messages {
		fmt.Fprintf(&b, "\n#%d %s:\n%s\n", m.Position, m.Sender, m.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewShowCommand 创建 show 命令。
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "conversation id")
	cmd.Flags().StringVar(&opts.Link, "link", "", "conversation page link")
	cmd.MarkFlagsOneRequired("id", "link")
	cmd.MarkFlagsMutuallyExclusive("id", "link")

	return cmd
}

func runShow(ctx context.Context, opts *ShowOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	repo, db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := service.NewConversationService(repo)
	var conv *model.Conversation
	if opts.ID != "" {
		conv, err = svc.GetConversation(ctx, opts.ID)
	} else {
		conv, err = svc.FindByLink(ctx, opts.Link)
	}
	if errors.Is(err, model.ErrConversationNotFound) {
		return NewExitError(ExitFailure, "conversation not found")
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load conversation", err)
	}

	if opts.Format == "json" {
		return out.Success(conv)
	}
	return out.Success(conversationView{conv})
}
