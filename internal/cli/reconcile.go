package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"github.com/anzchy/chat-memo-pro-sub000/internal/reconcile"
	"github.com/anzchy/chat-memo-pro-sub000/internal/service"
	"github.com/anzchy/chat-memo-pro-sub000/internal/source"
	"github.com/spf13/cobra"
)

// ReconcileOptions 是 reconcile 命令的参数。
type ReconcileOptions struct {
	*RootOptions
	File string
	ID   string
}

// ReconcileReport 是一次 reconcile 命令的输出。
type ReconcileReport struct {
	ConversationID string         `json:"conversationId"`
	Created        bool           `json:"created"`
	Mode           reconcile.Mode `json:"mode"`
	AnchorFound    bool           `json:"anchorFound"`
	AnchorPosition int            `json:"anchorPosition"`
	AnchorSize     int            `json:"anchorSize"`
	Skipped        bool           `json:"skipped"`
	Added          int            `json:"added"`
	Updated        int            `json:"updated"`
	Removed        int            `json:"removed"`
	Messages       int            `json:"messages"`
}

func (r ReconcileReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "conversation: %s\n", r.ConversationID)
	fmt.Fprintf(&b, "mode:         %s", r.Mode)
	if r.Created {
		b.WriteString(" (created)")
	}
	if r.Skipped {
		b.WriteString(" (no changes)")
	}
	b.WriteString("\n")
	if r.AnchorFound {
		fmt.Fprintf(&b, "anchor:       position %d, window %d\n", r.AnchorPosition, r.AnchorSize)
	}
	fmt.Fprintf(&b, "changes:      +%d ~%d -%d\n", r.Added, r.Updated, r.Removed)
	fmt.Fprintf(&b, "messages:     %d", r.Messages)
	return b.String()
}

// NewReconcileCommand 创建 reconcile 命令。
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile a captured conversation into the local store",
		Long: `Reconcile a captured conversation into the local SQLite store.

The capture file is YAML and holds either a rendered page snapshot or a list
of turns. The first run creates the conversation; later runs reconcile it.

Example:
  memoctl reconcile --file capture.yaml --db ./data/chat-memo.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "capture file (YAML)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "conversation id (overrides conversation_id in the file)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runReconcile(ctx context.Context, opts *ReconcileOptions, cmd *cobra.Command) error {
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
	key, info, turns, err := file.Resolve(source.DefaultRegistry())
	if err != nil {
		return WrapExitError(ExitCommandError, "unsupported capture", err)
	}
	out.VerboseLog("session %s, %d turns", key, len(turns))

	repo, db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := service.NewCaptureService(repo, reconcile.NewReconciler(repo), nil, service.RetryPolicy{Attempts: 1})
	id := opts.ID
	if id == "" {
		id = file.ConversationID
	}
	extract := func() (source.Info, []model.RawTurn) { return info, turns }

	conv, created, err := svc.EnsureConversation(ctx, key, id, extract)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load or create conversation", err)
	}
	if conv == nil {
		return NewExitError(ExitFailure, "capture contains no messages")
	}
	if created {
		return out.Success(ReconcileReport{
			ConversationID: conv.ID,
			Created:        true,
			Mode:           reconcile.ModeFullSave,
			Added:          len(conv.Messages),
			Messages:       len(conv.Messages),
		})
	}

	res, err := svc.Reconcile(ctx, conv.ID, turns)
	if err != nil {
		return WrapExitError(ExitFailure, "reconcile failed", err)
	}
	report := ReconcileReport{
		ConversationID: conv.ID,
		Mode:           res.Mode,
		AnchorFound:    res.AnchorFound,
		AnchorPosition: res.AnchorPosition,
		AnchorSize:     res.AnchorSize,
		Skipped:        res.Skipped,
		Added:          res.Added,
		Updated:        res.Updated,
		Removed:        res.Removed,
	}
	if res.Conversation != nil {
		report.Messages = len(res.Conversation.Messages)
	}
	return out.Success(report)
}
