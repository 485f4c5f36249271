package cli

import (
	"github.com/spf13/cobra"

	"replybot/internal/app"
)

func (c *cli) newConversationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversation",
		Aliases: []string{"conv"},
		Short:   "Initialize or remove a conversation's configuration set",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "init <conversation-id>",
			Short: "Create an empty configuration set (no-op if it exists)",
			Args:  exactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withApp(cmd.Context(), func(a *app.App) error {
					if err := a.Configurations().InitializeConversation(cmd.Context(), args[0]); err != nil {
						return err
					}
					c.ok("conversation %s initialized", args[0])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "remove <conversation-id>",
			Short: "Delete the configuration set and unschedule its entries",
			Args:  exactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withApp(cmd.Context(), func(a *app.App) error {
					if err := a.Configurations().RemoveConversation(cmd.Context(), args[0]); err != nil {
						return err
					}
					c.ok("conversation %s removed", args[0])
					return nil
				})
			},
		},
	)
	return cmd
}
