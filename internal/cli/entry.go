package cli

import (
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"replybot/internal/app"
	"replybot/internal/configuration"
)

func (c *cli) newEntryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entry",
		Short: "List, add or remove configuration entries of a conversation",
	}
	cmd.AddCommand(c.newEntryListCmd(), c.newEntryAddCmd(), c.newEntryRemoveCmd())
	return cmd
}

func (c *cli) newEntryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <conversation-id>",
		Short: "Show the entries of a conversation with their next run",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				entries, err := a.Configurations().ListConfigurations(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				table := tablewriter.NewWriter(c.stdout)
				table.SetHeader([]string{"Name", "Regex", "Cron", "Next run", "Reply"})
				table.SetAutoWrapText(false)
				table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
				table.SetAlignment(tablewriter.ALIGN_LEFT)
				table.SetBorder(false)
				table.SetCenterSeparator("")
				table.SetColumnSeparator("")
				table.SetRowSeparator("")
				table.SetHeaderLine(false)
				table.SetTablePadding("  ")
				table.SetNoWhiteSpace(true)

				now := time.Now()
				for _, e := range entries {
					next := "-"
					if e.Scheduled() {
						if runs, err := a.Scheduler().NextRuns(*e.CronExpression, now, 1); err == nil && len(runs) > 0 {
							next = runs[0].Format(time.RFC3339)
						}
					}
					table.Append([]string{
						e.ConfigName,
						lo.FromPtrOr(e.Regex, "-"),
						lo.FromPtrOr(e.CronExpression, "-"),
						next,
						e.Reply,
					})
				}
				table.Render()
				return nil
			})
		},
	}
}

func (c *cli) newEntryAddCmd() *cobra.Command {
	var name, regex, cron, reply string
	cmd := &cobra.Command{
		Use:   "add <conversation-id> --name NAME (--regex RE | --cron SPEC) --reply TEXT",
		Short: "Add an entry, replacing any entry with the same name",
		Example: `  replybot entry add --name greet --regex '^hello' --reply 'hi there' -- -1001234
  replybot entry add --name standup --cron '0 9 * * 1-5' --reply 'standup time' 42`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry := configuration.ConfigEntry{ConfigName: name, Reply: reply}
			// an explicitly empty --regex is a valid match-everything pattern
			if cmd.Flags().Changed("regex") {
				entry.Regex = lo.ToPtr(regex)
			}
			if cmd.Flags().Changed("cron") {
				entry.CronExpression = lo.ToPtr(cron)
			}
			return c.withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Configurations().AddConfiguration(cmd.Context(), args[0], entry); err != nil {
					return err
				}
				c.ok("entry %s saved in %s", name, args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "entry name (no whitespace)")
	cmd.Flags().StringVar(&regex, "regex", "", "RE2 pattern matched against incoming messages")
	cmd.Flags().StringVar(&cron, "cron", "", "cron expression (5 or 6 fields, or @every/@daily...)")
	cmd.Flags().StringVar(&reply, "reply", "", "reply text")
	return cmd
}

func (c *cli) newEntryRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <conversation-id> <name>",
		Short: "Remove an entry and unschedule it",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Configurations().RemoveConfiguration(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				c.ok("entry %s removed from %s", args[1], args[0])
				return nil
			})
		},
	}
}
