package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/youtonghy/Voice-transcript/internal/store"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "List, show and delete stored conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, pinned first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(st *store.Store) error {
			convs, err := st.ListConversations()
			if err != nil {
				return err
			}
			return printConversations(cmd.OutOrStdout(), convs)
		})
	},
}

var showLimit int

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a conversation's entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(st *store.Store) error {
			conv, err := st.Conversation(args[0])
			if err != nil {
				return err
			}
			entries, err := st.EntriesForConversation(conv.ID, showLimit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", conv.Title, conv.ID)
			for _, e := range entries {
				fmt.Fprintln(out, formatEntry(e))
			}
			return nil
		})
	},
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete conversations and their entries",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(st *store.Store) error {
			for _, id := range args {
				if err := st.DeleteConversation(id); err != nil {
					return fmt.Errorf("failed to delete %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			}
			return nil
		})
	},
}

func init() {
	conversationsShowCmd.Flags().IntVarP(&showLimit, "limit", "n", 0, "show only the most recent n entries (0 shows all)")

	conversationsCmd.AddCommand(conversationsListCmd, conversationsShowCmd, conversationsDeleteCmd)
	rootCmd.AddCommand(conversationsCmd)
}

// withStore opens the configured store for the duration of fn
func withStore(fn func(st *store.Store) error) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open conversation store: %w", err)
	}
	defer st.Close()

	return fn(st)
}

func printConversations(out io.Writer, convs []store.Conversation) error {
	if len(convs) == 0 {
		_, err := fmt.Fprintln(out, "No conversations")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tUPDATED\tPINNED")
	for _, c := range convs {
		pinned := ""
		if c.Pinned {
			pinned = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, truncate(c.Title, 40), c.UpdatedAt.Local().Format("2006-01-02 15:04"), pinned)
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
