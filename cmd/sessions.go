package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/longkey1/advchat/internal/chat"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// sessionsCmd represents the sessions command
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage conversation sessions",
	Long: `Manage conversation sessions including listing, viewing, and deleting sessions.

Sessions keep the conversation history in the local database so that
follow-up questions are answered with context.`,
}

// sessionsListCmd represents the sessions list command
var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	Long:  `List all conversation sessions sorted by most recently updated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		conversations, err := a.store.ListConversations(ctx, a.userID)
		if err != nil {
			return errors.Wrap(err, "listing sessions")
		}

		if len(conversations) == 0 {
			fmt.Println("No sessions found.")
			fmt.Println("\nCreate a new session with:")
			fmt.Println("  advchat chat \"your message\"")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUPDATED\tMESSAGES\tTITLE")
		fmt.Fprintln(w, "--\t-------\t--------\t-----")
		for _, conv := range conversations {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
				conv.ShortID(),
				conv.UpdatedAt.Local().Format("2006-01-02 15:04"),
				conv.MessageCount,
				conv.DisplayName(),
			)
		}
		w.Flush()

		fmt.Println("\nUse 'advchat sessions show <id>' to view session details.")
		return nil
	},
}

// sessionsShowCmd represents the sessions show command
var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show session details and history",
	Long: `Show detailed information about a session including all messages.
Bookmarked messages are marked with '*'.

The ID can be a short ID (minimum 4 characters), full UUID, or "latest" for the most recent session.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		conv, err := a.findConversation(ctx, args[0])
		if err != nil {
			return errors.Wrap(err, "finding session")
		}

		e := a.newEngine()
		if err := e.Activate(ctx, conv); err != nil {
			return err
		}

		fmt.Printf("Session: %s\n", conv.ID)
		fmt.Printf("Title: %s\n", conv.DisplayName())
		fmt.Printf("Created: %s\n", conv.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("Updated: %s\n", conv.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("Messages: %d\n", conv.MessageCount)
		fmt.Println()

		turns := e.Transcript()
		if len(turns) == 0 {
			fmt.Println("No messages in this session.")
			return nil
		}

		fmt.Println("Message History:")
		fmt.Println("----------------")
		printTurns(e, turns)

		fmt.Printf("\nContinue this session with:\n  advchat chat -s %s \"your message\"\n", conv.ShortID())
		return nil
	},
}

// printTurns prints turns numbered from 1, marking bookmarked ones.
func printTurns(e *chat.Engine, turns []chat.Turn) {
	for i, turn := range turns {
		roleLabel := "You"
		if turn.Role == chat.RoleAssistant {
			roleLabel = "Assistant"
		}
		mark := ""
		if e.IsBookmarked(turn.ID) {
			mark = " *"
		}
		fmt.Printf("\n[%d] %s (%s)%s:\n%s\n",
			i+1,
			roleLabel,
			turn.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			mark,
			turn.Content,
		)
	}
}

// sessionsNewCmd represents the sessions new command
var sessionsNewCmd = &cobra.Command{
	Use:   "new [title]",
	Short: "Create an empty session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		title := ""
		if len(args) > 0 {
			title = args[0]
		}
		conv, err := a.store.CreateConversation(ctx, a.userID, title)
		if err != nil {
			return err
		}

		fmt.Printf("Session created: %s (%s)\n", conv.ShortID(), conv.DisplayName())
		return nil
	},
}

// sessionsDeleteCmd represents the sessions delete command
var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session",
	Long: `Delete a conversation session permanently, together with its messages
and their bookmarks.

The ID can be a short ID (minimum 4 characters), full UUID, or "latest" for the most recent session.

Warning: This action cannot be undone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		conv, err := a.findConversation(ctx, args[0])
		if err != nil {
			return errors.Wrap(err, "finding session")
		}

		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && !confirm(fmt.Sprintf("Are you sure you want to delete session %s (%s)?", conv.ShortID(), conv.DisplayName())) {
			fmt.Println("Deletion cancelled.")
			return nil
		}

		if err := a.store.DeleteConversation(ctx, a.userID, conv.ID); err != nil {
			return errors.Wrap(err, "deleting session")
		}

		fmt.Printf("Session %s deleted successfully.\n", conv.ShortID())
		return nil
	},
}

// sessionsRenameCmd represents the sessions rename command
var sessionsRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a session",
	Long: `Rename a conversation session. A renamed session keeps its title; it
is never replaced by one derived from the first message.

The ID can be a short ID (minimum 4 characters), full UUID, or "latest" for the most recent session.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		conv, err := a.findConversation(ctx, args[0])
		if err != nil {
			return errors.Wrap(err, "finding session")
		}

		if err := a.store.RenameConversation(ctx, a.userID, conv.ID, args[1]); err != nil {
			return errors.Wrap(err, "renaming session")
		}

		fmt.Printf("Session %s renamed to \"%s\".\n", conv.ShortID(), args[1])
		return nil
	},
}

// sessionsClearMessagesCmd represents the sessions clear-messages command
var sessionsClearMessagesCmd = &cobra.Command{
	Use:   "clear-messages <id>",
	Short: "Delete every message of a session",
	Long: `Delete every message of a session but keep the session and its title.

The ID can be a short ID (minimum 4 characters), full UUID, or "latest" for the most recent session.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		conv, err := a.findConversation(ctx, args[0])
		if err != nil {
			return errors.Wrap(err, "finding session")
		}

		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && !confirm(fmt.Sprintf("Delete all %d messages of session %s?", conv.MessageCount, conv.ShortID())) {
			fmt.Println("Cancelled.")
			return nil
		}

		e := a.newEngine()
		if err := e.Activate(ctx, conv); err != nil {
			return err
		}
		if err := e.Clear(ctx); err != nil {
			return err
		}

		fmt.Printf("Session %s cleared.\n", conv.ShortID())
		return nil
	},
}

// sessionsClearCmd represents the sessions clear command
var sessionsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete old sessions",
	Long: `Delete old conversation sessions permanently.

By default, deletes sessions not updated within the configured retention
period (session_retention_days, 30 by default).
Use --before to specify a different date, or --all to delete all sessions.

Warning: This action cannot be undone.

Examples:
  advchat sessions clear                      # Delete sessions idle for more than 30 days (default)
  advchat sessions clear --before 2024-01-01  # Delete sessions last updated before 2024-01-01
  advchat sessions clear --before 2024-12     # Delete sessions last updated before 2024-12-01
  advchat sessions clear --all                # Delete all sessions`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		beforeDateStr, _ := cmd.Flags().GetString("before")
		deleteAll, _ := cmd.Flags().GetBool("all")
		yes, _ := cmd.Flags().GetBool("yes")

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var (
			cutoff   time.Time
			question string
		)
		switch {
		case deleteAll:
			cutoff = time.Now().Add(time.Hour)
			question = "Are you sure you want to delete all sessions?"
		case beforeDateStr != "":
			cutoff, err = parseDate(beforeDateStr)
			if err != nil {
				return errors.Wrap(err, "parsing date")
			}
			question = fmt.Sprintf("Are you sure you want to delete sessions last updated before %s?", cutoff.Format("2006-01-02"))
		default:
			retention := a.cfg.Retention()
			if retention == 0 {
				fmt.Println("Session retention is disabled (session_retention_days = 0).")
				return nil
			}
			cutoff = time.Now().Add(-retention)
			question = fmt.Sprintf("Are you sure you want to delete sessions older than %d days (last updated before %s)?",
				a.cfg.SessionRetentionDays, cutoff.Format("2006-01-02"))
		}

		if !yes && !confirm(question) {
			fmt.Println("Deletion cancelled.")
			return nil
		}

		deleted, err := a.store.DeleteConversationsBefore(ctx, a.userID, cutoff)
		if err != nil {
			return err
		}

		fmt.Printf("Successfully deleted %d sessions.\n", deleted)
		return nil
	},
}

// parseDate parses a date string in various formats and returns a time.Time
// Supported formats: YYYY-MM-DD, YYYY-MM, YYYY
func parseDate(dateStr string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.ParseInLocation(layout, dateStr, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("invalid date format: %s (use YYYY-MM-DD, YYYY-MM, or YYYY)", dateStr)
}

// sessionsExportCmd represents the sessions export command
var sessionsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a session as plain text",
	Long: `Export the messages of a session as plain text.

Each message is written as "[time] ROLE: content", separated by blank lines.
Without --output the text is written to a file named after the session
title in the current directory. Use --output - to print it instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		output, _ := cmd.Flags().GetString("output")

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		conv, err := a.findConversation(ctx, args[0])
		if err != nil {
			return errors.Wrap(err, "finding session")
		}

		e := a.newEngine()
		if err := e.Activate(ctx, conv); err != nil {
			return err
		}

		return exportTranscript(e, output)
	},
}

// exportTranscript writes the transcript of e to output ("-" is stdout).
func exportTranscript(e *chat.Engine, output string) error {
	text := chat.Export(e.Transcript())
	if output == "-" {
		fmt.Println(text)
		return nil
	}

	if output == "" {
		output = chat.ExportFileName(e.Conversation().DisplayName(), time.Now().Format("2006-01-02"))
	}
	if err := os.WriteFile(output, []byte(text+"\n"), 0644); err != nil {
		return errors.Wrap(err, "writing export")
	}

	abs, _ := filepath.Abs(output)
	fmt.Fprintf(os.Stderr, "Chat exported to %s\n", abs)
	return nil
}

// sessionsStartCmd represents the sessions start command
var sessionsStartCmd = &cobra.Command{
	Use:   "start [session-id]",
	Short: "Start an interactive session",
	Long: `Start an interactive chat session with continuous conversation.

You can either start a new session or continue an existing one by providing its ID.
The ID can be a short ID (minimum 4 characters), full UUID, or "latest" for the most recent session.

While waiting for an answer, press Ctrl+C to cancel the request.
Changes to the config file are picked up before the next message.

Examples:
  advchat sessions start                # Start a new interactive session
  advchat sessions start 550e8400       # Continue session 550e8400 in interactive mode
  advchat sessions start latest         # Continue latest session in interactive mode`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.cfg.ValidateForSend(); err != nil {
			return err
		}

		var conv chat.Conversation
		if len(args) > 0 {
			conv, err = a.findConversation(ctx, args[0])
			if err != nil {
				return errors.Wrap(err, "finding session")
			}
		} else {
			conv, err = a.store.CreateConversation(ctx, a.userID, "")
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Session created: %s\n", conv.ShortID())
		}

		e := a.newEngine()
		if err := e.Activate(ctx, conv); err != nil {
			return err
		}

		if err := runInteractiveMode(ctx, a, e); err != nil {
			return errors.Wrap(err, "interactive mode")
		}
		return nil
	},
}

// activeSession returns the conversation e currently drives, refreshed
// from the store when possible.
func activeSession(ctx context.Context, a *app, e *chat.Engine) chat.Conversation {
	conv := e.Conversation()
	if fresh, err := a.store.GetConversation(ctx, a.userID, conv.ID); err == nil {
		return fresh
	}
	return conv
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsNewCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsRenameCmd)
	sessionsCmd.AddCommand(sessionsClearMessagesCmd)
	sessionsCmd.AddCommand(sessionsClearCmd)
	sessionsCmd.AddCommand(sessionsExportCmd)
	sessionsCmd.AddCommand(sessionsStartCmd)

	for _, c := range []*cobra.Command{sessionsDeleteCmd, sessionsClearMessagesCmd, sessionsClearCmd} {
		c.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	}

	// sessionsClearCmd flags
	sessionsClearCmd.Flags().String("before", "", "Delete only sessions last updated before this date (format: YYYY-MM-DD, YYYY-MM, or YYYY)")
	sessionsClearCmd.Flags().Bool("all", false, "Delete all sessions (overrides retention days setting)")

	sessionsExportCmd.Flags().StringP("output", "o", "", "Output file ('-' for stdout)")
}
