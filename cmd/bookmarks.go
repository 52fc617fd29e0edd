package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// bookmarksCmd represents the bookmarks command
var bookmarksCmd = &cobra.Command{
	Use:   "bookmarks",
	Short: "Manage bookmarked messages",
}

// bookmarksListCmd represents the bookmarks list command
var bookmarksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bookmarked messages",
	Long:  `List every bookmarked message with the session it belongs to, oldest bookmark first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		turns, err := a.store.ListBookmarkedTurns(ctx, a.userID)
		if err != nil {
			return err
		}
		if len(turns) == 0 {
			fmt.Println("No bookmarks yet.")
			fmt.Println("\nBookmark an answer in interactive mode with /bookmark, or run:")
			fmt.Println("  advchat bookmarks toggle <message-id>")
			return nil
		}

		titles := make(map[string]string)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MESSAGE\tSESSION\tCREATED\tCONTENT")
		fmt.Fprintln(w, "-------\t-------\t-------\t-------")
		for _, turn := range turns {
			title, ok := titles[turn.ConversationID]
			if !ok {
				if conv, err := a.store.GetConversation(ctx, a.userID, turn.ConversationID); err == nil {
					title = conv.DisplayName()
				}
				titles[turn.ConversationID] = title
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				turn.ID,
				title,
				turn.CreatedAt.Local().Format("2006-01-02 15:04"),
				preview(turn.Content, 60),
			)
		}
		return w.Flush()
	},
}

// bookmarksToggleCmd represents the bookmarks toggle command
var bookmarksToggleCmd = &cobra.Command{
	Use:   "toggle <message-id>",
	Short: "Add or remove the bookmark on a message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		ids, err := a.store.ListBookmarks(ctx, a.userID)
		if err != nil {
			return err
		}

		e := a.newEngine()
		// the engine only needs the bookmark index here
		e.LoadBookmarks(ids)
		on, err := e.ToggleBookmark(ctx, args[0])
		if err != nil {
			return errors.Wrap(err, "toggling bookmark")
		}

		if on {
			fmt.Printf("Message %s bookmarked.\n", args[0])
		} else {
			fmt.Printf("Bookmark on message %s removed.\n", args[0])
		}
		return nil
	},
}

// preview flattens s to one line of at most n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func init() {
	rootCmd.AddCommand(bookmarksCmd)
	bookmarksCmd.AddCommand(bookmarksListCmd)
	bookmarksCmd.AddCommand(bookmarksToggleCmd)
}
