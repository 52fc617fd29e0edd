package cmd

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/longkey1/advchat/internal/chat"
	promptpkg "github.com/longkey1/advchat/internal/prompt"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	prompt          string
	argFlags        []string
	useEditor       bool
	sessionID       string
	sessionTitle    string
	ignoreThreshold bool
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a message to the answering service",
	Long: `Send a message to the answering service and print the answer.

Without --session a new session is created. With --session the message is
added to an existing session and its recent history is sent along.
Press Ctrl+C while waiting to cancel the request; your message stays saved.

For interactive multi-turn conversations, use 'advchat sessions start' instead.

If no message is provided as an argument, it reads from stdin.
If --editor flag is set, it opens the default editor (from EDITOR environment variable) to compose the message.

The prompt file should be in TOML format with the following structure:
system = "System instruction with optional {{key}} placeholders"
user = "Message wrapper with optional {{input}} placeholder"`,
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

		// Get message from arguments, editor, or stdin
		var message string
		if useEditor {
			message, err = getMessageFromEditor()
			if err != nil {
				return errors.Wrap(err, "getting message from editor")
			}
		} else if len(args) > 0 {
			message = strings.Join(args, " ")
		} else {
			input, err := io.ReadAll(os.Stdin)
			if err != nil {
				return errors.Wrap(err, "reading from stdin")
			}
			message = strings.TrimSpace(string(input))
		}
		if message == "" {
			return errors.New("message is empty")
		}

		var systemPrompt string
		if prompt != "" {
			rendered, err := promptpkg.Render(prompt, a.cfg.PromptDirs, message, argFlags)
			if err != nil {
				return errors.Wrap(err, "formatting message with prompt")
			}
			systemPrompt = rendered.System
			message = rendered.Query
		}

		settings, err := a.cfg.Settings(systemPrompt)
		if err != nil {
			return err
		}

		var conv chat.Conversation
		isNewSession := sessionID == ""
		if isNewSession {
			conv, err = a.store.CreateConversation(ctx, a.userID, sessionTitle)
			if err != nil {
				return err
			}
		} else {
			conv, err = a.findConversation(ctx, sessionID)
			if err != nil {
				return errors.Wrap(err, "finding session")
			}
			if !checkThreshold(conv, a.cfg.SessionMessageThreshold) {
				return nil
			}
		}

		e := a.newEngine()
		if err := e.Activate(ctx, conv); err != nil {
			return err
		}

		answer, err := submit(ctx, e, settings, message)
		if err != nil {
			fmt.Fprintln(os.Stderr, describeSendError(err))
			return err
		}
		printAnswer(answer)

		if isNewSession {
			conv = e.Conversation()
			fmt.Fprintf(os.Stderr, "\nSession created: %s (%s)\n", conv.ShortID(), conv.DisplayName())
			fmt.Fprintf(os.Stderr, "\nNext time, use:\n  advchat chat -s %s \"your message\"\n", conv.ShortID())
			fmt.Fprintf(os.Stderr, "For interactive mode, use:\n  advchat sessions start %s\n", conv.ShortID())
		}
		return nil
	},
}

// checkThreshold warns about long sessions and asks whether to go on.
func checkThreshold(conv chat.Conversation, threshold int) bool {
	if threshold <= 0 || conv.MessageCount < threshold || ignoreThreshold {
		return true
	}

	fmt.Fprintf(os.Stderr, "\nWarning: Session %s has %d messages (threshold: %d).\n",
		conv.ShortID(), conv.MessageCount, threshold)
	fmt.Fprintf(os.Stderr, "Only the most recent messages are sent as history.\n")
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	fmt.Fprintf(os.Stderr, "  1. Continue anyway with --ignore-threshold flag\n")
	fmt.Fprintf(os.Stderr, "  2. Start a new session: advchat chat \"your message\"\n\n")

	if !confirm("Continue with this session?") {
		fmt.Fprintln(os.Stderr, "Cancelled.")
		return false
	}
	return true
}

// getMessageFromEditor opens the default editor and returns the edited message
func getMessageFromEditor() (string, error) {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		return "", errors.New("EDITOR environment variable is not set")
	}

	tmpFile, err := os.CreateTemp("", "advchat-*.txt")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temporary file")
	}
	tmpFile.Close()
	defer os.Remove(tmpFile.Name())

	cmd := exec.Command(editor, tmpFile.Name())
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return "", errors.Wrap(err, "failed to open editor")
	}

	content, err := os.ReadFile(tmpFile.Name())
	if err != nil {
		return "", errors.Wrap(err, "failed to read edited content")
	}

	return strings.TrimSpace(string(content)), nil
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Name of the prompt template (without .toml extension)")
	chatCmd.Flags().StringArrayVar(&argFlags, "arg", []string{}, "Key-value pairs for prompt template (format: key:value)")
	chatCmd.Flags().BoolVarP(&useEditor, "editor", "e", false, "Use default editor (from EDITOR environment variable) to compose message")

	// Session flags
	chatCmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID (short or full UUID, or 'latest' for most recent session)")
	chatCmd.Flags().StringVar(&sessionTitle, "title", "", "Title for the new session (default: derived from the first message)")
	chatCmd.Flags().BoolVar(&ignoreThreshold, "ignore-threshold", false, "Ignore session message threshold warning")
}
