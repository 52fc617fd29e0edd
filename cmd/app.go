package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/longkey1/advchat/internal/chat"
	"github.com/longkey1/advchat/internal/config"
	"github.com/longkey1/advchat/internal/identity"
	"github.com/longkey1/advchat/internal/store"
	"github.com/longkey1/advchat/internal/version"
	"github.com/longkey1/advchat/internal/webhook"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
)

// app bundles what every command that touches conversations needs.
type app struct {
	cfg    *config.Config
	store  *store.Store
	userID string
}

// openApp loads the configuration, resolves the user and opens the store.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, errors.Wrap(err, "loading config")
	}

	userID, err := identity.Resolve(cfg.UserID)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	return &app{cfg: cfg, store: st, userID: userID}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// newEngine returns an engine wired to the store and the webhook client.
func (a *app) newEngine() *chat.Engine {
	transport := webhook.NewClient(webhook.WithUserAgent(version.UserAgent()))
	return chat.NewEngine(a.store, transport, a.userID)
}

// findConversation resolves ref and adds a hint when nothing matched.
func (a *app) findConversation(ctx context.Context, ref string) (chat.Conversation, error) {
	conv, err := a.store.FindConversation(ctx, a.userID, ref)
	if errors.Is(err, store.ErrConversationNotFound) {
		return chat.Conversation{}, fmt.Errorf("%v\n\nRun 'advchat sessions list' to see available sessions", err)
	}
	return conv, err
}

// cancelOnInterrupt cancels the in-flight request of e on Ctrl+C while
// the returned stop function has not been called.
func cancelOnInterrupt(e *chat.Engine) (stop func()) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-sig:
				if e.IsBusy() {
					e.Cancel()
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sig)
		close(done)
	}
}

// showSpinner displays a spinner animation until done is closed. It
// draws nothing when stderr is not a terminal.
func showSpinner(done <-chan struct{}) {
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		<-done
		return
	}

	spinners := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	i := 0
	for {
		fmt.Fprintf(os.Stderr, "\r%s Waiting for response... (Ctrl+C to cancel)", spinners[i])
		i = (i + 1) % len(spinners)
		select {
		case <-done:
			// Clear the spinner line
			fmt.Fprint(os.Stderr, "\r\033[K")
			return
		case <-ticker.C:
		}
	}
}

// submit sends content through e with a spinner and Ctrl+C handling.
func submit(ctx context.Context, e *chat.Engine, settings chat.Config, content string) (*chat.Answer, error) {
	stop := cancelOnInterrupt(e)
	defer stop()

	done := make(chan struct{})
	spinnerDone := make(chan struct{})
	go func() {
		showSpinner(done)
		close(spinnerDone)
	}()

	answer, err := e.Submit(ctx, settings, content)
	close(done)
	<-spinnerDone
	return answer, err
}

// describeSendError turns engine errors into a message for the terminal.
func describeSendError(err error) string {
	var (
		timeout   *chat.TimeoutError
		cancelled *chat.CancelledError
		busy      *chat.ConcurrentRequestError
		transport *chat.TransportError
		malformed *chat.MalformedResponseError
	)
	switch {
	case errors.As(err, &cancelled):
		return "Request cancelled."
	case errors.As(err, &timeout):
		return fmt.Sprintf("No answer within %s. Your message was saved; try again.", timeout.Timeout)
	case errors.As(err, &busy):
		return "A request is already in progress."
	case errors.As(err, &transport):
		return fmt.Sprintf("The answering service failed: %v", transport)
	case errors.As(err, &malformed):
		return fmt.Sprintf("The answering service sent an unexpected response: %s", malformed.Reason)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}

// printAnswer writes the answer text followed by its suggested questions.
func printAnswer(answer *chat.Answer) {
	fmt.Println(answer.Text)
	if len(answer.SuggestedQuestions) == 0 {
		return
	}
	fmt.Println("\nSuggested questions:")
	for i, q := range answer.SuggestedQuestions {
		fmt.Printf("  %d. %s\n", i+1, q)
	}
}

// confirm asks a yes/no question on stderr. Anything but y/Y is no.
func confirm(question string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", question)
	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "Y"
}
