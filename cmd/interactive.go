package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/longkey1/advchat/internal/chat"
	"github.com/longkey1/advchat/internal/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// liveSettings holds the settings snapshot used for the next request.
// Requests already in flight keep the snapshot they started with.
type liveSettings struct {
	current atomic.Pointer[chat.Config]
}

func newLiveSettings(cfg *config.Config) (*liveSettings, error) {
	settings, err := cfg.Settings("")
	if err != nil {
		return nil, err
	}
	l := &liveSettings{}
	l.current.Store(&settings)
	return l, nil
}

func (l *liveSettings) Get() chat.Config {
	return *l.current.Load()
}

// newReloadViper returns a viper instance private to the config
// watcher, reading path on top of base. The watcher goroutine only ever
// touches this instance.
func newReloadViper(path string, base map[string]any) (*viper.Viper, error) {
	v := viper.New()
	for key, value := range base {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix("ADVCHAT")
	v.AutomaticEnv()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return v, nil
}

// reload replaces the snapshot from v, which the watcher has just
// re-read. An invalid file keeps the previous snapshot.
func (l *liveSettings) reload(v *viper.Viper, e fsnotify.Event) {
	cfg, err := config.Load(v)
	if err == nil {
		err = cfg.ValidateForSend()
	}
	if err != nil {
		log.Warn().Err(err).Str("file", e.Name).Msg("Ignoring config change")
		return
	}
	settings, err := cfg.Settings("")
	if err != nil {
		log.Warn().Err(err).Str("file", e.Name).Msg("Ignoring config change")
		return
	}
	l.current.Store(&settings)
	log.Info().Str("file", e.Name).Str("op", e.Op.String()).Msg("Config reloaded")
}

// watch reloads l whenever the config file in use changes.
func (l *liveSettings) watch() {
	path := viper.ConfigFileUsed()
	if path == "" {
		return
	}
	v, err := newReloadViper(path, viper.AllSettings())
	if err != nil {
		log.Warn().Err(err).Msg("Config changes will not be picked up")
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) { l.reload(v, e) })
	v.WatchConfig()
}

// runInteractiveMode starts an interactive chat session
func runInteractiveMode(ctx context.Context, a *app, e *chat.Engine) error {
	live, err := newLiveSettings(a.cfg)
	if err != nil {
		return err
	}
	live.watch()

	conv := e.Conversation()
	fmt.Fprintf(os.Stderr, "\n=== Interactive Session [%s] ===\n", conv.ShortID())
	fmt.Fprintf(os.Stderr, "Title: %s\n", conv.DisplayName())
	fmt.Fprintf(os.Stderr, "Endpoint: %s\n", live.Get().Endpoint)
	fmt.Fprintf(os.Stderr, "Type '/help' for commands, '/exit' or 'Ctrl+D' to quit\n")
	fmt.Fprintf(os.Stderr, "===================================\n\n")

	repl := &interactive{app: a, engine: e, settings: live}
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(os.Stderr, "You> ")

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return errors.Wrap(err, "input error")
			}
			fmt.Fprintln(os.Stderr, "\nGoodbye!")
			return nil
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if !repl.handleCommand(ctx, input) {
				return nil
			}
			continue
		}

		repl.send(ctx, input)
	}
}

type interactive struct {
	app      *app
	engine   *chat.Engine
	settings *liveSettings
	// suggestions of the last answer, for /ask
	suggestions []string
}

func (r *interactive) send(ctx context.Context, input string) {
	answer, err := submit(ctx, r.engine, r.settings.Get(), input)
	if err != nil {
		fmt.Fprintln(os.Stderr, describeSendError(err))
		return
	}

	r.suggestions = answer.SuggestedQuestions
	fmt.Print("\nAssistant> ")
	printAnswer(answer)
	if len(r.suggestions) > 0 {
		fmt.Fprintln(os.Stderr, "(use /ask <n> to send a suggested question)")
	}
	fmt.Println()
}

// handleCommand processes slash commands in interactive mode
// Returns true to continue the loop, false to exit
func (r *interactive) handleCommand(ctx context.Context, input string) bool {
	name, arg, _ := strings.Cut(input, " ")
	name = strings.ToLower(name)
	arg = strings.TrimSpace(arg)

	switch name {
	case "/help", "/h":
		fmt.Fprintln(os.Stderr, "\nAvailable commands:")
		fmt.Fprintln(os.Stderr, "  /help, /h         - Show this help message")
		fmt.Fprintln(os.Stderr, "  /info, /i         - Show session information")
		fmt.Fprintln(os.Stderr, "  /history          - Show the messages of this session")
		fmt.Fprintln(os.Stderr, "  /ask <n>          - Send suggested question n of the last answer")
		fmt.Fprintln(os.Stderr, "  /bookmark [n]     - Toggle the bookmark on message n (default: last answer)")
		fmt.Fprintln(os.Stderr, "  /title <title>    - Rename this session")
		fmt.Fprintln(os.Stderr, "  /clear            - Delete every message of this session")
		fmt.Fprintln(os.Stderr, "  /export [file]    - Export this session as plain text")
		fmt.Fprintln(os.Stderr, "  /exit, /quit      - Exit interactive mode")
		fmt.Fprintln(os.Stderr, "  Ctrl+C            - Cancel the request in progress")
		fmt.Fprintln(os.Stderr, "  Ctrl+D            - Exit interactive mode")
		fmt.Fprintln(os.Stderr, "")

	case "/info", "/i":
		conv := activeSession(ctx, r.app, r.engine)
		settings := r.settings.Get()
		fmt.Fprintln(os.Stderr, "\nSession Information:")
		fmt.Fprintf(os.Stderr, "  ID: %s\n", conv.ShortID())
		fmt.Fprintf(os.Stderr, "  Full ID: %s\n", conv.ID)
		fmt.Fprintf(os.Stderr, "  Title: %s\n", conv.DisplayName())
		fmt.Fprintf(os.Stderr, "  Messages: %d\n", len(r.engine.Transcript()))
		fmt.Fprintf(os.Stderr, "  Created: %s\n", conv.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(os.Stderr, "  History window: %d\n", settings.HistoryWindow)
		fmt.Fprintf(os.Stderr, "  Request timeout: %s\n", settings.RequestTimeout)
		fmt.Fprintln(os.Stderr, "")

	case "/history":
		turns := r.engine.Transcript()
		if len(turns) == 0 {
			fmt.Fprintln(os.Stderr, "No messages in this session.")
			break
		}
		printTurns(r.engine, turns)
		fmt.Println()

	case "/ask":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(r.suggestions) {
			fmt.Fprintf(os.Stderr, "Usage: /ask <n> with n between 1 and %d\n", len(r.suggestions))
			break
		}
		question := r.suggestions[n-1]
		fmt.Fprintf(os.Stderr, "You> %s\n", question)
		r.send(ctx, question)

	case "/bookmark", "/b":
		r.toggleBookmark(ctx, arg)

	case "/title":
		if arg == "" {
			fmt.Fprintln(os.Stderr, "Usage: /title <title>")
			break
		}
		if err := r.engine.Rename(ctx, arg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			break
		}
		fmt.Fprintf(os.Stderr, "Session renamed to \"%s\".\n", arg)

	case "/clear":
		if !confirm("Delete every message of this session?") {
			break
		}
		if err := r.engine.Clear(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			break
		}
		r.suggestions = nil
		fmt.Fprintln(os.Stderr, "Session cleared.")

	case "/export":
		if err := exportTranscript(r.engine, arg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}

	case "/exit", "/quit", "/q":
		fmt.Fprintln(os.Stderr, "Goodbye!")
		return false

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s (type '/help' for available commands)\n", name)
	}
	return true
}

// toggleBookmark toggles message n (1-based) or the last assistant turn.
func (r *interactive) toggleBookmark(ctx context.Context, arg string) {
	turns := r.engine.Transcript()

	var target *chat.Turn
	if arg == "" {
		for i := len(turns) - 1; i >= 0; i-- {
			if turns[i].Role == chat.RoleAssistant {
				target = &turns[i]
				break
			}
		}
		if target == nil {
			fmt.Fprintln(os.Stderr, "No answer to bookmark yet.")
			return
		}
	} else {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(turns) {
			fmt.Fprintf(os.Stderr, "Usage: /bookmark [n] with n between 1 and %d\n", len(turns))
			return
		}
		target = &turns[n-1]
	}

	on, err := r.engine.ToggleBookmark(ctx, target.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	if on {
		fmt.Fprintln(os.Stderr, "Bookmarked.")
	} else {
		fmt.Fprintln(os.Stderr, "Bookmark removed.")
	}
}
