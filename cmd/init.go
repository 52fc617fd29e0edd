package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/longkey1/advchat/internal/config"
	promptpkg "github.com/longkey1/advchat/internal/prompt"
	"github.com/longkey1/advchat/internal/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	initEndpoint string
	initForce    bool
)

// samplePrompt is written to the prompts directory on init.
var samplePrompt = promptpkg.Template{
	System: "You are a helpful credit card advisor. Answer in {{lang}}.",
	User:   "{{input}}",
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the configuration file, prompts directory and database",
	Long: `Create a configuration file with default settings, a prompts directory
holding an example template, and the conversation database.

The config file is created at $HOME/.config/advchat/config.toml unless
--config points elsewhere. Relative paths in it are resolved against the
directory of the config file.

Set endpoint (or pass --endpoint) to the URL of the answering service before chatting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile := cfgFile
		if configFile == "" {
			dir, err := config.DefaultDir()
			if err != nil {
				return err
			}
			configFile = filepath.Join(dir, "config.toml")
		}
		configDir := filepath.Dir(configFile)

		if err := os.MkdirAll(configDir, 0755); err != nil {
			return errors.Wrap(err, "failed to create config directory")
		}

		cfg := config.NewDefaultConfig("prompts")
		cfg.Endpoint = initEndpoint
		if err := writeTOML(configFile, cfg, initForce, 0600); err != nil {
			return err
		}
		fmt.Printf("Configuration file created at: %s\n", configFile)

		promptsDir := filepath.Join(configDir, "prompts")
		if err := os.MkdirAll(promptsDir, 0755); err != nil {
			return errors.Wrap(err, "failed to create prompts directory")
		}
		example := filepath.Join(promptsDir, "advisor.toml")
		switch err := writeTOML(example, samplePrompt, false, 0644); {
		case err == nil:
			fmt.Printf("Example prompt created at: %s\n", example)
		case errors.Is(err, os.ErrExist):
			log.Debug().Str("path", example).Msg("Example prompt already present")
		default:
			return err
		}

		dbPath := filepath.Join(configDir, cfg.DatabasePath)
		st, err := store.Open(cmd.Context(), dbPath)
		if err != nil {
			return err
		}
		if err := st.Close(); err != nil {
			return errors.Wrap(err, "failed to close database")
		}
		fmt.Printf("Database initialized at: %s\n", dbPath)
		return nil
	},
}

// writeTOML encodes v into path. Without overwrite an existing file is
// an error wrapping os.ErrExist.
func writeTOML(path string, v any, overwrite bool, perm os.FileMode) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, perm)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return errors.Wrapf(err, "%s already exists (use --force to overwrite the config)", path)
		}
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(v); err != nil {
		return errors.Wrapf(err, "failed to encode %s", path)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initEndpoint, "endpoint", "", "URL of the answering service")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing config file")
}
