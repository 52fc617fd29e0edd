package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/longkey1/advchat/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "advchat",
	Short: "A CLI client for a conversational answering service",
	Long: `advchat sends your questions to a remote answering service and keeps
the conversation history in a local database.

Conversations are called sessions. Each answer may come with suggested
follow-up questions, and any message can be bookmarked.
You can configure the tool using a TOML configuration file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogger()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/advchat/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text, json)")
	rootCmd.PersistentFlags().String("log-file", "", "Also write logs to this file (rotated)")

	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetEnvPrefix("ADVCHAT")
	viper.AutomaticEnv()

	userConfigDir, err := config.DefaultDir()
	cobra.CheckErr(err)

	// Later directories in the array take precedence over earlier ones
	defaultPromptDirs := []string{
		"/usr/share/advchat/prompts",
		"/usr/local/share/advchat/prompts",
		filepath.Join(userConfigDir, "prompts"),
	}
	config.SetDefaults(viper.GetViper(), defaultPromptDirs)

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
		return
	}

	// Load system-wide config first (lower priority)
	viper.AddConfigPath("/etc/advchat")
	viper.AddConfigPath("/usr/local/etc/advchat")
	viper.SetConfigType("toml")
	viper.SetConfigName("config")

	systemConfigLoaded := viper.ReadInConfig() == nil

	// Load user config (higher priority) - merge with system config
	viper.AddConfigPath(userConfigDir)
	if systemConfigLoaded {
		if err := viper.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				fmt.Fprintf(os.Stderr, "Error merging user config file: %v\n", err)
			}
		}
	} else if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
	}
}

// configFileLogged is set once the config file in use has been logged.
var configFileLogged bool

func logConfigFile() {
	if configFileLogged {
		return
	}
	configFileLogged = true
	log.Debug().
		Str("config", viper.ConfigFileUsed()).
		Str("endpoint", viper.GetString("endpoint")).
		Strs("prompt_dirs", viper.GetStringSlice("prompt_dirs")).
		Msg("Loaded configuration")
}
