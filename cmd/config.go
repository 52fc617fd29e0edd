package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/longkey1/advchat/internal/config"
	"github.com/longkey1/advchat/internal/identity"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// configFields lists the fields "advchat config <field>" understands.
var configFields = []string{
	"configfile", "endpoint", "auth_token", "system_prompt", "max_history", "request_timeout",
	"user_id", "database_path", "prompt_dirs", "session_message_threshold", "session_retention_days",
	"log_level", "log_format", "log_file",
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config [field]",
	Short: "Display current configuration",
	Long: `Display the current configuration values.
This command shows all configuration values loaded from the config file and environment variables.

If a field name is specified, only that field's value is displayed.
Available fields: ` + strings.Join(configFields, ", ") + `

Examples:
  advchat config                  # Show all configuration
  advchat config endpoint         # Show only the endpoint
  advchat config auth_token       # Show only the (masked) token
  advchat config database_path    # Show only the database path`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		values := configValues(cfg)

		if len(args) > 0 {
			field := strings.ToLower(args[0])
			value, ok := values[field]
			if !ok {
				fmt.Fprintf(os.Stderr, "Unknown field: %s\n", args[0])
				fmt.Fprintf(os.Stderr, "Available fields: %s\n", strings.Join(configFields, ", "))
				return fmt.Errorf("unknown field: %s", args[0])
			}
			fmt.Println(value)
			return nil
		}

		for _, field := range configFields {
			fmt.Printf("%s: %s\n", field, values[field])
		}
		return nil
	},
}

func configValues(cfg *config.Config) map[string]string {
	userID := cfg.UserID
	if userID == "" {
		if derived, err := identity.Resolve(""); err == nil {
			userID = derived + " (derived)"
		}
	}

	return map[string]string{
		"configfile":                viper.ConfigFileUsed(),
		"endpoint":                  cfg.Endpoint,
		"auth_token":                maskToken(cfg.AuthToken),
		"system_prompt":             cfg.SystemPrompt,
		"max_history":               fmt.Sprint(cfg.MaxHistory),
		"request_timeout":           cfg.RequestTimeout,
		"user_id":                   userID,
		"database_path":             cfg.DatabasePath,
		"prompt_dirs":               strings.Join(cfg.PromptDirs, ","),
		"session_message_threshold": fmt.Sprint(cfg.SessionMessageThreshold),
		"session_retention_days":    fmt.Sprint(cfg.SessionRetentionDays),
		"log_level":                 cfg.LogLevel,
		"log_format":                cfg.LogFormat,
		"log_file":                  cfg.LogFile,
	}
}

// maskToken returns a masked version of the token for security
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "********"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func init() {
	rootCmd.AddCommand(configCmd)
}
