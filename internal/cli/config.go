package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/blackarch/wordlistctl/internal/logger"
	"github.com/blackarch/wordlistctl/pkg/config"
	"github.com/blackarch/wordlistctl/pkg/errors"
	"github.com/blackarch/wordlistctl/pkg/proxy"
)

// NewConfigCmd creates the config command with subcommands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  "View and modify wordlistctl configuration settings",
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigSetCmd(),
		newConfigGetCmd(),
		newConfigInitCmd(),
		newConfigPathCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the effective configuration settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, asYAML)
		},
	}

	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print the configuration as a YAML document")

	return cmd
}

func newConfigSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a configuration value",
		Long:  "Set a configuration key such as settings.workers to a specific value",
		Args:  cobra.ExactArgs(setCommandArgs),
		RunE: func(_ *cobra.Command, args []string) error {
			return runConfigSet(args[0], args[1])
		},
	}

	return cmd
}

func newConfigGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Get a configuration value",
		Long:  "Get the value of a specific configuration key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(cmd, args[0])
		},
	}

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file",
		Long:  "Create a default configuration file",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runConfigInit(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration file")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), getConfigPath())
		},
	}
}

func runConfigShow(cmd *cobra.Command, asYAML bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Never echo proxy credentials.
	shown := *cfg
	shown.Settings.Proxy = proxy.Redact(cfg.Settings.Proxy)

	out := cmd.OutOrStdout()
	if asYAML {
		data, err := shown.ToYAML()
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}

	tabWriter := tabwriter.NewWriter(out, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tabWriter, "SETTING\tVALUE")
	_, _ = fmt.Fprintln(tabWriter, "-------\t-----")

	values := shown.ToMap()
	for _, key := range shown.Keys() {
		_, _ = fmt.Fprintf(tabWriter, "%s\t%s\n", key, values[key])
	}

	_ = tabWriter.Flush()

	if len(cfg.Resolver.Rules) > 0 {
		_, _ = fmt.Fprintf(out, "\nResolver rules (%d):\n", len(cfg.Resolver.Rules))
		for _, rule := range cfg.Resolver.Rules {
			_, _ = fmt.Fprintf(out, "  %s: %s\n", rule.Prefix, rule.Label)
		}
	}

	return nil
}

func runConfigSet(key, value string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := cfg.SetValue(key, value); err != nil {
		return fmt.Errorf("failed to set configuration value: %w", err)
	}

	configPath := getConfigPath()
	if err := cfg.SaveConfig(configPath); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	if key == "settings.proxy" {
		value = proxy.Redact(value)
	}
	logger.Success("Configuration updated", logger.Fields{"key": key, "value": value})

	return nil
}

func runConfigGet(cmd *cobra.Command, key string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	value, err := cfg.GetValue(key)
	if err != nil {
		return fmt.Errorf("failed to get configuration value: %w", err)
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runConfigInit(force bool) error {
	configPath := getConfigPath()

	// Check if config file already exists
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite): %w", configPath, errors.ErrConfigFileExists)
	}

	defaultConfig := config.DefaultConfig()
	if err := defaultConfig.SaveConfig(configPath); err != nil {
		return fmt.Errorf("failed to save default configuration: %w", err)
	}

	logger.Success("Configuration file created", logger.Fields{"path": configPath})
	return nil
}
