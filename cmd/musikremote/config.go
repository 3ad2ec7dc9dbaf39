package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage musikremote configuration",
	Long:  "View or modify the musikremote configuration stored in ~/.musikremote/config.toml.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		path, _ := configPath()

		fmt.Printf("File:                 %s\n", path)
		fmt.Println()
		fmt.Println("[server]")
		fmt.Printf("  address:            %s\n", valueOrDefault(cfg.Server.Address, "(not set)"))
		fmt.Printf("  port:               %d\n", cfg.Server.Port)
		fmt.Printf("  tls:                %t\n", cfg.Server.TLS)
		fmt.Printf("  password:           %s\n", maskKey(cfg.Server.Password))
		fmt.Printf("  compression:        %t\n", cfg.Server.Compression)
		fmt.Printf("  insecure_skip_verify: %t\n", cfg.Server.InsecureSkipVerify)
		fmt.Printf("  device_id:          %s\n", valueOrDefault(cfg.Server.DeviceID, "(not set)"))
		fmt.Println("[log]")
		fmt.Printf("  level:              %s\n", cfg.Log.Level)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value using dot notation.\nExample: musikremote config set server.password hunter2",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := setConfigValue(cfg, key, value); err != nil {
			return err
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		if key == "server.password" {
			value = maskKey(value)
		}
		fmt.Printf("Set %s = %s\n", key, value)
		return nil
	},
}
