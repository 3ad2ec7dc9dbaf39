package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	initPort     int
	initPassword string
	initTLS      bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().IntVar(&initPort, "port", 0, "server port (default 7905)")
	initCmd.Flags().StringVar(&initPassword, "password", "", "server password")
	initCmd.Flags().BoolVar(&initTLS, "tls", false, "connect with wss://")
}

var initCmd = &cobra.Command{
	Use:   "init <address>",
	Short: "Store the server address in ~/.musikremote/config.toml",
	Long:  "Initialize musikremote by storing the server address, and optionally port and password, in the local configuration file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		cfg.Server.Address = args[0]
		if initPort > 0 {
			cfg.Server.Port = initPort
		}
		if cmd.Flags().Changed("password") {
			cfg.Server.Password = initPassword
		}
		if cmd.Flags().Changed("tls") {
			cfg.Server.TLS = initTLS
		}
		if cfg.Server.DeviceID == "" {
			cfg.Server.DeviceID = uuid.NewString()
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		path, _ := configPath()
		fmt.Printf("Server %s saved to %s\n", cfg.Server.URL(), path)
		return nil
	},
}
