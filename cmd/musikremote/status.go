package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	remote "github.com/musikcube/remote/sdk/golang"
)

var statusTimeout time.Duration

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 10*time.Second, "how long to wait for the server")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and check the server connection",
	Long:  "Display the current configuration, connect and authenticate with the server, and measure a ping round trip.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		fmt.Println("Configuration:")
		fmt.Printf("  Server:      %s\n", cfg.Server.URL())
		fmt.Printf("  Password:    %s\n", maskKey(cfg.Server.Password))
		fmt.Printf("  Compression: %t\n", cfg.Server.Compression)
		if cfg.Server.InsecureSkipVerify {
			fmt.Println("  TLS:         certificate validation disabled")
		}

		if !cfg.Server.Valid() {
			fmt.Println()
			fmt.Println("No server configured. Run 'musikremote init <address>' first.")
			return nil
		}

		svc, _, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
		defer cancel()

		fmt.Println()
		fmt.Println("Live status:")

		started := time.Now()
		if err := connect(ctx, svc, newConnection()); err != nil {
			fmt.Printf("  Connection:  failed (%v)\n", err)
			return nil
		}
		fmt.Printf("  Connection:  authenticated in %s\n", time.Since(started).Round(time.Millisecond))

		sent := time.Now()
		if _, err := svc.Request(ctx, remote.NewRequest(remote.RequestPing)); err != nil {
			fmt.Printf("  Ping:        failed (%v)\n", err)
			return nil
		}
		fmt.Printf("  Ping:        %s\n", time.Since(sent).Round(time.Microsecond))

		overview, err := svc.Request(ctx, remote.NewRequest("get_playback_overview"))
		if err != nil {
			fmt.Printf("  Playback:    unavailable (%v)\n", err)
			return nil
		}
		fmt.Printf("  Playback:    %s\n", valueOrDefault(overview.StringOption("state", ""), "unknown"))
		if title := overview.StringOption("title", ""); title != "" {
			fmt.Printf("  Track:       %s\n", title)
		}
		fmt.Printf("  Reply size:  %s\n", humanize.Bytes(uint64(len(overview.String()))))
		return nil
	},
}
