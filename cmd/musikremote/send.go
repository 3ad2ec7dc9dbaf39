package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	remote "github.com/musikcube/remote/sdk/golang"
)

var (
	sendTimeout time.Duration
	sendRaw     bool
)

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 15*time.Second, "how long to wait for the reply")
	sendCmd.Flags().BoolVar(&sendRaw, "raw", false, "print the reply frame without indentation")
}

var sendCmd = &cobra.Command{
	Use:   "send <name> [key=value...]",
	Short: "Send a request and print the reply",
	Long: "Send a single request to the server and print its reply.\n" +
		"Example: musikremote send set_volume volume=50",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		options, err := parseOptions(args[1:])
		if err != nil {
			return err
		}

		svc, _, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
		defer cancel()
		if err := connect(ctx, svc, newConnection()); err != nil {
			return err
		}

		reply, err := request(ctx, svc, args[0], options)
		if err != nil {
			return err
		}
		return printMessage(reply, sendRaw)
	},
}

func request(ctx context.Context, svc *remote.Service, name string, options map[string]any) (*remote.Message, error) {
	msg := remote.NewRequest(name)
	for k, v := range options {
		msg.With(k, v)
	}
	reply, err := svc.Request(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return reply, nil
}

func printMessage(msg *remote.Message, raw bool) error {
	text, err := msg.Encode()
	if err != nil {
		return err
	}
	if raw {
		fmt.Println(text)
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(text), "", "  "); err != nil {
		return err
	}
	fmt.Println(buf.String())
	return nil
}
