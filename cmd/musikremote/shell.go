package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	remote "github.com/musikcube/remote/sdk/golang"
)

var shellTimeout time.Duration

func init() {
	rootCmd.AddCommand(shellCmd)
	shellCmd.Flags().DurationVar(&shellTimeout, "timeout", 15*time.Second, "how long to wait for each reply")
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive request shell",
	Long:  "Open an interactive shell. Each line is a request: <name> [key=value...].\nBroadcasts and state changes are printed as they arrive.",
	RunE: func(cmd *cobra.Command, args []string) error {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "musik> ",
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return fmt.Errorf("failed to create readline: %w", err)
		}
		defer rl.Close()

		svc, cfg, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		out := rl.Stdout()
		conn := newConnection()
		conn.StateChanged = func(newState, oldState remote.State) {
			if newState != oldState {
				fmt.Fprintf(out, "[state] %s -> %s\n", oldState, newState)
			}
		}
		conn.MessageReceived = func(msg *remote.Message) {
			fmt.Fprintf(out, "[%s] %s\n", valueOrDefault(msg.Type, "message"), msg)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), shellTimeout)
		err = connect(ctx, svc, conn)
		cancel()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Connected to %s. Type 'help' for commands.\n", cfg.Server.URL())

		for {
			line, err := rl.Readline()
			if err != nil {
				if err == readline.ErrInterrupt {
					continue
				}
				fmt.Fprintln(out, "Exiting...")
				return nil
			}

			input := strings.TrimSpace(line)
			if input == "" {
				continue
			}
			parts := strings.Fields(input)

			switch strings.ToLower(parts[0]) {
			case "help", "?":
				printShellHelp(out)
			case "exit", "quit":
				return nil
			case "state":
				fmt.Fprintln(out, svc.State())
			default:
				runShellRequest(cmd.Context(), svc, out, parts)
			}
		}
	},
}

func runShellRequest(parent context.Context, svc *remote.Service, out io.Writer, parts []string) {
	options, err := parseOptions(parts[1:])
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	ctx, cancel := context.WithTimeout(parent, shellTimeout)
	defer cancel()

	started := time.Now()
	reply, err := request(ctx, svc, parts[0], options)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "%s (%s)\n", reply, time.Since(started).Round(time.Millisecond))
}

func printShellHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  <name> [key=value...]   send a request and print the reply")
	fmt.Fprintln(out, "  state                   print the connection state")
	fmt.Fprintln(out, "  help                    show this help")
	fmt.Fprintln(out, "  exit                    leave the shell")
}
