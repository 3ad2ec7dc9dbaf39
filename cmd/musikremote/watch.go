package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	remote "github.com/musikcube/remote/sdk/golang"
)

var (
	watchTrace   string
	watchMetrics string
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchTrace, "trace", "", "record every frame and state change to a CBOR trace file")
	watchCmd.Flags().StringVar(&watchMetrics, "metrics", "", "serve Prometheus metrics on this address (e.g. :9105)")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print connection state changes and server broadcasts",
	Long:  "Stay connected to the server, reconnecting as needed, and print every state change and broadcast until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var opts []remote.Option

		if watchTrace != "" {
			tracer, err := remote.CreateTraceFile(watchTrace)
			if err != nil {
				return err
			}
			defer func() {
				if err := tracer.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "trace: %v\n", err)
				}
			}()
			opts = append(opts, remote.WithTracer(tracer))
		}

		if watchMetrics != "" {
			metrics := remote.NewMetrics("musikremote")
			reg := prometheus.NewRegistry()
			if err := metrics.Register(reg); err != nil {
				return fmt.Errorf("register metrics: %w", err)
			}
			srv := &http.Server{
				Addr:              watchMetrics,
				Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					fmt.Fprintf(os.Stderr, "metrics: %v\n", err)
				}
			}()
			defer srv.Shutdown(context.Background())
			opts = append(opts, remote.WithMetrics(metrics))
		}

		svc, cfg, err := newService(opts...)
		if err != nil {
			return err
		}
		defer svc.Close()

		fmt.Printf("Watching %s (Ctrl-C to stop)\n", cfg.Server.URL())
		since := time.Now()
		var received uint64

		watcher := &remote.ClientFuncs{
			StateChanged: func(newState, oldState remote.State) {
				if newState == oldState {
					return
				}
				fmt.Printf("%s  state  %s -> %s\n", time.Now().Format(time.TimeOnly), oldState, newState)
			},
			MessageReceived: func(msg *remote.Message) {
				received++
				fmt.Printf("%s  %-6s %s %s\n", time.Now().Format(time.TimeOnly), valueOrDefault(msg.Type, "?"), msg.Name, msg)
			},
			InvalidCredentials: func() {
				fmt.Println("server rejected the password; fix it with 'musikremote config set server.password <password>'")
				stop()
			},
		}
		svc.Post(func() { svc.RegisterClient(watcher) })

		<-ctx.Done()

		ictx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Invoke(ictx, func() {
			fmt.Printf("\n%s messages since %s\n", humanize.Comma(int64(received)), humanize.Time(since))
		})
		return nil
	},
}
