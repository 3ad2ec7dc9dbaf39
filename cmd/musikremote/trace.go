package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	remote "github.com/musikcube/remote/sdk/golang"
)

func init() {
	rootCmd.AddCommand(traceCmd)
}

var traceCmd = &cobra.Command{
	Use:   "trace <file>",
	Short: "Print a trace recorded with 'watch --trace'",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("cannot open trace: %w", err)
		}
		defer f.Close()

		var (
			count int
			bytes uint64
			first time.Time
		)
		err = remote.ReadTrace(f, func(rec remote.TraceRecord) error {
			if count == 0 {
				first = rec.Time
			}
			count++
			bytes += uint64(len(rec.Text))
			fmt.Printf("%s  %-5s %-20s %s\n", rec.Time.Format("15:04:05.000"), rec.Direction, rec.Attempt, rec.Text)
			return nil
		})
		if err != nil {
			return err
		}

		if count > 0 {
			fmt.Printf("\n%s records, %s of text, starting %s\n",
				humanize.Comma(int64(count)), humanize.Bytes(bytes), humanize.Time(first))
		}
		return nil
	},
}
