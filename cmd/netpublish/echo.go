package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360/netpublish/output/rosbus"
)

func newEchoCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "echo [topic]",
		Short: "Print the messages published on the robotics bus",
		Long: `echo subscribes to a topic of the robotics bus and prints every message.
Without a topic it prints everything under ` + rosbus.GraphRoot + `.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := rosbus.GraphRoot
			if len(args) == 1 {
				topic = strings.Trim(args[0], "/")
			}
			if err := rosbus.ValidateGraphName(topic); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return echo(ctx, root, topic, cmd.OutOrStdout())
		},
	}
	return cmd
}

func echo(ctx context.Context, root *rootOptions, topic string, out io.Writer) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Log, os.Stderr)

	client, err := connectNATS(ctx, cfg.NATS, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		_ = client.Close(closeCtx)
	}()

	printMessage := messagePrinter(out)
	subject := rosbus.Subject(topic)
	for _, s := range []string{subject, subject + ".>"} {
		if err := client.Subscribe(ctx, s, func(_ context.Context, data []byte) { printMessage(data) }); err != nil {
			return err
		}
	}
	logger.Info("listening", "topic", topic, "subject", subject)

	<-ctx.Done()
	return nil
}

// messagePrinter returns a handler that writes one line per bus message.
// Messages that do not decode are reported inline.
func messagePrinter(out io.Writer) func(data []byte) {
	var mu sync.Mutex
	return func(data []byte) {
		mu.Lock()
		defer mu.Unlock()
		m, err := rosbus.Decode(data)
		if err != nil {
			_, _ = fmt.Fprintf(out, "undecodable message: %v\n", err)
			return
		}
		_, _ = fmt.Fprintf(out, "%s %s [%s] %v\n", m.Stamp.UTC().Format(time.RFC3339Nano), m.Topic, m.Type, m.Data)
	}
}
