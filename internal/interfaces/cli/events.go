package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/colinvwood/taxa-barplot/internal/infrastructure/messaging/kafka"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
)

type eventsOptions struct {
	group     string
	fromStart bool
	topics    []string
	limit     int
}

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect view and dataset events",
	}
	cmd.AddCommand(newEventsTailCmd())
	return cmd
}

func newEventsTailCmd() *cobra.Command {
	o := &eventsOptions{}
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print events as they are published",
		Long: "tail joins a consumer group on the view and dataset topics and prints\n" +
			"each event until interrupted or --limit events were seen.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEventsTail(cmd, o)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&o.group, "group", "taxabar-cli", "consumer group id")
	fl.BoolVar(&o.fromStart, "from-start", false, "start from the earliest offset when the group has none")
	fl.StringSliceVar(&o.topics, "topic", nil, "topics to follow (default: kafka.view_topic and kafka.dataset_topic)")
	fl.IntVar(&o.limit, "limit", 0, "stop after this many events (0 = until interrupted)")
	return cmd
}

func runEventsTail(cmd *cobra.Command, o *eventsOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	kcfg := cliCtx.Config.Kafka
	topics := o.topics
	if len(topics) == 0 {
		topics = []string{kcfg.ViewTopic, kcfg.DatasetTopic}
	}

	consumer, err := kafka.NewConsumer(&kcfg, o.group, topics, o.fromStart, cliCtx.Logger.Named("events"))
	if err != nil {
		return err
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	seen := 0
	err = consumer.Run(ctx, func(_ context.Context, ev *kafka.ReceivedEvent) error {
		if err := printEvent(cmd, cliCtx.OutputFormat, ev); err != nil {
			return err
		}
		seen++
		if o.limit > 0 && seen >= o.limit {
			cancel()
		}
		return nil
	})
	stats := consumer.Stats()
	cliCtx.Logger.Info("Event tail finished",
		logging.Int64("consumed", stats.Consumed),
		logging.Int64("failed", stats.Failed))
	return err
}

// printEvent writes one event per line so the output can be piped.
func printEvent(cmd *cobra.Command, format string, ev *kafka.ReceivedEvent) error {
	out := cmd.OutOrStdout()
	if format == "json" {
		return json.NewEncoder(out).Encode(eventLine{ReceivedEvent: ev, Topic: ev.Topic, Offset: ev.Offset})
	}
	payload := strings.TrimSpace(string(ev.Payload))
	_, err := fmt.Fprintf(out, "%s  %-32s  %-12s  %s\n",
		ev.OccurredAt.Format("15:04:05.000"), color.GreenString(string(ev.Type)), ev.DatasetID, payload)
	return err
}

type eventLine struct {
	*kafka.ReceivedEvent
	Topic  string `json:"topic"`
	Offset int64  `json:"offset"`
}
