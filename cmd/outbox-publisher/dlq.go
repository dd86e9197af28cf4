package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrentals-backend/pkg/db/models"
	"github.com/angelmondragon/eventrentals-backend/pkg/enums"
	"github.com/angelmondragon/eventrentals-backend/pkg/outbox"
)

type dlqStore interface {
	List(ctx context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error)
	Replay(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) error
}

// runDLQ handles `outbox-publisher dlq list|replay`.
func runDLQ(ctx context.Context, db dbClient, store dlqStore, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: outbox-publisher dlq <list|replay> [flags]")
	}
	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("dlq list", flag.ContinueOnError)
		fs.SetOutput(out)
		reason := fs.String("reason", "", "filter by error reason (max_attempts, non_retryable)")
		eventType := fs.String("type", "", "filter by event type")
		limit := fs.Int("limit", 50, "maximum rows")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		filter := outbox.DLQFilter{
			Reason:    enums.OutboxDLQErrorReason(*reason),
			EventType: enums.OutboxEventType(*eventType),
			Limit:     *limit,
		}
		if filter.Reason != "" && !filter.Reason.IsValid() {
			return fmt.Errorf("unknown reason %q", *reason)
		}
		if filter.EventType != "" && !filter.EventType.IsValid() {
			return fmt.Errorf("unknown event type %q", *eventType)
		}
		rows, err := store.List(ctx, filter)
		if err != nil {
			return err
		}
		return printDLQ(out, rows)
	case "replay":
		if len(args) < 2 {
			return errors.New("usage: outbox-publisher dlq replay <event-id>...")
		}
		for _, raw := range args[1:] {
			id, err := uuid.Parse(raw)
			if err != nil {
				return fmt.Errorf("invalid event id %q", raw)
			}
			if err := db.WithTx(ctx, func(tx *gorm.DB) error {
				return store.Replay(ctx, tx, id)
			}); err != nil {
				return fmt.Errorf("replay %s: %w", id, err)
			}
			fmt.Fprintf(out, "requeued %s\n", id)
		}
		return nil
	default:
		return fmt.Errorf("unknown dlq command %q", args[0])
	}
}

func printDLQ(out io.Writer, rows []models.OutboxDLQ) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT ID\tTYPE\tAGGREGATE\tREASON\tATTEMPTS\tFAILED AT\tERROR")
	for _, row := range rows {
		msg := ""
		if row.ErrorMessage != nil {
			msg = *row.ErrorMessage
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			row.EventID, row.EventType, row.AggregateID, row.ErrorReason,
			row.AttemptCount, row.FailedAt.UTC().Format(time.RFC3339), msg)
	}
	return tw.Flush()
}
