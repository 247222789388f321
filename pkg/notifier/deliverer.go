package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/parley/pkg/eventbus"
	"github.com/dukex/parley/pkg/events"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxErrorBody = 4 << 10

// Deliverer consumes bus events. Acknowledgements are posted as JSON to the messaging
// layer's webhook, or only logged when no webhook is configured. Delivery is best
// effort: a failed post is logged and the message is acked.
type Deliverer struct {
	webhookURL string
	client     *http.Client
	logger     *slog.Logger
}

func NewDeliverer(webhookURL string, timeout time.Duration, logger *slog.Logger) *Deliverer {
	return &Deliverer{
		webhookURL: strings.TrimSpace(webhookURL),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Register binds the deliverer's handlers on sub. Call it before sub.Subscribe.
func (d *Deliverer) Register(sub eventbus.EventSubscriber) error {
	if err := sub.Handle(events.AcknowledgementRequestedType, d.handleAcknowledgement); err != nil {
		return err
	}

	return sub.Handle(events.WorkEventCommittedType, d.handleWorkEvent)
}

func (d *Deliverer) handleAcknowledgement(ctx context.Context, event any) error {
	ack, ok := event.(*events.AcknowledgementRequested)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	if d.webhookURL == "" {
		d.logger.InfoContext(ctx, "acknowledgement",
			"conversation_id", ack.ConversationID,
			"target_account_id", ack.TargetAccountID,
			"text", ack.Text,
		)

		return nil
	}

	if err := d.post(ctx, ack); err != nil {
		d.logger.ErrorContext(ctx, "acknowledgement not delivered",
			"conversation_id", ack.ConversationID,
			"event_id", ack.ID,
			"error", err,
		)

		return nil
	}

	d.logger.DebugContext(ctx, "acknowledgement delivered", "conversation_id", ack.ConversationID, "event_id", ack.ID)

	return nil
}

func (d *Deliverer) handleWorkEvent(ctx context.Context, event any) error {
	committed, ok := event.(*events.WorkEventCommitted)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	d.logger.DebugContext(ctx, "work event committed",
		"work_id", committed.Event.WorkID,
		"type", committed.Event.Type,
		"revision", committed.Event.WorkRevision,
	)

	return nil
}

func (d *Deliverer) post(ctx context.Context, ack *events.AcknowledgementRequested) error {
	body, err := json.Marshal(ack)
	if err != nil {
		return fmt.Errorf("failed to encode acknowledgement: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create acknowledgement request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("acknowledgement request failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return nil
}
