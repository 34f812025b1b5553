package services

import (
	"context"
	"fmt"
	"log/slog"

	"ticket-inventory/models"

	pubnub "github.com/pubnub/go/v7"
)

// Notifier pushes realtime updates to gate displays and checkout pages.
// Delivery is best effort; failures are logged and never affect the caller.
type Notifier interface {
	NotifyScan(ctx context.Context, ev models.ScanEvent)
	NotifyPayment(ctx context.Context, n models.PaymentNotification)
}

func GateChannel(eventID string) string {
	return fmt.Sprintf("gate-%s", eventID)
}

func PaymentChannel(paymentRef string) string {
	return fmt.Sprintf("payment-%s", paymentRef)
}

type PubNubNotifier struct {
	pn *pubnub.PubNub
}

func NewPubNubNotifier(pn *pubnub.PubNub) *PubNubNotifier {
	return &PubNubNotifier{pn: pn}
}

func (n *PubNubNotifier) NotifyScan(ctx context.Context, ev models.ScanEvent) {
	n.publish(GateChannel(ev.EventID), map[string]any{
		"type":      "scan",
		"ticket_id": ev.TicketID,
		"gate_id":   ev.GateID,
		"outcome":   ev.Outcome,
		"reason":    ev.Reason,
		"timestamp": ev.Timestamp.Unix(),
	})
}

func (n *PubNubNotifier) NotifyPayment(ctx context.Context, p models.PaymentNotification) {
	n.publish(PaymentChannel(p.PaymentRef), map[string]any{
		"type":           "payment_" + p.Status,
		"payment_ref":    p.PaymentRef,
		"transaction_id": p.TransactionID,
		"amount":         p.Amount.String(),
		"timestamp":      p.Timestamp.Unix(),
	})
}

func (n *PubNubNotifier) publish(channel string, msg map[string]any) {
	if n == nil || n.pn == nil {
		return
	}
	if _, _, err := n.pn.Publish().Channel(channel).Message(msg).Execute(); err != nil {
		slog.Warn("pubnub publish failed", "channel", channel, "error", err)
	}
}
