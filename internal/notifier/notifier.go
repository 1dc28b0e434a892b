// Package notifier fans lifecycle events out to connected clients. It is
// stateless: the transport owns connections, the system of record is the
// ledger, and a failed delivery is dropped after logging.
package notifier

import (
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go"

	"qsmart/monitoring"
	"qsmart/utils"
)

// Publisher is the transport the notifier pushes messages into. The
// concrete implementation maps channels to connected clients; the notifier
// never holds connection state itself.
type Publisher interface {
	Publish(channel string, message map[string]any) error
}

// PubNubPublisher adapts a PubNub client to the Publisher interface.
type PubNubPublisher struct {
	pn *pubnub.PubNub
}

func NewPubNubPublisher(pn *pubnub.PubNub) *PubNubPublisher {
	return &PubNubPublisher{pn: pn}
}

func (p *PubNubPublisher) Publish(channel string, message map[string]any) error {
	_, _, err := p.pn.Publish().
		Channel(channel).
		Message(message).
		Execute()
	return err
}

// Notifier delivers payloads to the three audience scopes. Delivery is
// synchronous best-effort against the Publisher; the dispatcher decides
// about asynchrony.
type Notifier struct {
	publisher Publisher
	breaker   *utils.CircuitBreaker
}

func New(publisher Publisher) *Notifier {
	return &Notifier{
		publisher: publisher,
		breaker:   utils.NewCircuitBreaker("notifier"),
	}
}

// NotifyTicketOwner delivers to the requesting user's private channel.
func (n *Notifier) NotifyTicketOwner(userID, eventName string, payload map[string]any) {
	n.publish(fmt.Sprintf("user-%s", userID), eventName, payload)
}

// NotifyQueueViewers delivers to every client watching the queue's public
// channel.
func (n *Notifier) NotifyQueueViewers(queueID, eventName string, payload map[string]any) {
	n.publish(fmt.Sprintf("queue-%s", queueID), eventName, payload)
}

// NotifyQueueManagers delivers to the queue's management dashboards.
func (n *Notifier) NotifyQueueManagers(queueID, eventName string, payload map[string]any) {
	n.publish(fmt.Sprintf("manage-queue-%s", queueID), eventName, payload)
}

func (n *Notifier) publish(channel, eventName string, payload map[string]any) {
	message := map[string]any{"event": eventName}
	for k, v := range payload {
		message[k] = v
	}

	err := n.breaker.Execute(func() error {
		return n.publisher.Publish(channel, message)
	})
	if err != nil {
		monitoring.RecordNotification("dropped")
		slog.Warn("notification dropped", "channel", channel, "event", eventName, "error", err)
		return
	}
	monitoring.RecordNotification("delivered")
}
