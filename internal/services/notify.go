package services

import (
	"context"
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go/v7"

	"qrticket/models"
	"qrticket/utils"
)

const (
	TicketChannelPrefix = "tickets"
	defaultNotifyBuffer = 256
)

// Publisher sends one message to a realtime channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, msg any) error
}

// ChangeSource is implemented by the store.
type ChangeSource interface {
	SubscribeToTicketChanges(fn func(models.TicketChange)) func()
}

type PubNubPublisher struct {
	pn *pubnub.PubNub
}

func NewPubNubPublisher(publishKey, subscribeKey, secretKey, userID string) *PubNubPublisher {
	cfg := pubnub.NewConfigWithUserId(pubnub.UserId(userID))
	cfg.PublishKey = publishKey
	cfg.SubscribeKey = subscribeKey
	cfg.SecretKey = secretKey

	return &PubNubPublisher{pn: pubnub.NewPubNub(cfg)}
}

func (p *PubNubPublisher) Publish(ctx context.Context, channel string, msg any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, st, err := p.pn.Publish().
		Channel(channel).
		Message(msg).
		Execute()
	if err != nil {
		return err
	}
	if st.Error != nil {
		return st.Error
	}
	if st.StatusCode >= 400 {
		return fmt.Errorf("pubnub publish: status %d", st.StatusCode)
	}
	return nil
}

// ChannelFor is the realtime channel carrying changes for one event.
func ChannelFor(eventID string) string {
	if eventID == "" {
		return TicketChannelPrefix
	}
	return TicketChannelPrefix + "." + eventID
}

// ChangeNotifier forwards ticket changes to a Publisher from its own
// goroutine so that store writes never wait on the network. Changes that do
// not fit in the buffer are dropped.
type ChangeNotifier struct {
	pub     Publisher
	breaker *utils.CircuitBreaker
	queue   chan models.TicketChange
}

func NewChangeNotifier(pub Publisher, buffer int) *ChangeNotifier {
	if buffer <= 0 {
		buffer = defaultNotifyBuffer
	}
	return &ChangeNotifier{
		pub:     pub,
		breaker: utils.NewCircuitBreaker("pubnub"),
		queue:   make(chan models.TicketChange, buffer),
	}
}

// Attach subscribes the notifier to src. The returned func detaches it.
func (n *ChangeNotifier) Attach(src ChangeSource) func() {
	return src.SubscribeToTicketChanges(n.Enqueue)
}

func (n *ChangeNotifier) Enqueue(c models.TicketChange) {
	select {
	case n.queue <- c:
	default:
		slog.Warn("Ticket change dropped, notifier queue full", "ticket", c.TicketID, "action", c.Action)
	}
}

// Run publishes queued changes until ctx is cancelled.
func (n *ChangeNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-n.queue:
			n.publish(ctx, c)
		}
	}
}

func (n *ChangeNotifier) publish(ctx context.Context, c models.TicketChange) {
	err := n.breaker.Execute(func() error {
		return n.pub.Publish(ctx, ChannelFor(c.EventID), c)
	})
	if err != nil {
		slog.Error("Failed to publish ticket change",
			"ticket", c.TicketID,
			"action", c.Action,
			"breaker", n.breaker.State().String(),
			"error", err,
		)
	}
}
