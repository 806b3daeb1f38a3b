package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yamops/yamkeeper/internal/domain"
)

// EventsChannel is the pub/sub channel engine events travel over between
// processes.
const EventsChannel = "yamkeeper:events"

// BusEvent is the wire form of an engine event on the signal bus. The
// websocket relay forwards it to browser clients verbatim.
type BusEvent struct {
	Event   string    `json:"event"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// BusSender publishes notifications to the signal bus so a server-mode
// process can relay them to its websocket clients.
type BusSender struct {
	bus     domain.SignalBus
	channel string
	now     func() time.Time
}

// NewBusSender creates a BusSender publishing to EventsChannel.
func NewBusSender(bus domain.SignalBus) *BusSender {
	return &BusSender{bus: bus, channel: EventsChannel, now: time.Now}
}

// Send publishes the event as JSON.
func (b *BusSender) Send(ctx context.Context, event, title, message string) error {
	payload, err := json.Marshal(BusEvent{
		Event:   event,
		Title:   title,
		Message: message,
		At:      b.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("notify: marshal bus event: %w", err)
	}
	return b.bus.Publish(ctx, b.channel, payload)
}

// Name returns the sender identifier.
func (b *BusSender) Name() string {
	return "bus"
}
