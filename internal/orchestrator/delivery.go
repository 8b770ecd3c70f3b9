package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/shipwrecked/fleetcore/internal/channels"
	"github.com/shipwrecked/fleetcore/pkg/models"
)

// channelDelivery implements scheduler.Delivery by parsing a
// "channel:target" string (§4.H's deliverTo format) and sending through
// the matching registered OutboundAdapter.
type channelDelivery struct {
	channels *channels.Registry
}

func (d *channelDelivery) Deliver(ctx context.Context, target, text string) error {
	channel, chatID, ok := strings.Cut(target, ":")
	if !ok {
		return fmt.Errorf("orchestrator: malformed delivery target %q, want \"channel:target\"", target)
	}
	out, ok := d.channels.GetOutbound(models.ChannelType(channel))
	if !ok {
		return fmt.Errorf("orchestrator: channel %q has no outbound adapter registered", channel)
	}
	return out.Send(ctx, chatID, text)
}
