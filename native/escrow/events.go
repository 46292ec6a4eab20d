package escrow

import (
	"strconv"

	"github.com/gagliardetto/solana-go"

	"escrowvault/core/types"
)

const (
	EventTypeOfferMade      = "escrow.offer.made"
	EventTypeOfferTaken     = "escrow.offer.taken"
	EventTypeOfferCancelled = "escrow.offer.cancelled"
)

// NewMadeEvent returns the canonical event payload for a newly funded offer.
func NewMadeEvent(addr solana.PublicKey, o *Offer, deposit uint64) *types.Event {
	evt := newOfferEvent(EventTypeOfferMade, addr, o)
	evt.Attributes["deposit"] = strconv.FormatUint(deposit, 10)
	return evt
}

// NewTakenEvent returns the canonical event payload emitted when a taker
// completes the exchange.
func NewTakenEvent(addr solana.PublicKey, o *Offer, taker solana.PublicKey, released uint64) *types.Event {
	evt := newOfferEvent(EventTypeOfferTaken, addr, o)
	evt.Attributes["taker"] = taker.String()
	evt.Attributes["released"] = strconv.FormatUint(released, 10)
	return evt
}

// NewCancelledEvent returns the canonical event payload emitted when the
// maker withdraws an offer.
func NewCancelledEvent(addr solana.PublicKey, o *Offer, refunded uint64) *types.Event {
	evt := newOfferEvent(EventTypeOfferCancelled, addr, o)
	evt.Attributes["refunded"] = strconv.FormatUint(refunded, 10)
	return evt
}

func newOfferEvent(eventType string, addr solana.PublicKey, o *Offer) *types.Event {
	attrs := map[string]string{"offer": addr.String()}
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(o.ID, 10)
	attrs["maker"] = o.Maker.String()
	attrs["tokenMintA"] = o.TokenMintA.String()
	attrs["tokenMintB"] = o.TokenMintB.String()
	attrs["wantedAmountB"] = strconv.FormatUint(o.WantedAmountB, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}
