package feed

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	messageTypeUpdate    = "update"
	messageTypeHeartbeat = "heartbeat"

	eventTypeTrade  = "trade"
	eventTypeChange = "change"

	sideBid = "bid"
	sideAsk = "ask"
)

// marketDataMessage one inbound frame; an update batches trade and book change events.
type marketDataMessage struct {
	Type           string        `json:"type"`
	SocketSequence int64         `json:"socket_sequence"`
	Events         []marketEvent `json:"events"`
}

type marketEvent struct {
	Type      string `json:"type"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Remaining string `json:"remaining"`
}

// priceUpdate net effect of one message. Unset fields leave the table untouched.
type priceUpdate struct {
	trade decimal.NullDecimal
	bid   decimal.NullDecimal
	ask   decimal.NullDecimal
}

func (u priceUpdate) empty() bool {
	return !u.trade.Valid && !u.bid.Valid && !u.ask.Valid
}

// parseMessage decodes the whole frame before anything is applied, so a bad
// event anywhere in the batch rejects the batch.
func parseMessage(payload []byte) (priceUpdate, error) {
	var u priceUpdate

	if len(strings.TrimSpace(string(payload))) == 0 {
		return u, errors.New("empty message")
	}

	var msg marketDataMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return u, errors.Wrap(err, "decode market data message")
	}

	switch msg.Type {
	case messageTypeHeartbeat:
		return u, nil
	case messageTypeUpdate:
	case "":
		return u, errors.New("message without type")
	default:
		return u, nil
	}

	for i, ev := range msg.Events {
		switch ev.Type {
		case eventTypeTrade:
			price, err := parsePositive(ev.Price)
			if err != nil {
				return priceUpdate{}, errors.Wrapf(err, "trade event %d", i)
			}
			u.trade = decimal.NewNullDecimal(price)
		case eventTypeChange:
			price, err := parsePositive(ev.Price)
			if err != nil {
				return priceUpdate{}, errors.Wrapf(err, "change event %d", i)
			}
			remaining, err := decimal.NewFromString(ev.Remaining)
			if err != nil {
				return priceUpdate{}, errors.Wrapf(err, "change event %d remaining", i)
			}
			if !remaining.IsPositive() {
				// level emptied; the next top-of-book change carries its replacement
				continue
			}
			switch ev.Side {
			case sideBid:
				u.bid = decimal.NewNullDecimal(price)
			case sideAsk:
				u.ask = decimal.NewNullDecimal(price)
			default:
				return priceUpdate{}, errors.Errorf("change event %d has unknown side %q", i, ev.Side)
			}
		}
	}

	return u, nil
}

func parsePositive(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "invalid price %q", s)
	}
	if !d.IsPositive() {
		return decimal.Zero, errors.Errorf("non-positive price %q", s)
	}
	return d, nil
}
