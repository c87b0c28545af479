package price

import (
	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/StrathCole/price-engine/pkg/logging"
)

// EventType names an engine event.
type EventType string

// Engine events.
const (
	EventAssetAdded                EventType = "asset_added"
	EventAssetRemoved              EventType = "asset_removed"
	EventAssetPriceFeedsUpdated    EventType = "asset_price_feeds_updated"
	EventAssetPriceStrategyUpdated EventType = "asset_price_strategy_updated"
	EventAssetMovingAverageUpdated EventType = "asset_moving_average_updated"
	EventPriceStored               EventType = "price_stored"
)

// Event is emitted after a mutating operation commits. Price and Timestamp are set for
// EventPriceStored only.
type Event struct {
	Type      EventType
	Asset     common.Address
	Price     math.Uint
	Timestamp uint64
}

// EventSink receives committed engine events. Emit must not call back into the engine's
// mutating operations.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Emit implements EventSink.
func (f EventSinkFunc) Emit(e Event) {
	f(e)
}

// MultiSink fans events out to several sinks in order.
type MultiSink []EventSink

// Emit implements EventSink.
func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

// LogSink writes events to a logger.
type LogSink struct {
	Logger *logging.Logger
}

// Emit implements EventSink.
func (s LogSink) Emit(e Event) {
	if e.Type == EventPriceStored {
		s.Logger.Info("Price stored", "asset", e.Asset.Hex(), "price", e.Price.String(), "timestamp", e.Timestamp)
		return
	}
	s.Logger.Info("Asset event", "event", string(e.Type), "asset", e.Asset.Hex())
}

type discardSink struct{}

func (discardSink) Emit(Event) {}
