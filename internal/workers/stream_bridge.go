package workers

import (
	"context"

	"go.uber.org/zap"

	"github.com/selivandex/regime-bot/internal/adapters/clickhouse"
	"github.com/selivandex/regime-bot/internal/adapters/exchange"
	"github.com/selivandex/regime-bot/pkg/logger"
)

// StreamBridge forwards confirmed candles from the WebSocket kline
// stream into the ClickHouse batch writer, complementing the REST
// poller with lower latency
type StreamBridge struct {
	stream       *exchange.KlineStream
	candleWriter *clickhouse.CandleBatchWriter
}

// NewStreamBridge creates new stream bridge
func NewStreamBridge(stream *exchange.KlineStream, candleWriter *clickhouse.CandleBatchWriter) *StreamBridge {
	return &StreamBridge{
		stream:       stream,
		candleWriter: candleWriter,
	}
}

// Start consumes the stream until ctx is cancelled
func (sb *StreamBridge) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("stream bridge stopping")
				return

			case candle, ok := <-sb.stream.Candles():
				if !ok {
					return
				}
				sb.candleWriter.AddCandle(candle)

			case err, ok := <-sb.stream.Errors():
				if !ok {
					return
				}
				logger.Warn("kline stream error", zap.Error(err))
			}
		}
	}()
}
