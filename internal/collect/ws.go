package collect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/observability"
	"indicator-lab/internal/storage"
)

// WSConfig configures live collector behavior.
type WSConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
}

// DefaultWSConfig returns default live collector configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       90 * time.Second,
	}
}

// LiveCollector subscribes to 1m kline streams and appends each closed
// candle to the base series. In-progress candles are ignored; the base
// series only ever receives fully closed bars.
type LiveCollector struct {
	endpoint string
	symbols  []string
	config   WSConfig
	bars     storage.BarStore
	metrics  *observability.Metrics
	logger   *log.Logger
}

// LiveOptions contains configuration for creating a LiveCollector.
type LiveOptions struct {
	// Endpoint is the stream base URL, e.g. wss://stream.binance.com:9443.
	Endpoint string
	Symbols  []string
	Config   *WSConfig
	Bars     storage.BarStore
	Metrics  *observability.Metrics
	Logger   *log.Logger
}

// NewLiveCollector creates a new LiveCollector.
func NewLiveCollector(opts LiveOptions) *LiveCollector {
	cfg := DefaultWSConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &LiveCollector{
		endpoint: opts.Endpoint,
		symbols:  opts.Symbols,
		config:   cfg,
		bars:     opts.Bars,
		metrics:  opts.Metrics,
		logger:   logger,
	}
}

// klineEvent is the combined-stream payload for one kline update.
type klineEvent struct {
	Data struct {
		Kline struct {
			OpenTime int64  `json:"t"`
			Symbol   string `json:"s"`
			Open     string `json:"o"`
			High     string `json:"h"`
			Low      string `json:"l"`
			Close    string `json:"c"`
			Volume   string `json:"v"`
			Closed   bool   `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

// Run blocks, maintaining the subscription until the context is cancelled.
// Connection failures reconnect with doubling delay up to the configured
// cap; the delay resets after a healthy read.
func (c *LiveCollector) Run(ctx context.Context) error {
	delay := c.config.ReconnectDelay

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.consume(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return ctx.Err()
		}

		c.logger.Printf("Stream error, reconnecting in %v: %v", delay, err)
		if c.metrics != nil {
			c.metrics.CollectorErrors.WithLabelValues("ws").Inc()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.config.MaxReconnectDelay {
			delay = c.config.MaxReconnectDelay
		}
	}
}

// consume holds one connection open and stores closed candles until the
// connection breaks.
func (c *LiveCollector) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, c.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage on cancellation.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read stream message: %w", err)
		}

		if err := c.handleMessage(ctx, payload); err != nil {
			c.logger.Printf("Drop malformed stream message: %v", err)
		}
	}
}

func (c *LiveCollector) handleMessage(ctx context.Context, payload []byte) error {
	var event klineEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode kline event: %w", err)
	}

	k := event.Data.Kline
	if !k.Closed || k.Symbol == "" {
		return nil
	}

	bar, err := barFromKline(k.Symbol, k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
	if err != nil {
		return err
	}

	if err := c.bars.Insert(ctx, bar); err != nil {
		// Streams replay the closing update after reconnect.
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil
		}
		return fmt.Errorf("store live bar: %w", err)
	}

	if c.metrics != nil {
		c.metrics.BarsCollected.WithLabelValues("ws").Inc()
	}
	return nil
}

func barFromKline(symbol string, openTime int64, open, high, low, close, volume string) (domain.Bar, error) {
	fields := [5]string{open, high, low, close, volume}
	parsed := [5]float64{}
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("parse kline field %q: %w", s, err)
		}
		parsed[i] = v
	}

	return domain.Bar{
		Symbol:    symbol,
		InstantMs: openTime,
		Open:      parsed[0],
		High:      parsed[1],
		Low:       parsed[2],
		Close:     parsed[3],
		Volume:    parsed[4],
	}, nil
}

// streamURL builds the combined-stream URL for all configured symbols.
func (c *LiveCollector) streamURL() string {
	streams := make([]string, len(c.symbols))
	for i, s := range c.symbols {
		streams[i] = strings.ToLower(s) + "@kline_1m"
	}
	return c.endpoint + "/stream?streams=" + strings.Join(streams, "/")
}
