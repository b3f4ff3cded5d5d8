// Package feed maintains the streaming price connection to the venue and
// funnels completed bars into the ingestion engine.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Polymerase3/elpis-v2/internal/config"
	"github.com/Polymerase3/elpis-v2/internal/logger"
	"github.com/Polymerase3/elpis-v2/internal/metrics"
	"github.com/Polymerase3/elpis-v2/internal/models"
)

// Reserved reference ids on the venue stream
const (
	refHeartbeat          = "_heartbeat"
	refResetSubscriptions = "_resetsubscriptions"
)

// MessageHandler is called for every data message received from the stream
type MessageHandler func(referenceID string, data json.RawMessage) error

// Subscription identifies one streamed chart series. ReferenceID keys the
// venue messages back to the instrument and interval the bars belong to.
type Subscription struct {
	ReferenceID  string
	InstrumentID int64
	UIC          int64
	AssetType    models.AssetType
	Interval     models.IntervalCode
}

// streamEnvelope is the framing of every venue stream message
type streamEnvelope struct {
	ReferenceID string          `json:"ReferenceId"`
	Timestamp   time.Time       `json:"Timestamp"`
	Data        json.RawMessage `json:"Data"`
}

// subscribeRequest creates a chart subscription on the stream
type subscribeRequest struct {
	ContextID   string             `json:"ContextId"`
	ReferenceID string             `json:"ReferenceId"`
	Arguments   subscribeArguments `json:"Arguments"`
}

type subscribeArguments struct {
	UIC        int64  `json:"Uic"`
	AssetType  string `json:"AssetType"`
	Horizon    int    `json:"Horizon"`
	AccountKey string `json:"AccountKey,omitempty"`
}

// StreamClient handles the WebSocket connection to the venue streaming API.
// Run keeps the connection alive with exponential backoff and replays all
// registered subscriptions after every reconnect.
type StreamClient struct {
	url              string
	accountKey       string
	contextID        string
	handshakeTimeout time.Duration
	reconnectMin     time.Duration
	reconnectMax     time.Duration
	logger           *logger.FeedLogger

	mu              sync.RWMutex
	token           string
	conn            *websocket.Conn
	isConnected     bool
	lastMessageTime time.Time
	handlers        []MessageHandler
	subs            []Subscription
}

// NewStreamClient creates a new venue stream client
func NewStreamClient(saxoCfg *config.SaxoConfig, feedCfg *config.FeedConfig, baseLogger *logrus.Logger) *StreamClient {
	if baseLogger == nil {
		baseLogger = logrus.New()
	}

	return &StreamClient{
		url:              saxoCfg.StreamURL,
		accountKey:       saxoCfg.AccountKey,
		contextID:        uuid.New().String(),
		handshakeTimeout: 10 * time.Second,
		reconnectMin:     feedCfg.ReconnectMin(),
		reconnectMax:     feedCfg.ReconnectMax(),
		token:            saxoCfg.Token,
		handlers:         make([]MessageHandler, 0),
		subs:             make([]Subscription, 0),
		logger:           logger.NewFeedLogger(baseLogger),
	}
}

// SetToken replaces the access token used on the next (re)connect
func (s *StreamClient) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// AddHandler registers a message handler
func (s *StreamClient) AddHandler(handler MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Subscribe records a chart subscription and sends it immediately when the
// stream is connected. Recorded subscriptions are replayed after reconnects.
func (s *StreamClient) Subscribe(sub Subscription) error {
	if sub.ReferenceID == "" {
		return fmt.Errorf("subscription needs a reference id")
	}
	if !sub.Interval.Valid() {
		return models.ErrInvalidInterval
	}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	conn := s.conn
	connected := s.isConnected
	s.mu.Unlock()

	if !connected || conn == nil {
		return nil
	}
	return s.sendSubscription(conn, sub)
}

// Connect establishes the WebSocket connection and starts reading messages.
// Most callers should use Run instead, which adds reconnect handling.
func (s *StreamClient) Connect(ctx context.Context) error {
	if err := s.connect(ctx, 1); err != nil {
		return err
	}
	go func() {
		_ = s.readLoop(ctx)
		metrics.SetFeedConnected(false)
	}()
	return nil
}

// Run connects and keeps the stream alive until the context is cancelled,
// backing off exponentially between reconnect attempts.
func (s *StreamClient) Run(ctx context.Context) error {
	backoff := s.reconnectMin
	attempt := 0

	for {
		attempt++
		err := s.connect(ctx, attempt)
		if err == nil {
			attempt = 0
			backoff = s.reconnectMin
			connectedAt := time.Now()

			err = s.readLoop(ctx)
			metrics.SetFeedConnected(false)
			s.logger.LogStreamDisconnected(errReason(err), time.Since(connectedAt))
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.LogReconnectScheduled(attempt+1, backoff)
		metrics.RecordFeedReconnect()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = nextBackoff(backoff, s.reconnectMax)
	}
}

// connect dials the stream and replays recorded subscriptions
func (s *StreamClient) connect(ctx context.Context, attempt int) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: s.handshakeTimeout,
	}

	wsURL := s.url + "?contextId=" + s.contextID
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.Token())

	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to connect to stream: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.isConnected = true
	s.lastMessageTime = time.Now()
	subs := make([]Subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	metrics.SetFeedConnected(true)
	s.logger.LogStreamConnected(s.url, attempt)

	for _, sub := range subs {
		if err := s.sendSubscription(conn, sub); err != nil {
			conn.Close()
			return fmt.Errorf("failed to subscribe %s: %w", sub.ReferenceID, err)
		}
	}

	return nil
}

// readLoop reads messages until the connection drops or the context ends
func (s *StreamClient) readLoop(ctx context.Context) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	// Unblock the read when the context is cancelled
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	defer func() {
		s.mu.Lock()
		s.isConnected = false
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		var env streamEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		s.mu.Lock()
		s.lastMessageTime = time.Now()
		s.mu.Unlock()

		switch env.ReferenceID {
		case refHeartbeat:
			metrics.RecordFeedMessage("heartbeat")
			continue
		case refResetSubscriptions:
			metrics.RecordFeedMessage("reset")
			s.resubscribe(conn)
			continue
		}

		metrics.RecordFeedMessage("data")

		s.mu.RLock()
		handlers := s.handlers
		s.mu.RUnlock()

		for _, handler := range handlers {
			if err := handler(env.ReferenceID, env.Data); err != nil {
				s.logger.WithError(err).WithField("reference_id", env.ReferenceID).Warn("Stream handler failed")
			}
		}
	}
}

// resubscribe replays all recorded subscriptions on the given connection
func (s *StreamClient) resubscribe(conn *websocket.Conn) {
	s.mu.RLock()
	subs := make([]Subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.RUnlock()

	for _, sub := range subs {
		if err := s.sendSubscription(conn, sub); err != nil {
			s.logger.WithError(err).WithField("reference_id", sub.ReferenceID).Warn("Resubscribe failed")
		}
	}
}

// sendSubscription sends one subscription request on the connection
func (s *StreamClient) sendSubscription(conn *websocket.Conn, sub Subscription) error {
	req := subscribeRequest{
		ContextID:   s.contextID,
		ReferenceID: sub.ReferenceID,
		Arguments: subscribeArguments{
			UIC:        sub.UIC,
			AssetType:  string(sub.AssetType),
			Horizon:    int(sub.Interval.Minutes()),
			AccountKey: s.accountKey,
		},
	}

	if err := conn.WriteJSON(req); err != nil {
		return err
	}

	s.logger.LogSubscription(sub.UIC, string(sub.AssetType), sub.Interval.Label())
	return nil
}

// Token returns the current access token
func (s *StreamClient) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// IsConnected returns whether the stream is connected
func (s *StreamClient) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isConnected
}

// LastMessageTime returns the time of the last received message
func (s *StreamClient) LastMessageTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastMessageTime
}

// Close closes the stream connection
func (s *StreamClient) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	s.isConnected = false
	return s.conn.Close()
}

// nextBackoff doubles the backoff up to the configured maximum
func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func errReason(err error) string {
	if err == nil {
		return "connection closed"
	}
	return err.Error()
}
