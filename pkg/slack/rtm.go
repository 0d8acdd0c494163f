// Copyright 2024-2026 Aiku AI

package slack

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Event is one named event from the real-time feed.
type Event struct {
	Type string
	Data gjson.Result
}

// Feed is a long-lived subscription to the remote event stream. The Events
// channel is closed when the feed ends, whether by Close or by transport
// failure.
type Feed interface {
	Events() <-chan Event
	Close()
}

const (
	rtmEventBuffer = 64
	rtmPingPeriod  = 30 * time.Second
)

// RTM is the production Feed over the RTM WebSocket. On connect it emits a
// synthetic "ready" event so consumers have a single bring-up signal.
type RTM struct {
	caller Caller
	log    zerolog.Logger

	conn     *websocket.Conn
	events   chan Event
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewRTM creates an unstarted RTM feed that authenticates via caller.
func NewRTM(caller Caller, log zerolog.Logger) *RTM {
	return &RTM{
		caller:   caller,
		log:      log.With().Str("component", "slack_rtm").Logger(),
		events:   make(chan Event, rtmEventBuffer),
		stopChan: make(chan struct{}),
	}
}

// Start negotiates a WebSocket URL via rtm.connect and begins streaming
// events. It returns once the socket is established.
func (r *RTM) Start(ctx context.Context) error {
	res, err := r.caller.Call(ctx, "rtm.connect", map[string]any{
		"batch_presence_aware": true,
		"presence_sub":         true,
	})
	if err != nil {
		return fmt.Errorf("rtm connect: %w", err)
	}
	wsURL := res.Get("url").String()
	if wsURL == "" {
		return fmt.Errorf("rtm connect: no websocket url in response")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("rtm dial: %w", err)
	}
	r.conn = conn
	r.log.Info().Msg("RTM connected")

	r.events <- Event{Type: "ready"}
	go r.readLoop()
	go r.pingLoop()
	return nil
}

// Events implements Feed.
func (r *RTM) Events() <-chan Event {
	return r.events
}

// Close implements Feed. Safe to call more than once.
func (r *RTM) Close() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
		if r.conn != nil {
			_ = r.conn.Close()
		}
	})
}

func (r *RTM) readLoop() {
	defer close(r.events)
	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			select {
			case <-r.stopChan:
			default:
				r.log.Warn().Err(err).Msg("RTM read failed, feed ending")
			}
			return
		}
		payload := gjson.ParseBytes(data)
		typ := payload.Get("type").String()
		if typ == "" || typ == "pong" || typ == "hello" {
			continue
		}
		select {
		case r.events <- Event{Type: typ, Data: payload}:
		case <-r.stopChan:
			return
		}
	}
}

func (r *RTM) pingLoop() {
	ticker := time.NewTicker(rtmPingPeriod)
	defer ticker.Stop()
	var id int
	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			id++
			msg := fmt.Sprintf(`{"id":%d,"type":"ping"}`, id)
			if err := r.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				r.log.Debug().Err(err).Msg("RTM ping failed")
				return
			}
		}
	}
}
