package session

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	maxReconnectAttempts = 5
	reconnectBaseDelay   = time.Second
	reconnectMaxDelay    = 30 * time.Second
)

// backoffDelay computes the exponential reconnect delay for the given
// attempt number: 1s, 2s, 4s, 8s, 16s, capped at 30s.
func backoffDelay(attempt int) time.Duration {
	delay := reconnectBaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= reconnectMaxDelay {
			return reconnectMaxDelay
		}
	}
	return delay
}

// handleClose runs when a read loop observes the socket closing. The close
// event is the single reconnection trigger; socket errors merely precede it.
func (s *Session) handleClose(generation int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		// A newer socket owns the session; this close belongs to a socket
		// already torn down.
		return
	}

	s.conn = nil
	s.stopStreamingLocked()
	s.state = StateDisconnected

	if s.manualDisconnect {
		s.logger.Info("Socket closed after manual disconnect")
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		s.logger.Info("Socket closed normally")
		return
	}

	s.logger.Warn("Socket closed unexpectedly", zap.Error(err))
	s.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the reconnect timer with exponential backoff,
// giving up after maxReconnectAttempts. Caller holds s.mu.
func (s *Session) scheduleReconnectLocked() {
	if s.manualDisconnect {
		return
	}
	if s.attemptCount >= maxReconnectAttempts {
		s.logger.Error("Reconnect attempts exhausted, staying disconnected",
			zap.Int("attempts", s.attemptCount))
		return
	}

	delay := backoffDelay(s.attemptCount)
	s.attemptCount++
	attempt := s.attemptCount

	s.logger.Info("Scheduling reconnect",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))

	s.reconnectTimer = time.AfterFunc(delay, s.reconnect)
}

// reconnect is the reconnect timer body. The manual-disconnect flag is
// re-checked here so a timer that fires after Stop does nothing.
func (s *Session) reconnect() {
	s.mu.Lock()
	if s.manualDisconnect {
		s.mu.Unlock()
		return
	}
	url := s.url
	attempt := s.attemptCount
	s.mu.Unlock()

	s.logger.Info("Reconnecting", zap.Int("attempt", attempt))
	if err := s.connect(url); err != nil {
		s.logger.Warn("Reconnect attempt failed", zap.Error(err))
	}
}

// cancelPendingReconnectLocked stops any armed reconnect timer so an
// explicit Start never races a scheduled retry into duplicate sockets.
// Caller holds s.mu.
func (s *Session) cancelPendingReconnectLocked() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}
