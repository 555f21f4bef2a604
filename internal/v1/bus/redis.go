// Package bus provides an optional cross-pod fan-out of lobby lifecycle
// events over Redis pub/sub between relay replicas. Events from other
// replicas are handed to the Subscribe handler; this package does not merge
// them into any replica's room registry.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Carbonfreezer/multiplayer/internal/v1/logging"
	"github.com/Carbonfreezer/multiplayer/internal/v1/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const lobbyChannel = "multiplayer:lobby:events"

// EventKind enumerates the lobby lifecycle events replicas fan out to each other.
type EventKind string

const (
	EventRoomCreated   EventKind = "room_created"
	EventRoomDestroyed EventKind = "room_destroyed"
	EventPlayerCount   EventKind = "player_count"
)

// Event is the envelope published on the lobby channel.
type Event struct {
	Kind         EventKind `json:"kind"`
	CompositeKey string    `json:"composite_key"`
	RoomID       string    `json:"room_id"`
	GameID       string    `json:"game_id"`
	PlayerCount  int       `json:"player_count,omitempty"`
	OriginPod    string    `json:"origin_pod"`
}

// Service handles all interaction with the Redis cluster backing the bus.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
	podID  string
}

// Client returns the underlying Redis client.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// NewService creates a Redis-backed lobby event bus.
func NewService(addr, password, podID string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "lobby_bus",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("lobby_bus").Set(stateVal)
		},
	}

	logging.Info(context.Background(), "connected to lobby event bus", zap.String("addr", addr))
	return &Service{
		client: rdb,
		cb:     gobreaker.NewCircuitBreaker(st),
		podID:  podID,
	}, nil
}

// Publish broadcasts a lobby lifecycle event to every other replica.
func (s *Service) Publish(ctx context.Context, ev Event) error {
	if s == nil || s.client == nil {
		return nil // single-instance mode, no bus configured
	}

	ev.OriginPod = s.podID
	start := time.Now()

	_, err := s.cb.Execute(func() (interface{}, error) {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal lobby event: %w", err)
		}
		return nil, s.client.Publish(ctx, lobbyChannel, data).Err()
	})

	metrics.BusOperationDuration.WithLabelValues("publish").Observe(time.Since(start).Seconds())

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.BusOperationsTotal.WithLabelValues("publish", "circuit_open").Inc()
			logging.Warn(ctx, "lobby bus circuit open: dropping publish", zap.String("kind", string(ev.Kind)))
			return nil // graceful degradation: drop message, don't crash caller
		}
		metrics.BusOperationsTotal.WithLabelValues("publish", "error").Inc()
		logging.Error(ctx, "lobby bus publish failed", zap.Error(err))
		return err
	}

	metrics.BusOperationsTotal.WithLabelValues("publish", "success").Inc()
	return nil
}

// Subscribe starts a background goroutine that delivers lobby events
// published by other replicas to handler. It returns once the subscription
// goroutine has started; the goroutine exits when ctx is cancelled.
func (s *Service) Subscribe(ctx context.Context, wg *sync.WaitGroup, handler func(Event)) {
	if s == nil || s.client == nil {
		return // single-instance mode, no bus configured
	}

	pubsub := s.client.Subscribe(ctx, lobbyChannel)

	if wg != nil {
		wg.Add(1)
	}
	go func() {
		defer pubsub.Close()
		if wg != nil {
			defer wg.Done()
		}

		logging.Info(ctx, "subscribed to lobby event bus", zap.String("channel", lobbyChannel))

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					logging.Warn(ctx, "lobby bus subscription channel closed")
					return
				}

				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logging.Error(ctx, "failed to unmarshal lobby event", zap.Error(err))
					continue
				}
				if ev.OriginPod == s.podID {
					continue // don't re-apply our own events
				}

				handler(ev)
			}
		}
	}()
}

// Ping checks Redis connectivity, used by the readiness health check.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.BusOperationsTotal.WithLabelValues("ping", "circuit_open").Inc()
		}
		return err
	}
	return nil
}

// Close gracefully shuts down the Redis connection.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
