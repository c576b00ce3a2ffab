// Package happywave holds the Cloud Functions entrypoint that sends a push
// notification for every message created under chatrooms/{roomId}/messages.
package happywave

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/yuju-k/happy-wave/internal/config"
	"github.com/yuju-k/happy-wave/internal/dedup"
	"github.com/yuju-k/happy-wave/internal/dispatch"
	"github.com/yuju-k/happy-wave/internal/event"
	"github.com/yuju-k/happy-wave/internal/google"
	"github.com/yuju-k/happy-wave/internal/logging"
	"github.com/yuju-k/happy-wave/internal/repository"
)

var (
	mu         sync.Mutex
	dispatcher event.MessageDispatcher
	cfg        *config.NotificationService

	// newDispatcher is replaced in tests.
	newDispatcher = buildDispatcher
)

// SendChatMessageNotification is deployed with the
// providers/cloud.firestore/eventTypes/document.create trigger on
// chatrooms/{roomId}/messages/{messageId}.
func SendChatMessageNotification(ctx context.Context, e event.FirestoreEvent) error {
	d, timeout, err := instance()
	if err != nil {
		return fmt.Errorf("failed to initialize notification function: %w", err)
	}

	evt, err := e.MessageCreated()
	if err != nil {
		// Redelivering an event for a foreign document cannot succeed.
		slog.Warn("Ignoring event", "error", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := d.Dispatch(ctx, evt.RoomID, evt.MessageID, evt.Message)
	if err != nil {
		return err
	}
	slog.Info("Chat message notification handled",
		"room_id", evt.RoomID,
		"message_id", evt.MessageID,
		"outcome", res.Outcome,
		"reason", res.Reason,
	)
	return nil
}

// instance returns the per-instance dispatcher, building it on first use. A
// failed build is not cached so the next invocation tries again.
func instance() (event.MessageDispatcher, time.Duration, error) {
	mu.Lock()
	defer mu.Unlock()

	if cfg == nil {
		cfg = config.New()
		logging.Setup(os.Stdout, cfg.LogLevel)
	}
	if dispatcher == nil {
		d, err := newDispatcher(context.Background(), cfg)
		if err != nil {
			return nil, 0, err
		}
		dispatcher = d
	}
	return dispatcher, cfg.DispatchCfg.Timeout, nil
}

func buildDispatcher(ctx context.Context, cfg *config.NotificationService) (event.MessageDispatcher, error) {
	firebaseService, err := google.NewFirebaseService(ctx, &google.FirebaseConfig{
		CredentialsPath: cfg.GoogleConfig.FirebaseCredentials,
		ProjectID:       cfg.GoogleConfig.FirebaseProjectID,
	})
	if err != nil {
		return nil, err
	}

	fsClient, err := firebaseService.Firestore(ctx)
	if err != nil {
		return nil, err
	}

	var dd dispatch.Deduplicator
	if cfg.RedisCfg.Enabled {
		client, err := dedup.NewRedisClient(cfg.RedisCfg.Host, cfg.RedisCfg.Port, cfg.RedisCfg.Password, cfg.RedisCfg.DB)
		if err != nil {
			fsClient.Close()
			return nil, err
		}
		dd = dedup.NewRedisDeduplicator(client, cfg.DispatchCfg.DedupTTL)
	}

	return dispatch.NewDispatcher(repository.NewFirestoreRepository(fsClient), firebaseService, dd), nil
}
