package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yuju-k/happy-wave/internal/models"
	"github.com/yuju-k/happy-wave/internal/repository"
)

type Sender interface {
	SendPushNotification(ctx context.Context, payload *models.PushNotification) (string, error)
}

type Deduplicator interface {
	Claim(ctx context.Context, roomID, messageID string) (bool, error)
	Release(ctx context.Context, roomID, messageID string) error
}

type Dispatcher struct {
	repo   repository.IChatRepository
	sender Sender
	dedup  Deduplicator
}

// NewDispatcher builds a dispatcher. dedup may be nil, in which case every
// invocation for the same message sends again.
func NewDispatcher(repo repository.IChatRepository, sender Sender, dedup Deduplicator) *Dispatcher {
	return &Dispatcher{
		repo:   repo,
		sender: sender,
		dedup:  dedup,
	}
}

// Dispatch decides whether the new message in roomID produces a push notification
// and sends it. Missing preconditions and delivery failures are reported in the
// Result; the error is non-nil only when the store or the dedup backend failed.
func (d *Dispatcher) Dispatch(ctx context.Context, roomID, messageID string, msg models.ChatMessage) (Result, error) {
	const op = "Dispatcher.Dispatch"
	log := slog.With("operation", op, "room_id", roomID, "message_id", messageID)

	if roomID == "" || msg.AuthorID == "" || msg.AuthorName == "" || msg.Text == "" {
		log.Warn("Message is missing required fields",
			"has_author_id", msg.AuthorID != "",
			"has_author_name", msg.AuthorName != "",
			"has_text", msg.Text != "",
		)
		return Skipped(SkipInvalidMessage), nil
	}

	room, err := d.repo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Info("Chat room not found")
			return Skipped(SkipRoomNotFound), nil
		}
		return Result{}, fmt.Errorf("failed to fetch chat room: %w", err)
	}
	if len(room.Users) == 0 {
		log.Info("No users in chat room")
		return Skipped(SkipNoMembers), nil
	}
	if room.Status == models.RoomDisconnected {
		log.Info("Chat room is disconnected")
		return Skipped(SkipRoomDisconnected), nil
	}

	receiverID, reason := findReceiver(room.Users, msg.AuthorID)
	if reason != "" {
		log.Info("No receiver for this chat room", "reason", reason, "member_count", len(room.Users))
		return Skipped(reason), nil
	}
	log = log.With("receiver_id", receiverID)

	profile, err := d.repo.GetUserProfile(ctx, receiverID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Info("Receiver user document not found")
			return Result{Outcome: OutcomeSkipped, Reason: SkipReceiverNotFound, ReceiverID: receiverID}, nil
		}
		return Result{}, fmt.Errorf("failed to fetch receiver profile: %w", err)
	}
	if profile.FCMToken == "" {
		log.Info("Receiver has no FCM token")
		return Result{Outcome: OutcomeSkipped, Reason: SkipNoPushToken, ReceiverID: receiverID}, nil
	}

	claimed := false
	if d.dedup != nil && messageID != "" {
		first, err := d.dedup.Claim(ctx, roomID, messageID)
		if err != nil {
			return Result{}, err
		}
		if !first {
			log.Info("Notification already sent for this message")
			return Result{Outcome: OutcomeSkipped, Reason: SkipDuplicate, ReceiverID: receiverID}, nil
		}
		claimed = true
	}

	deliveryID, err := d.sender.SendPushNotification(ctx, BuildPayload(roomID, profile.FCMToken, msg))
	if err != nil {
		log.Error("Error sending message", "error", err)
		if claimed {
			if relErr := d.dedup.Release(ctx, roomID, messageID); relErr != nil {
				log.Error("Failed to release dedup claim", "error", relErr)
			}
		}
		return Result{Outcome: OutcomeDeliveryFailed, ReceiverID: receiverID, Err: err}, nil
	}

	log.Info("Successfully sent message", "delivery_id", deliveryID)
	return Result{Outcome: OutcomeSent, ReceiverID: receiverID, DeliveryID: deliveryID}, nil
}

// findReceiver returns the member other than authorID. Rooms must hold exactly
// two distinct non-empty members.
func findReceiver(users []string, authorID string) (string, SkipReason) {
	distinct := make([]string, 0, 2)
	seen := make(map[string]struct{}, len(users))
	for _, uid := range users {
		if uid == "" {
			continue
		}
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		distinct = append(distinct, uid)
	}
	if len(distinct) != 2 {
		return "", SkipMalformedRoom
	}

	switch authorID {
	case distinct[0]:
		return distinct[1], ""
	case distinct[1]:
		return distinct[0], ""
	default:
		return "", SkipNoReceiver
	}
}

func BuildPayload(roomID, token string, msg models.ChatMessage) *models.PushNotification {
	return &models.PushNotification{
		Token:       token,
		Title:       models.NotificationTitle(msg.AuthorName),
		Body:        msg.Text,
		Sound:       models.DefaultSound,
		ClickAction: models.ClickActionFlutter,
		Data: map[string]string{
			"roomId":       roomID,
			"senderId":     msg.AuthorID,
			"click_action": models.ClickActionFlutter,
		},
	}
}
