package repository

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/yuju-k/happy-wave/internal/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var ErrNotFound = errors.New("document not found")

type IChatRepository interface {
	GetRoom(ctx context.Context, roomID string) (*models.ChatRoom, error)
	GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

type FirestoreRepository struct {
	client *firestore.Client
}

func NewFirestoreRepository(client *firestore.Client) *FirestoreRepository {
	return &FirestoreRepository{client: client}
}

func (r *FirestoreRepository) GetRoom(ctx context.Context, roomID string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	if err := r.get(ctx, models.ChatRoomsCollection, roomID, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *FirestoreRepository) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	if err := r.get(ctx, models.UsersCollection, userID, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *FirestoreRepository) get(ctx context.Context, collection, id string, dst any) error {
	snap, err := r.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return fmt.Errorf("failed to fetch %s/%s: %w", collection, id, err)
	}
	if !snap.Exists() {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err := snap.DataTo(dst); err != nil {
		return fmt.Errorf("failed to decode %s/%s: %w", collection, id, err)
	}
	return nil
}
