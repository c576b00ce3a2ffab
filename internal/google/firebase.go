package google

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/yuju-k/happy-wave/internal/models"
	"google.golang.org/api/option"
)

type FirebaseService struct {
	app    *firebase.App
	client *messaging.Client
	config *FirebaseConfig
}

type FirebaseConfig struct {
	// CredentialsPath falls back to application default credentials when empty.
	CredentialsPath string
	ProjectID       string
}

func NewFirebaseService(ctx context.Context, cfg *FirebaseConfig) (*FirebaseService, error) {
	var opts []option.ClientOption
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}

	var appCfg *firebase.Config
	if cfg.ProjectID != "" {
		appCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, appCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &FirebaseService{
		app:    app,
		client: client,
		config: cfg,
	}, nil
}

// Firestore returns a new document store client; the caller closes it.
func (f *FirebaseService) Firestore(ctx context.Context) (*firestore.Client, error) {
	client, err := f.app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firestore client: %w", err)
	}
	return client, nil
}

// SendPushNotification sends one message to a single device token and returns the FCM message id.
func (f *FirebaseService) SendPushNotification(ctx context.Context, payload *models.PushNotification) (string, error) {
	response, err := f.client.Send(ctx, BuildMessage(payload))
	if err != nil {
		return "", fmt.Errorf("error sending message: %w", err)
	}
	return response, nil
}

func BuildMessage(payload *models.PushNotification) *messaging.Message {
	msg := &messaging.Message{
		Token: payload.Token,
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data: payload.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ClickAction: payload.ClickAction,
				Sound:       payload.Sound,
			},
		},
	}
	if payload.Sound != "" {
		msg.APNS = &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: payload.Sound},
			},
		}
	}
	return msg
}
