package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/marketline/api/internal/platform/config"
)

// NewFirebaseApp initialises the Admin SDK app shared by token verification and push messaging.
// Inline credentials JSON wins over a credentials file.
func NewFirebaseApp(ctx context.Context, cfg config.FirebaseConfig) (*firebase.App, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, errors.New("auth: firebase project id is required")
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, credentials(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("auth: firebase app: %w", err)
	}
	return app, nil
}

func credentials(cfg config.FirebaseConfig) []option.ClientOption {
	if inline := strings.TrimSpace(cfg.CredentialsJSON); inline != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(inline))}
	}
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		return []option.ClientOption{option.WithCredentialsFile(file)}
	}
	return nil
}

// FirebaseVerifier checks ID tokens against Firebase Auth, optionally rejecting revoked sessions.
type FirebaseVerifier struct {
	client       *firebaseauth.Client
	checkRevoked bool
}

// NewFirebaseVerifier builds a verifier on app. checkRevoked costs one Auth backend call per request.
func NewFirebaseVerifier(ctx context.Context, app *firebase.App, checkRevoked bool) (*FirebaseVerifier, error) {
	if app == nil {
		return nil, errors.New("auth: firebase app is required")
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: firebase auth client: %w", err)
	}
	return &FirebaseVerifier{client: client, checkRevoked: checkRevoked}, nil
}

// VerifyIDToken implements TokenVerifier. Revoked or disabled sessions surface as ErrTokenInvalid.
func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if v == nil || v.client == nil {
		return nil, errors.New("auth: firebase verifier not initialised")
	}
	if !v.checkRevoked {
		return v.client.VerifyIDToken(ctx, idToken)
	}
	token, err := v.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	if firebaseauth.IsIDTokenRevoked(err) || firebaseauth.IsUserDisabled(err) {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return token, err
}
