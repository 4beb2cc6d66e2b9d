package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// keyset positions a page after the last item of the previous one: its sort timestamp and id.
type keyset struct {
	At time.Time `json:"at"`
	ID string    `json:"id"`
}

// EncodeKeyset returns an opaque URL-safe token for the item (at, id).
func EncodeKeyset(at time.Time, id string) (string, error) {
	data, err := json.Marshal(keyset{At: at.UTC(), ID: id})
	if err != nil {
		return "", fmt.Errorf("pagination: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeKeyset reverses EncodeKeyset. An empty token yields ok=false.
func DecodeKeyset(token string) (at time.Time, id string, ok bool, err error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return time.Time{}, "", false, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", false, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var ks keyset
	if err := json.Unmarshal(raw, &ks); err != nil {
		return time.Time{}, "", false, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if ks.ID == "" || ks.At.IsZero() {
		return time.Time{}, "", false, fmt.Errorf("%w: incomplete cursor", ErrInvalidPageToken)
	}
	return ks.At, ks.ID, true, nil
}
