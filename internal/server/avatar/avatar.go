// Package avatar uploads user profile pictures to an external image host
// and returns their public URL.
package avatar

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/contactkeeper/internal/server/config"
)

// Store persists one avatar per user; storing again replaces the previous
// image.
type Store interface {
	Store(ctx context.Context, userID, contentType string, data []byte) (string, error)
}

func objectKey(userID string) string {
	return "avatars/" + userID
}

// New picks the backend named by cfg.AvatarBackend.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.AvatarBackend {
	case config.AvatarBackendCloudinary:
		return NewCloudinaryStore(cfg.CloudinaryURL, nil)
	case config.AvatarBackendS3:
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown avatar backend %q", cfg.AvatarBackend)
	}
}
