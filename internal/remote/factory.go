package remote

import (
	"fmt"
	"net/http"

	"mirror-go/internal/config"
	"mirror-go/internal/mirror"
)

// NewRemoteFromConfig creates a Remote implementation based on the remote config type.
func NewRemoteFromConfig(cfg config.RemoteConfig, clock mirror.Clock) (mirror.Remote, error) {
	switch cfg.Type {
	case "http":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("http remote requires base_url to be set")
		}
		r, err := NewHTTPRemote(cfg.BaseURL, cfg.AuthHeader, &http.Client{})
		if err != nil {
			return nil, err
		}
		return r, nil
	case "memory":
		return NewMemoryRemote(clock), nil
	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}
}
