package scorer

import (
	"fmt"

	sapi "github.com/evaly/scorepipe/internal/pkg/scorer/api"
)

// StaticProvider always returns the one configured scorer instance.
// Used when no consul discovery is configured
type StaticProvider struct {
	client *Client
	name   string
}

// NewStaticProvider creates provider instance
func NewStaticProvider(submitURL string) (*StaticProvider, error) {
	cl, err := NewClient(submitURL)
	if err != nil {
		return nil, fmt.Errorf("can't init scorer client: %w", err)
	}
	return &StaticProvider{client: cl, name: submitURL}, nil
}

// Get returns the configured scorer
func (p *StaticProvider) Get() (sapi.Scorer, string, error) {
	return p.client, p.name, nil
}
