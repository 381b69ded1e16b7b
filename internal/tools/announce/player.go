package announce

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// playConcurrency bounds parallel speaker posts. Announcements go to a
// handful of room endpoints at most.
const playConcurrency = 4

const defaultPlayTimeout = 10 * time.Second

// HTTPPlayer fans synthesized PCM out to one or more speaker endpoints via
// HTTP POST. Room clients expose a small playback server for this.
type HTTPPlayer struct {
	endpoints []string
	client    *http.Client
}

// PlayerOption is a functional option for [NewHTTPPlayer].
type PlayerOption func(*HTTPPlayer)

// WithPlayerHTTPClient overrides the HTTP client used for speaker posts.
func WithPlayerHTTPClient(c *http.Client) PlayerOption {
	return func(p *HTTPPlayer) {
		p.client = c
	}
}

// NewHTTPPlayer creates a player posting to the given endpoints.
func NewHTTPPlayer(endpoints []string, opts ...PlayerOption) (*HTTPPlayer, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("announce: at least one speaker endpoint is required")
	}
	p := &HTTPPlayer{
		endpoints: endpoints,
		client:    &http.Client{Timeout: defaultPlayTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Play posts pcm to every endpoint concurrently. It fails if any endpoint
// rejects the audio; posting to the rest still completes.
func (p *HTTPPlayer) Play(ctx context.Context, pcm []byte) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(playConcurrency)

	for _, endpoint := range p.endpoints {
		g.Go(func() error {
			return p.post(ctx, endpoint, pcm)
		})
	}
	return g.Wait()
}

func (p *HTTPPlayer) post(ctx context.Context, endpoint string, pcm []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(pcm))
	if err != nil {
		return fmt.Errorf("announce: build request for %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("announce: post to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("announce: speaker %s returned %s", endpoint, resp.Status)
	}
	return nil
}
