package wasmengine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
)

// Load reads the engine module from location and instantiates it. A
// location with an http or https scheme is fetched; anything else is read
// from the filesystem.
func Load(ctx context.Context, location string, opts ...Option) (*Engine, error) {
	o := newOptions(opts)
	wasm, err := fetchModule(ctx, location, o.httpClient)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("loaded engine module")
	return newEngine(ctx, wasm, o)
}

func fetchModule(ctx context.Context, location string, client *http.Client) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		wasm, err := os.ReadFile(location)
		if err != nil {
			return nil, fmt.Errorf("failed to read engine module %s: %w", location, err)
		}
		return wasm, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", location, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch engine module %s: %w", location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch engine module %s: status %d", location, resp.StatusCode)
	}
	wasm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read engine module %s: %w", location, err)
	}
	return wasm, nil
}
