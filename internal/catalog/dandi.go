// Package catalog resolves dataset references against the DANDI archive.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"sortruns/internal/config"
)

// Config holds configuration for the DANDI resolver.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// LoadConfigFromEnv reads the resolver configuration from the environment.
func LoadConfigFromEnv() Config {
	return Config{
		BaseURL: config.GetEnv("DANDI_API_URL", "https://api.dandiarchive.org/api"),
		Timeout: config.GetDurationEnv("DANDI_API_TIMEOUT", 30*time.Second),
	}
}

// Resolver looks up asset download URLs in the DANDI archive. Submissions
// that reference a dandiset by ID and file path are resolved to a concrete
// URL before the job specification is built.
type Resolver struct {
	client  *http.Client
	baseURL string
}

// NewResolver creates a DANDI resolver.
func NewResolver(cfg Config) *Resolver {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.dandiarchive.org/api"
	}
	return &Resolver{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type assetListing struct {
	Results []struct {
		AssetID string `json:"asset_id"`
		Path    string `json:"path"`
	} `json:"results"`
}

// ResolveSourceURL returns the download URL for a file in a dandiset's
// draft version.
func (r *Resolver) ResolveSourceURL(ctx context.Context, datasetID, filePath string) (string, error) {
	listURL := fmt.Sprintf("%s/dandisets/%s/versions/draft/assets/?path=%s",
		r.baseURL, url.PathEscape(datasetID), url.QueryEscape(filePath))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build asset listing request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to list assets for dandiset %s: %w", datasetID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("asset listing for dandiset %s returned status %d", datasetID, resp.StatusCode)
	}

	var listing assetListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return "", fmt.Errorf("failed to decode asset listing for dandiset %s: %w", datasetID, err)
	}

	// The path parameter is a prefix filter; require an exact match.
	for _, asset := range listing.Results {
		if asset.Path == filePath {
			return fmt.Sprintf("%s/assets/%s/download/", r.baseURL, asset.AssetID), nil
		}
	}
	return "", fmt.Errorf("file %q not found in dandiset %s", filePath, datasetID)
}
