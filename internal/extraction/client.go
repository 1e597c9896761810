package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"dispute-reconciliation-backend/internal/models"
)

// Client calls the external vision service that turns a stored document into
// the items payload. The engine treats any failure here the same as a
// malformed payload: the run still yields a reviewable parse-error result.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 90 * time.Second, // vision extraction is slow on multi-page letters
		},
	}
}

// Extract requests extraction of one document and returns the raw response
// body. Parsing and validation stay in ParsePayload so malformed-field
// handling lives in one place.
func (c *Client) Extract(ctx context.Context, documentID string, bureauHint models.Bureau) ([]byte, error) {
	body, err := json.Marshal(map[string]string{
		"document_id": documentID,
		"bureau":      string(bureauHint),
	})
	if err != nil {
		return nil, fmt.Errorf("extraction: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("extraction: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction: call gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction: gateway returned %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("extraction: read body: %w", err)
	}
	return raw, nil
}
