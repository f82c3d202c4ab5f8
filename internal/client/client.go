package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/mediarelay/internal/resolver"
	"github.com/tanq16/mediarelay/internal/utils"
)

// ServerError is a non-200 answer from the relay, carrying its {error} text.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type Client struct {
	base string
	http utils.HTTPDoer
}

func New(baseURL string, doer utils.HTTPDoer) *Client {
	return &Client{base: strings.TrimRight(baseURL, "/"), http: doer}
}

type getRequest struct {
	URL    string `json:"url"`
	Action string `json:"action"`
}

// GetURL asks the relay for the direct media URL of sourceURL.
func (c *Client) GetURL(ctx context.Context, sourceURL string) (string, error) {
	resp, err := c.post(ctx, sourceURL, "get-url")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var body struct {
		DirectURL string `json:"directUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("error decoding response: %w", err)
	}
	if body.DirectURL == "" {
		return "", fmt.Errorf("server returned an empty directUrl")
	}
	return body.DirectURL, nil
}

// Download asks the relay to materialize sourceURL and consumes the streamed
// body with consumer.
func (c *Client) Download(ctx context.Context, sourceURL string, consumer *Consumer) (*Payload, error) {
	if consumer == nil {
		consumer = &Consumer{}
	}
	resp, err := c.post(ctx, sourceURL, "download")
	if err != nil {
		return nil, err
	}
	log.Debug().Str("op", "client/download").Int64("content_length", resp.ContentLength).Msg("Relay stream started")
	return consumer.Consume(resp)
}

// post validates sourceURL locally and returns the response only when it is a
// 200; any other status becomes a *ServerError.
func (c *Client) post(ctx context.Context, sourceURL, action string) (*http.Response, error) {
	u, err := resolver.ValidateSourceURL(sourceURL)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(getRequest{URL: u.String(), Action: action})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/get", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransfer, err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close()
	serr := &ServerError{Status: resp.StatusCode, Message: "server error"}
	var body struct {
		Error string `json:"error"`
	}
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024)); err == nil {
		if json.Unmarshal(data, &body) == nil && body.Error != "" {
			serr.Message = body.Error
		}
	}
	return nil, serr
}

// SavePayload writes p into dir under its own base name, picking a fresh
// "name-(n).ext" when that file already exists. It returns the written path.
func SavePayload(dir string, p *Payload) (string, error) {
	name := filepath.Base(filepath.Clean("/" + p.Name))
	if name == "/" || name == "." || name == "" {
		name = defaultFilename
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("error creating output directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		path = utils.RenewOutputPath(path)
	}
	if err := os.WriteFile(path, p.Data, 0644); err != nil {
		return "", fmt.Errorf("error writing output file: %w", err)
	}
	return path, nil
}
