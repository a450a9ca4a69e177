package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appErr "vjudge/pkg/errors"
)

// Client is the HTTP implementation of Runner.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Run(ctx context.Context, req *Request) ([]Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxError, "marshal run request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxError, "build run request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxError, "post run request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, appErr.Newf(appErr.SandboxError, "sandbox returned %d: %s", resp.StatusCode, string(msg))
	}

	var results []Result
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxError, "decode run results")
	}
	if len(results) != len(req.Cmd) {
		return nil, appErr.Newf(appErr.SandboxError,
			"sandbox returned %d results for %d commands", len(results), len(req.Cmd))
	}
	return results, nil
}

func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	url := fmt.Sprintf("%s/file/%s", c.baseURL, fileID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return appErr.Wrapf(err, appErr.SandboxError, "build delete request")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return appErr.Wrapf(err, appErr.SandboxError, "delete sandbox file")
	}
	defer resp.Body.Close()

	// Deleting a missing file is fine, the artifact is gone either way.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return appErr.Newf(appErr.SandboxError, "delete file %s: status %d", fileID, resp.StatusCode)
	}
	return nil
}
