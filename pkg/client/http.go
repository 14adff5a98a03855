package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/masa-finance/timeline-worker/api/types"
)

// Client represents a client to interact with the job server.
type Client struct {
	BaseURL    string
	options    *Options
	HTTPClient *http.Client
}

// NewClient creates a new Client instance.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	options, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: options.Timeout}
	}

	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		options:    options,
		HTTPClient: httpClient,
	}, nil
}

// SubmitJob queues a background job and returns a handle to follow it.
func (c *Client) SubmitJob(ctx context.Context, req types.JobRequest) (*JobResult, error) {
	var jobResp types.JobResponse
	if err := c.do(ctx, http.MethodPost, "/job/add", req, &jobResp); err != nil {
		return nil, err
	}
	if jobResp.UID == "" {
		return nil, fmt.Errorf("server returned an empty job id")
	}
	return &JobResult{
		UUID:       jobResp.UID,
		client:     c,
		maxRetries: c.options.MaxPollAttempts,
		delay:      c.options.PollInterval,
	}, nil
}

// GetStatus returns the current snapshot of a job.
func (c *Client) GetStatus(ctx context.Context, jobUUID string) (types.Job, error) {
	var job types.Job
	err := c.do(ctx, http.MethodGet, "/job/status/"+url.PathEscape(jobUUID), nil, &job)
	return job, err
}

// GetArtifact returns the stored records of a completed job.
func (c *Client) GetArtifact(ctx context.Context, jobUUID string) (types.Artifact, error) {
	var artifact types.Artifact
	err := c.do(ctx, http.MethodGet, "/job/result/"+url.PathEscape(jobUUID), nil, &artifact)
	return artifact, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("error marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.options.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.options.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending %s request: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrJobNotFound
	case resp.StatusCode == http.StatusConflict:
		return ErrJobNotCompleted
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		respErr := types.JobError{}
		_ = json.Unmarshal(data, &respErr)
		if respErr.Error == "" {
			respErr.Error = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: respErr.Error, JobID: respErr.UID}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("error unmarshaling response: %w", err)
	}
	return nil
}
