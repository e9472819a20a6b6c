package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hadiwinata/mediaforge/internal/domain"
)

// ErrMissingAPIKey indicates that the client was configured without
// credentials.
var ErrMissingAPIKey = errors.New("provider: api key is required")

const (
	defaultPollInterval = 2 * time.Second
	defaultPollTimeout  = 10 * time.Minute
)

// ClientOptions configures an async-task vendor client.
type ClientOptions struct {
	Name         string
	APIKey       string
	BaseURL      string
	DefaultModel string
	HTTPClient   *http.Client
	Logger       *zerolog.Logger
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Client talks to a vendor exposing the create-task / get-task-status pair
// described by every upstream this platform integrates with. One Client is
// shared by the modality gateways built on it.
type Client struct {
	name         string
	apiKey       string
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	logger       zerolog.Logger
	pollInterval time.Duration
	pollTimeout  time.Duration
}

type createTaskRequest struct {
	Model    string         `json:"model"`
	Modality string         `json:"modality"`
	Input    taskInput      `json:"input"`
	Options  map[string]any `json:"options,omitempty"`
}

type taskInput struct {
	Prompt          string   `json:"prompt,omitempty"`
	NegativePrompt  string   `json:"negative_prompt,omitempty"`
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
	DurationSec     int      `json:"duration_sec,omitempty"`
	Quantity        int      `json:"quantity,omitempty"`
	VoiceID         string   `json:"voice_id,omitempty"`
	ReferenceAssets []string `json:"reference_assets,omitempty"`
	Steps           []string `json:"steps,omitempty"`
}

type createTaskResponse struct {
	TaskID  string `json:"task_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TaskStatus is the vendor's view of a task.
type TaskStatus struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Results []struct {
		URL  string `json:"url"`
		MIME string `json:"mime"`
	} `json:"results"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewClient constructs a vendor client with sane defaults.
func NewClient(opts ClientOptions) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("provider: base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	name := opts.Name
	if name == "" {
		name = "vendor"
	}
	return &Client{
		name:         name,
		apiKey:       opts.APIKey,
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		defaultModel: opts.DefaultModel,
		httpClient:   httpClient,
		logger:       logger,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
	}, nil
}

// Name returns the configured provider name.
func (c *Client) Name() string { return c.name }

// CreateTask submits a generation task and returns the vendor task id.
func (c *Client) CreateTask(ctx context.Context, modality string, model string, input taskInput) (string, error) {
	if model == "" {
		model = c.defaultModel
	}
	body, err := json.Marshal(createTaskRequest{Model: model, Modality: modality, Input: input})
	if err != nil {
		return "", &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf("encode task request: %v", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/tasks", bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindInvalidRequest, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportError(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &Error{Kind: KindUpstreamInternal, Message: fmt.Sprintf("read response: %v", err)}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", statusError(resp.StatusCode, payload)
	}
	var out createTaskResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", &Error{Kind: KindUpstreamInternal, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if out.TaskID == "" {
		return "", &Error{Kind: KindUpstreamInternal, Code: out.Code, Message: nonEmpty(out.Message, "missing task id")}
	}
	c.logger.Debug().Str("provider", c.name).Str("task_id", out.TaskID).Msg("provider: task created")
	return out.TaskID, nil
}

// PollTask polls the task until it reaches SUCCEEDED or FAILED, or the poll
// budget runs out.
func (c *Client) PollTask(ctx context.Context, taskID string) (TaskStatus, error) {
	deadline := time.Now().Add(c.pollTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.taskStatus(ctx, taskID)
		if err != nil {
			return TaskStatus{}, err
		}
		switch strings.ToUpper(status.Status) {
		case "SUCCEEDED":
			return status, nil
		case "FAILED":
			return TaskStatus{}, vendorFailure(status)
		}
		if time.Now().After(deadline) {
			return TaskStatus{}, &Error{Kind: KindUpstreamTimeout, Message: fmt.Sprintf("task %s did not finish within %s", taskID, c.pollTimeout)}
		}
		select {
		case <-ctx.Done():
			return TaskStatus{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) taskStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/tasks/"+taskID, nil)
	if err != nil {
		return TaskStatus{}, &Error{Kind: KindInvalidRequest, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TaskStatus{}, transportError(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return TaskStatus{}, &Error{Kind: KindUpstreamInternal, Message: fmt.Sprintf("read response: %v", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return TaskStatus{}, statusError(resp.StatusCode, payload)
	}
	var out TaskStatus
	if err := json.Unmarshal(payload, &out); err != nil {
		return TaskStatus{}, &Error{Kind: KindUpstreamInternal, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return out, nil
}

func transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindUpstreamTimeout, Message: err.Error()}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &Error{Kind: KindUpstreamInternal, Message: err.Error()}
}

func statusError(statusCode int, payload []byte) error {
	var detail errorResponse
	_ = json.Unmarshal(payload, &detail)
	msg := nonEmpty(detail.Message, http.StatusText(statusCode))

	switch {
	case statusCode == http.StatusBadRequest:
		return &Error{Kind: KindInvalidRequest, Code: detail.Code, Message: msg}
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &Error{Kind: KindUnauthorized, Code: detail.Code, Message: msg}
	case statusCode == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Code: detail.Code, Message: msg}
	case statusCode == http.StatusNotFound:
		return &Error{Kind: KindModelUnavailable, Code: detail.Code, Message: msg}
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return &Error{Kind: KindUpstreamTimeout, Code: detail.Code, Message: msg}
	default:
		return &Error{Kind: KindUpstreamInternal, Code: detail.Code, Message: msg}
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func vendorFailure(status TaskStatus) error {
	kind := KindUpstreamInternal
	switch strings.ToLower(status.Code) {
	case "invalid_request", "invalid_prompt":
		kind = KindInvalidRequest
	case "model_not_found", "model_unavailable":
		kind = KindModelUnavailable
	case "rate_limited", "throttled":
		kind = KindRateLimited
	}
	return &Error{Kind: kind, Code: status.Code, Message: nonEmpty(status.Message, "task failed")}
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) != "" {
		return s
	}
	return fallback
}

// TaskGateway adapts a Client into a Gateway for one modality family.
type TaskGateway struct {
	client   *Client
	modality string
	kind     domain.ArtifactKind
}

// NewTaskGateway builds the gateway for a modality ("image", "video",
// "audio", "script") producing artifacts of the given kind.
func NewTaskGateway(client *Client, modality string, kind domain.ArtifactKind) *TaskGateway {
	return &TaskGateway{client: client, modality: modality, kind: kind}
}

// Dispatch implements Gateway.
func (g *TaskGateway) Dispatch(ctx context.Context, job *domain.Job) (Receipt, error) {
	in := job.Input
	taskID, err := g.client.CreateTask(ctx, g.modality, in.ModelID, taskInput{
		Prompt:          in.Prompt,
		NegativePrompt:  in.NegativePrompt,
		AspectRatio:     in.AspectRatio,
		DurationSec:     in.DurationSec,
		Quantity:        in.Quantity,
		VoiceID:         in.VoiceID,
		ReferenceAssets: in.ReferenceAssets,
		Steps:           in.Steps,
	})
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{TaskID: taskID, Provider: g.client.Name()}, nil
}

// Await implements Gateway.
func (g *TaskGateway) Await(ctx context.Context, receipt Receipt) (Result, error) {
	status, err := g.client.PollTask(ctx, receipt.TaskID)
	if err != nil {
		return Result{}, err
	}
	artifacts := make([]domain.Artifact, 0, len(status.Results))
	for _, res := range status.Results {
		artifacts = append(artifacts, domain.Artifact{
			Kind:     g.kind,
			Location: res.URL,
			MIME:     res.MIME,
			Provider: receipt.Provider,
			Metadata: map[string]string{"task_id": receipt.TaskID},
		})
	}
	if len(artifacts) == 0 {
		return Result{}, &Error{Kind: KindUpstreamInternal, Message: "task succeeded with no results"}
	}
	return Result{Artifacts: artifacts}, nil
}

var _ Gateway = (*TaskGateway)(nil)
