package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"visionctl/internal/metrics"
	"visionctl/internal/model"
	"visionctl/internal/protocol"
	"visionctl/internal/session"
)

const maxResponseBytes = 8 << 20

// Client talks to the inference service.
type Client struct {
	BaseURL        string
	HTTPClient     *http.Client
	Session        session.Session
	MaxUploadBytes int64
	Metrics        *metrics.Collector

	// Logger is optional; when nil the standard log package is used.
	Logger *log.Logger

	images *cache.Cache
}

func NewClient(baseURL string, sess session.Session) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = protocol.DefaultBaseURL
	}
	return &Client{
		BaseURL:        baseURL,
		HTTPClient:     &http.Client{Timeout: protocol.DefaultRequestTimeout},
		Session:        sess,
		MaxUploadBytes: protocol.DefaultMaxUploadBytes,
		images:         cache.New(protocol.DefaultImageCacheTTL, 2*protocol.DefaultImageCacheTTL),
	}
}

// SetImageCacheTTL replaces the label image cache. A non-positive ttl
// disables caching.
func (c *Client) SetImageCacheTTL(ttl time.Duration) {
	if ttl <= 0 {
		c.images = nil
		return
	}
	c.images = cache.New(ttl, 2*ttl)
}

type modelsResponse struct {
	Models []model.Model `json:"models"`
}

type trainingDataResponse struct {
	TrainingData []model.LabeledImageGroup `json:"training_data"`
}

type uploadedDataResponse struct {
	UploadedData []model.LabeledImageGroup `json:"uploaded_data"`
}

type labelsResponse struct {
	Labels []string `json:"labels"`
}

type trainRequest struct {
	Labels []string `json:"labels"`
}

// envelope is the acknowledgement wrapper the service puts around bodies.
type envelope struct {
	Status  *bool           `json:"status"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Detail  json.RawMessage `json:"detail"`
}

func (c *Client) Models(ctx context.Context) ([]model.Model, error) {
	var out modelsResponse
	if err := c.getJSON(ctx, "models", protocol.PathModels, &out); err != nil {
		return nil, err
	}
	if out.Models == nil {
		out.Models = []model.Model{}
	}
	return out.Models, nil
}

func (c *Client) TrainingData(ctx context.Context) ([]model.LabeledImageGroup, error) {
	var out trainingDataResponse
	if err := c.getJSON(ctx, "training_data", protocol.PathTrainingData, &out); err != nil {
		return nil, err
	}
	if out.TrainingData == nil {
		out.TrainingData = []model.LabeledImageGroup{}
	}
	return out.TrainingData, nil
}

func (c *Client) UploadedData(ctx context.Context) ([]model.LabeledImageGroup, error) {
	var out uploadedDataResponse
	if err := c.getJSON(ctx, "uploaded_data", protocol.PathUploadedData, &out); err != nil {
		return nil, err
	}
	if out.UploadedData == nil {
		out.UploadedData = []model.LabeledImageGroup{}
	}
	return out.UploadedData, nil
}

func (c *Client) Labels(ctx context.Context) ([]string, error) {
	var out labelsResponse
	if err := c.getJSON(ctx, "labels", protocol.PathLabels, &out); err != nil {
		return nil, err
	}
	if out.Labels == nil {
		out.Labels = []string{}
	}
	return out.Labels, nil
}

// StartTraining asks the service to train on labels. The service answers
// with an acknowledgement only; progress is read with TrainingStatus.
func (c *Client) StartTraining(ctx context.Context, labels []string) error {
	if len(labels) == 0 {
		return model.ErrEmptySelection
	}
	payload, err := json.Marshal(trainRequest{Labels: labels})
	if err != nil {
		return &model.APIError{Op: "train", Kind: model.KindServer, Message: "failed to marshal train request", Cause: err}
	}
	return c.do(ctx, "train", http.MethodPost, protocol.PathTrain, bytes.NewReader(payload), "application/json", nil)
}

func (c *Client) TrainingStatus(ctx context.Context) (model.TrainingStatus, error) {
	var out model.TrainingStatus
	if err := c.getJSON(ctx, "training_status", protocol.PathTrainingStatus, &out); err != nil {
		return model.TrainingStatus{}, err
	}
	return out, nil
}

func (c *Client) DeleteModel(ctx context.Context, id int64) error {
	path := protocol.PathModels + "/" + strconv.FormatInt(id, 10)
	return c.do(ctx, "delete_model", http.MethodDelete, path, nil, "", nil)
}

// StaticImageURL is the URL a stored training image is served from.
func (c *Client) StaticImageURL(label, filename string) string {
	return c.BaseURL + protocol.PathStaticTrain + url.PathEscape(label) + "/" + url.PathEscape(filename)
}

// ProbeImage checks that a stored image can be served. Callers render
// gallery.Placeholder when it fails.
func (c *Client) ProbeImage(ctx context.Context, label, filename string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.StaticImageURL(label, filename), nil)
	if err != nil {
		return &model.APIError{Op: "probe_image", Kind: model.KindTransport, Message: "failed to build request", Cause: err}
	}
	c.Session.Apply(req)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return &model.APIError{Op: "probe_image", Kind: model.KindTransport, Message: "request failed", Retryable: true, Cause: err}
	}
	_ = resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &model.APIError{Op: "probe_image", Kind: model.KindServer, Message: "image not available", StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	return c.do(ctx, op, http.MethodGet, path, nil, "", out)
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) error {
	start := time.Now()
	err := c.roundTrip(ctx, op, method, path, body, contentType, out)
	c.Metrics.ObserveRequest(op, err, time.Since(start))
	if err != nil {
		c.logf("%s %s failed: %v", method, path, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return &model.APIError{Op: op, Kind: model.KindTransport, Message: "failed to build request", Cause: err}
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.Session.Apply(req)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return &model.APIError{Op: op, Kind: model.KindTransport, Message: "request failed", Retryable: true, Cause: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &model.APIError{Op: op, Kind: model.KindTransport, Message: "failed to read response", Retryable: true, StatusCode: resp.StatusCode, Cause: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return mapServerError(op, resp.StatusCode, raw)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		if out != nil {
			return &model.APIError{Op: op, Kind: model.KindServer, Message: "empty response body", StatusCode: resp.StatusCode}
		}
		return nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err == nil && env.Status != nil && !*env.Status {
		return &model.APIError{Op: op, Kind: model.KindServer, Message: envelopeMessage(env, "service reported failure"), StatusCode: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return &model.APIError{Op: op, Kind: model.KindServer, Message: "malformed response", StatusCode: resp.StatusCode, Cause: err}
	}
	return nil
}

func mapServerError(op string, statusCode int, body []byte) error {
	message := fmt.Sprintf("service returned status %d", statusCode)
	trimmed := bytes.TrimSpace(body)
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err == nil {
		message = envelopeMessage(env, message)
	} else if len(trimmed) > 0 {
		message = string(trimmed)
	}

	return &model.APIError{
		Op:         op,
		Kind:       model.KindServer,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError,
	}
}

// envelopeMessage picks the most specific message in a service body.
// FastAPI puts validation failures in detail as a list of {msg} objects.
func envelopeMessage(env envelope, fallback string) string {
	if len(env.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(env.Detail, &detail); err == nil && strings.TrimSpace(detail) != "" {
			return strings.TrimSpace(detail)
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(env.Detail, &items); err == nil {
			msgs := make([]string, 0, len(items))
			for _, item := range items {
				if m := strings.TrimSpace(item.Msg); m != "" {
					msgs = append(msgs, m)
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
	}
	if m := strings.TrimSpace(env.Error); m != "" {
		return m
	}
	if m := strings.TrimSpace(env.Message); m != "" {
		return m
	}
	return fallback
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return &http.Client{Timeout: protocol.DefaultRequestTimeout}
	}
	return c.HTTPClient
}

func (c *Client) logf(format string, args ...any) {
	if c.Logger != nil {
		c.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
