package facepp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"findme-api/domain/services"
	"findme-api/pkg/logger"
)

// The add-face endpoint accepts at most this many tokens per call,
// independent of faceset capacity.
const MaxAddFaceTokens = 5

// ReasonConcurrencyLimit is the boundary's reason code for too many
// in-flight requests. Retried by the pipeline; every other reason is fatal.
const ReasonConcurrencyLimit = "CONCURRENCY_LIMIT_EXCEEDED"

// Config holds the Face++ credentials. Constructed once at startup and
// passed explicitly; the client never reads ambient env state.
type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
}

// APIError is a non-2xx response from the Face++ API
type APIError struct {
	Status int
	Reason string // error_message from the JSON body, if parseable
	Body   string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("facepp: %s (status %d)", e.Reason, e.Status)
	}
	return fmt.Sprintf("facepp: request failed (status %d): %s", e.Status, e.Body)
}

// IsConcurrencyLimit reports whether err is the boundary's concurrency-limit
// signal. It checks the structured reason code first and falls back to a
// message substring for errors that lost their type through wrapping.
func IsConcurrencyLimit(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return strings.Contains(apiErr.Reason, ReasonConcurrencyLimit) ||
			strings.Contains(apiErr.Body, ReasonConcurrencyLimit)
	}
	return err != nil && strings.Contains(err.Error(), ReasonConcurrencyLimit)
}

// Client communicates with the Face++ recognition API
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new Face++ client
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" || config.APISecret == "" {
		return nil, errors.New("facepp: credentials are missing")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api-us.faceplusplus.com/facepp/v3"
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

type detectResponse struct {
	RequestID string `json:"request_id"`
	FaceNum   int    `json:"face_num"`
	Faces     []struct {
		FaceToken string `json:"face_token"`
	} `json:"faces"`
}

type addFaceResponse struct {
	FacesetToken  string `json:"faceset_token"`
	OuterID       string `json:"outer_id"`
	FaceCount     int    `json:"face_count"`
	FaceAdded     int    `json:"face_added"`
	FailureDetail []struct {
		FaceToken string `json:"face_token"`
		Reason    string `json:"reason"`
	} `json:"failure_detail"`
}

type searchResponse struct {
	RequestID string `json:"request_id"`
	Results   []struct {
		FaceToken  string  `json:"face_token"`
		Confidence float64 `json:"confidence"`
	} `json:"results"`
	Thresholds map[string]float64 `json:"thresholds"`
}

// Detect runs face detection on one photo and returns the detected face
// tokens in the boundary's order
func (c *Client) Detect(ctx context.Context, image []byte, filename string) ([]string, error) {
	if filename == "" {
		filename = "image.jpg"
	}

	var result detectResponse
	err := c.postForm(ctx, "detect", &result, func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("image_file", filename)
		if err != nil {
			return err
		}
		if _, err := part.Write(image); err != nil {
			return err
		}
		if err := w.WriteField("return_landmark", "1"); err != nil {
			return err
		}
		return w.WriteField("return_attributes", "gender,age")
	})
	if err != nil {
		return nil, err
	}

	tokens := make([]string, 0, len(result.Faces))
	for _, face := range result.Faces {
		tokens = append(tokens, face.FaceToken)
	}
	return tokens, nil
}

// CreateFaceSet creates a new faceset seeded with one face token
func (c *Client) CreateFaceSet(ctx context.Context, outerID, seedToken string) error {
	var result struct {
		FacesetToken string `json:"faceset_token"`
	}
	return c.postForm(ctx, "faceset/create", &result, func(w *multipart.Writer) error {
		if err := w.WriteField("outer_id", outerID); err != nil {
			return err
		}
		return w.WriteField("face_tokens", seedToken)
	})
}

// AddFaces adds up to MaxAddFaceTokens tokens to an existing faceset
func (c *Client) AddFaces(ctx context.Context, outerID string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	if len(tokens) > MaxAddFaceTokens {
		return fmt.Errorf("facepp: addface accepts at most %d tokens, got %d", MaxAddFaceTokens, len(tokens))
	}

	var result addFaceResponse
	err := c.postForm(ctx, "faceset/addface", &result, func(w *multipart.Writer) error {
		if err := w.WriteField("outer_id", outerID); err != nil {
			return err
		}
		return w.WriteField("face_tokens", strings.Join(tokens, ","))
	})
	if err != nil {
		return err
	}

	if len(result.FailureDetail) > 0 {
		for _, failure := range result.FailureDetail {
			logger.Warn(logger.CategoryFace, "addface_partial_failure", "Faceset rejected a token", map[string]interface{}{
				"outer_id": outerID,
				"token":    failure.FaceToken,
				"reason":   failure.Reason,
			})
		}
	}
	return nil
}

// Search queries a faceset with a face token. returnCount is clamped to the
// boundary's 1..5 range.
func (c *Client) Search(ctx context.Context, outerID, faceToken string, returnCount int) (*services.FaceSearchResponse, error) {
	if returnCount < 1 {
		returnCount = 1
	}
	if returnCount > 5 {
		returnCount = 5
	}

	var result searchResponse
	err := c.postForm(ctx, "search", &result, func(w *multipart.Writer) error {
		if err := w.WriteField("outer_id", outerID); err != nil {
			return err
		}
		if err := w.WriteField("face_token", faceToken); err != nil {
			return err
		}
		return w.WriteField("return_result_count", strconv.Itoa(returnCount))
	})
	if err != nil {
		return nil, err
	}

	hits := make([]services.FaceSearchHit, 0, len(result.Results))
	for _, r := range result.Results {
		hits = append(hits, services.FaceSearchHit{
			Token:      r.FaceToken,
			Confidence: r.Confidence,
		})
	}

	return &services.FaceSearchResponse{
		Hits:       hits,
		Thresholds: result.Thresholds,
	}, nil
}

// postForm sends an authenticated multipart POST and decodes the JSON
// response into out
func (c *Client) postForm(ctx context.Context, path string, out interface{}, build func(w *multipart.Writer) error) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("api_key", c.config.APIKey); err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if err := writer.WriteField("api_secret", c.config.APISecret); err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if err := build(writer); err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/" + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call facepp API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return newAPIError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		Status: status,
		Body:   string(body),
	}

	var parsed struct {
		ErrorMessage string `json:"error_message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Reason = parsed.ErrorMessage
	}
	return apiErr
}
