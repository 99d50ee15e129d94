package pixcheese

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"findme-api/domain/services"
	"findme-api/pkg/concurrency"
	"findme-api/pkg/logger"
)

var supportedHosts = map[string]bool{
	"v.pixcheese.com":     true,
	"v-pre.pixcheese.com": true,
}

// Config holds the Pixcheese gallery API settings
type Config struct {
	BaseURL             string
	AppID               string
	AppVersion          string
	Language            string
	MaxPhotos           int
	PageSize            int
	DownloadConcurrency int
}

// FetchError is a typed failure from the album-fetch boundary
type FetchError struct {
	Code    int
	Status  int
	Message string
}

func (e *FetchError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("pixcheese: %s (code %d)", e.Message, e.Code)
	}
	return fmt.Sprintf("pixcheese: %s", e.Message)
}

// Client communicates with the Pixcheese shared-gallery API
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new Pixcheese client
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://preview-api.pixcheese.com"
	}
	if config.MaxPhotos < 1 {
		config.MaxPhotos = 700
	}
	if config.PageSize < 1 {
		config.PageSize = 50
	}
	if config.DownloadConcurrency < 1 {
		config.DownloadConcurrency = 4
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// ExtractShareKey normalizes a share URL into the collection identity used
// as the cache key. Only known gallery hosts are accepted; the key is the
// segment after "/s/", or the last path segment when no "/s/" is present.
func (c *Client) ExtractShareKey(rawURL string) (string, bool) {
	if rawURL == "" {
		return "", false
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || !supportedHosts[parsed.Hostname()] {
		return "", false
	}

	segments := make([]string, 0)
	for _, segment := range strings.Split(parsed.Path, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	if len(segments) == 0 {
		return "", false
	}

	for i, segment := range segments {
		if segment == "s" && i+1 < len(segments) {
			return segments[i+1], true
		}
	}
	return segments[len(segments)-1], true
}

type apiEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type projectInfo struct {
	ProjectID     int    `json:"project_id"`
	ProjectName   string `json:"project_name"`
	PrivateStatus int    `json:"private_status"`
}

type classListResponse struct {
	List []struct {
		ClassID   int    `json:"class_id"`
		ClassName string `json:"class_name"`
	} `json:"list"`
	Total int `json:"total"`
}

type photoListItem struct {
	FileID     string `json:"file_id"`
	FileName   string `json:"file_name"`
	FileURI    string `json:"file_uri"`
	ThumbURI   string `json:"thumb_uri"`
	PreviewURI string `json:"preview_uri"`
	ClassID    int    `json:"class_id"`
}

type photoListResponse struct {
	Total      int             `json:"total"`
	DisplayNum int             `json:"display_num"`
	List       []photoListItem `json:"list"`
}

// FetchAlbum resolves the shared collection behind shareKey and downloads
// its photos. Individual photo downloads may fail and are skipped; an empty
// result is an error.
func (c *Client) FetchAlbum(ctx context.Context, shareKey string) (*services.AlbumFetchResult, error) {
	if shareKey == "" {
		return nil, &FetchError{Message: "share key is required"}
	}

	var project projectInfo
	if err := c.post(ctx, "/v1/share/project/info", map[string]interface{}{"share_key": shareKey}, nil, &project); err != nil {
		return nil, err
	}

	var classes classListResponse
	err := c.post(ctx, "/v1/share/img_class/list", map[string]interface{}{
		"project_id":     project.ProjectID,
		"share_password": "",
	}, nil, &classes)
	if err != nil {
		return nil, err
	}

	classIDs := make([]int, 0, len(classes.List))
	for _, class := range classes.List {
		classIDs = append(classIDs, class.ClassID)
	}
	if len(classIDs) == 0 {
		classIDs = append(classIDs, 0)
	}

	items, err := c.collectPhotos(ctx, shareKey, project.ProjectID, classIDs)
	if err != nil {
		return nil, err
	}

	photos, err := c.downloadPhotos(ctx, items)
	if err != nil {
		return nil, err
	}
	if len(photos) == 0 {
		return nil, &FetchError{Message: "no photos could be fetched from the shared album"}
	}

	logger.Album("album_fetched", "Fetched shared album", map[string]interface{}{
		"share_key":  shareKey,
		"project_id": project.ProjectID,
		"photos":     len(photos),
	})

	return &services.AlbumFetchResult{
		ShareKey:  shareKey,
		ProjectID: project.ProjectID,
		Photos:    photos,
	}, nil
}

// collectPhotos pages through each photo class, deduplicating by file ID,
// until maxPhotos is reached or the listing is exhausted
func (c *Client) collectPhotos(ctx context.Context, shareKey string, projectID int, classIDs []int) ([]photoListItem, error) {
	collected := make([]photoListItem, 0)
	seen := make(map[string]bool)

	headers := map[string]string{
		"Share-Key": shareKey,
		"N-WMK":     "0",
	}

	for _, classID := range classIDs {
		page := 1
		for len(collected) < c.config.MaxPhotos {
			pageSize := c.config.PageSize
			if remaining := c.config.MaxPhotos - len(collected); remaining < pageSize {
				pageSize = remaining
			}

			var listing photoListResponse
			err := c.post(ctx, "/v1/share/new_list", map[string]interface{}{
				"project_id":     projectID,
				"class_id":       classID,
				"page":           page,
				"page_size":      pageSize,
				"share_password": "",
			}, headers, &listing)
			if err != nil {
				return nil, err
			}

			if len(listing.List) == 0 {
				break
			}

			for _, item := range listing.List {
				if seen[item.FileID] {
					continue
				}
				seen[item.FileID] = true
				collected = append(collected, item)
				if len(collected) >= c.config.MaxPhotos {
					break
				}
			}

			if len(listing.List) < pageSize {
				break
			}
			page++
		}

		if len(collected) >= c.config.MaxPhotos {
			break
		}
	}

	return collected, nil
}

// downloadPhotos fetches photo binaries with bounded concurrency. A failed
// download drops that photo, preserving the listing order of the rest.
func (c *Client) downloadPhotos(ctx context.Context, items []photoListItem) ([]services.AlbumPhoto, error) {
	downloaded, err := concurrency.MapWithConcurrency(ctx, items, c.config.DownloadConcurrency,
		func(ctx context.Context, item photoListItem, index int) (*services.AlbumPhoto, error) {
			photo, err := c.downloadPhoto(ctx, item)
			if err != nil {
				logger.Warn(logger.CategoryAlbum, "download_failed", "Skipping photo that failed to download", map[string]interface{}{
					"file_id": item.FileID,
					"error":   err.Error(),
				})
				return nil, nil
			}
			return photo, nil
		})
	if err != nil {
		return nil, err
	}

	photos := make([]services.AlbumPhoto, 0, len(downloaded))
	for _, photo := range downloaded {
		if photo != nil {
			photos = append(photos, *photo)
		}
	}
	return photos, nil
}

func (c *Client) downloadPhoto(ctx context.Context, item photoListItem) (*services.AlbumPhoto, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.FileURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download photo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read photo body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	filename := item.FileName
	if filename == "" {
		filename = item.FileID + ".jpg"
	}

	previewURL := item.PreviewURI
	if previewURL == "" {
		previewURL = item.ThumbURI
	}
	if previewURL == "" {
		previewURL = item.FileURI
	}

	return &services.AlbumPhoto{
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
		FileURL:     item.FileURI,
		PreviewURL:  previewURL,
	}, nil
}

// post sends a JSON request and decodes the enveloped data payload
func (c *Client) post(ctx context.Context, path string, body map[string]interface{}, extraHeaders map[string]string, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("App-Id", c.config.AppID)
	req.Header.Set("App-Version", c.config.AppVersion)
	req.Header.Set("Language", c.config.Language)
	req.Header.Set("X-Request-Id", fmt.Sprintf("%d_%s", time.Now().UnixMilli(), uuid.NewString()))
	for key, value := range extraHeaders {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call pixcheese API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var envelope apiEnvelope
	if unmarshalErr := json.Unmarshal(respBody, &envelope); unmarshalErr != nil {
		if resp.StatusCode != http.StatusOK {
			return &FetchError{Status: resp.StatusCode, Message: fmt.Sprintf("request failed with status %d", resp.StatusCode)}
		}
		return fmt.Errorf("failed to parse response: %w", unmarshalErr)
	}

	if resp.StatusCode != http.StatusOK || envelope.Code != 0 {
		message := envelope.Message
		if message == "" {
			message = "request failed"
		}
		return &FetchError{Code: envelope.Code, Status: resp.StatusCode, Message: message}
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to parse response data: %w", err)
		}
	}
	return nil
}
