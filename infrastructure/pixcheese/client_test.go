package pixcheese

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractShareKey(t *testing.T) {
	client := NewClient(Config{})

	tests := []struct {
		name    string
		url     string
		wantKey string
		wantOK  bool
	}{
		{"share path", "https://v.pixcheese.com/s/abc123", "abc123", true},
		{"share path with trailing segment", "https://v.pixcheese.com/s/abc123/view", "abc123", true},
		{"pre host", "https://v-pre.pixcheese.com/s/xyz", "xyz", true},
		{"no s segment uses last", "https://v.pixcheese.com/gallery/evt42", "evt42", true},
		{"unknown host", "https://evil.example.com/s/abc123", "", false},
		{"empty", "", "", false},
		{"no path", "https://v.pixcheese.com/", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := client.ExtractShareKey(tt.url)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestFetchAlbum(t *testing.T) {
	var photoServer *httptest.Server
	photoServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken.jpg" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		fmt.Fprint(w, "jpegbytes")
	}))
	defer photoServer.Close()

	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "8", r.Header.Get("App-Id"))

		switch r.URL.Path {
		case "/v1/share/project/info":
			fmt.Fprint(w, `{"code":0,"data":{"project_id":42,"project_name":"Event"}}`)
		case "/v1/share/img_class/list":
			fmt.Fprint(w, `{"code":0,"data":{"list":[{"class_id":7,"class_name":"All"}],"total":1}}`)
		case "/v1/share/new_list":
			assert.Equal(t, "evt123", r.Header.Get("Share-Key"))
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if body["page"].(float64) > 1 {
				fmt.Fprint(w, `{"code":0,"data":{"total":3,"list":[]}}`)
				return
			}
			fmt.Fprintf(w, `{"code":0,"data":{"total":3,"list":[
				{"file_id":"f1","file_name":"one.jpg","file_uri":"%[1]s/one.jpg","preview_uri":"%[1]s/one.thumb.jpg"},
				{"file_id":"f2","file_name":"two.jpg","file_uri":"%[1]s/broken.jpg"},
				{"file_id":"f1","file_name":"one.jpg","file_uri":"%[1]s/one.jpg"}
			]}}`, photoServer.URL)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer apiServer.Close()

	client := NewClient(Config{
		BaseURL:             apiServer.URL,
		AppID:               "8",
		DownloadConcurrency: 2,
	})

	result, err := client.FetchAlbum(context.Background(), "evt123")
	require.NoError(t, err)

	assert.Equal(t, "evt123", result.ShareKey)
	assert.Equal(t, 42, result.ProjectID)

	// f1 deduplicated, broken download skipped
	require.Len(t, result.Photos, 1)
	assert.Equal(t, "one.jpg", result.Photos[0].Filename)
	assert.Equal(t, []byte("jpegbytes"), result.Photos[0].Data)
	assert.Equal(t, "image/jpeg", result.Photos[0].ContentType)
	assert.Contains(t, result.Photos[0].PreviewURL, "one.thumb.jpg")
}

func TestFetchAlbum_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":1001,"message":"share link expired"}`)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})

	_, err := client.FetchAlbum(context.Background(), "evt123")
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 1001, fetchErr.Code)
	assert.Contains(t, fetchErr.Error(), "share link expired")
}

func TestFetchAlbum_RequiresShareKey(t *testing.T) {
	client := NewClient(Config{})
	_, err := client.FetchAlbum(context.Background(), "")
	require.Error(t, err)
}
