package photos

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gallerio/cloud-export/internal/model"
)

func testCreds() *model.Credentials {
	return &model.Credentials{AccessToken: "at-test", ExpiresAt: time.Now().Add(time.Hour)}
}

type fakePhotos struct {
	mu          sync.Mutex
	albums      []album
	nextToken   int
	uploads     map[string]string // upload token -> body
	created     map[string]string // file name -> album id it landed in
	listCalls   int
	createAlbum int
	batchSizes  []int
	rejectName  string // file name whose creation is rejected
	failUpload  string // file name (body) whose byte upload fails
}

func newFakePhotos() *fakePhotos {
	return &fakePhotos{uploads: make(map[string]string), created: make(map[string]string)}
}

func (f *fakePhotos) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/uploads", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Goog-Upload-Protocol"); got != "raw" {
			t.Errorf("X-Goog-Upload-Protocol = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failUpload != "" && string(body) == f.failUpload {
			http.Error(w, "quota", http.StatusTooManyRequests)
			return
		}
		f.nextToken++
		token := fmt.Sprintf("tok-%d", f.nextToken)
		f.uploads[token] = string(body)
		w.Write([]byte(token + "\n"))
	})
	mux.HandleFunc("/albums", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.Method == http.MethodGet {
			f.listCalls++
			json.NewEncoder(w).Encode(albumList{Albums: f.albums})
			return
		}
		f.createAlbum++
		var req struct {
			Album struct {
				Title string `json:"title"`
			} `json:"album"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		a := album{
			ID:         fmt.Sprintf("album-%d", len(f.albums)+1),
			Title:      req.Album.Title,
			ProductURL: "https://photos.google.com/album/" + req.Album.Title,
		}
		f.albums = append(f.albums, a)
		json.NewEncoder(w).Encode(a)
	})
	mux.HandleFunc("/mediaItems:batchCreate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AlbumID       string         `json:"albumId"`
			NewMediaItems []newMediaItem `json:"newMediaItems"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.batchSizes = append(f.batchSizes, len(req.NewMediaItems))
		var resp batchCreateResponse
		for _, item := range req.NewMediaItems {
			name := item.SimpleMediaItem.FileName
			res := newMediaItemResult{UploadToken: item.SimpleMediaItem.UploadToken}
			if name == f.rejectName {
				res.Status.Code = 3
				res.Status.Message = "NOT_AN_IMAGE"
			} else {
				f.created[name] = req.AlbumID
				res.MediaItem = &mediaItem{
					ID:         "media-" + name,
					ProductURL: "https://photos.google.com/photo/" + name,
				}
			}
			resp.NewMediaItemResults = append(resp.NewMediaItemResults, res)
		}
		json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func newTestClient(t *testing.T, f *fakePhotos) *Client {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c := NewClient("id", "secret")
	c.apiBase = srv.URL
	return c
}

func TestAuthorizationURLRequestsOfflineAccess(t *testing.T) {
	c := NewClient("id", "secret")
	u := c.AuthorizationURL("state-1", "http://localhost:8080/callback")
	if !strings.Contains(u, "access_type=offline") {
		t.Errorf("offline access not requested: %s", u)
	}
}

func TestUploadFile(t *testing.T) {
	f := newFakePhotos()
	c := newTestClient(t, f)

	url, err := c.UploadFile(context.Background(), testCreds(), model.ExportFile{
		Name:     "photo.jpg",
		Content:  strings.NewReader("jpegdata"),
		MimeType: "image/jpeg",
	}, "Exports")
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if url != "https://photos.google.com/photo/photo.jpg" {
		t.Errorf("url = %q", url)
	}
	if f.created["photo.jpg"] != "album-1" {
		t.Errorf("created = %v", f.created)
	}
}

func TestEnsureAlbumReusesExactTitle(t *testing.T) {
	f := newFakePhotos()
	f.albums = []album{
		{ID: "album-old", Title: "Wedding", ProductURL: "https://photos.google.com/album/old"},
	}
	c := newTestClient(t, f)

	res, err := c.ExportFiles(context.Background(), testCreds(), model.ExportRequest{
		AlbumName: "Wedding",
		Files:     []model.ExportFile{{Name: "a.jpg", Content: strings.NewReader("a")}},
	})
	if err != nil {
		t.Fatalf("ExportFiles: %v", err)
	}
	if f.createAlbum != 0 {
		t.Errorf("createAlbum = %d, want reuse of existing album", f.createAlbum)
	}
	if f.created["a.jpg"] != "album-old" {
		t.Errorf("created = %v", f.created)
	}
	if res.URL != "https://photos.google.com/album/old" {
		t.Errorf("URL = %q", res.URL)
	}
}

func TestExportFilesFlattensSets(t *testing.T) {
	f := newFakePhotos()
	c := newTestClient(t, f)

	res, err := c.ExportFiles(context.Background(), testCreds(), model.ExportRequest{
		AlbumName: "Wedding",
		Files: []model.ExportFile{
			{Name: "cover.jpg", Content: strings.NewReader("c")},
			{Name: "a.jpg", Content: strings.NewReader("a"), Set: "Ceremony"},
			{Name: "b.jpg", Content: strings.NewReader("b"), Set: "Reception"},
		},
	})
	if err != nil {
		t.Fatalf("ExportFiles: %v", err)
	}
	if f.createAlbum != 1 {
		t.Errorf("createAlbum = %d, want exactly one album regardless of sets", f.createAlbum)
	}
	for _, name := range []string{"cover.jpg", "a.jpg", "b.jpg"} {
		if f.created[name] != "album-1" {
			t.Errorf("%s landed in %q, want album-1", name, f.created[name])
		}
	}
	if res.Succeeded() != 3 {
		t.Errorf("Succeeded() = %d", res.Succeeded())
	}
}

func TestExportFilesPartialRejection(t *testing.T) {
	f := newFakePhotos()
	f.rejectName = "bad.tiff"
	c := newTestClient(t, f)

	res, err := c.ExportFiles(context.Background(), testCreds(), model.ExportRequest{
		AlbumName: "A",
		Files: []model.ExportFile{
			{Name: "good.jpg", Content: strings.NewReader("g")},
			{Name: "bad.tiff", Content: strings.NewReader("b")},
		},
	})
	if err != nil {
		t.Fatalf("per-item rejection must not fail the batch: %v", err)
	}
	if res.Succeeded() != 1 {
		t.Fatalf("Succeeded() = %d", res.Succeeded())
	}
	var bad model.FileStatus
	for _, s := range res.Files {
		if s.Name == "bad.tiff" {
			bad = s
		}
	}
	if bad.OK || !strings.Contains(bad.Error, "NOT_AN_IMAGE") {
		t.Errorf("rejected item status = %+v", bad)
	}
}

func TestExportFilesByteUploadFailure(t *testing.T) {
	f := newFakePhotos()
	f.failUpload = "doomed"
	c := newTestClient(t, f)

	res, err := c.ExportFiles(context.Background(), testCreds(), model.ExportRequest{
		AlbumName: "A",
		Files: []model.ExportFile{
			{Name: "ok.jpg", Content: strings.NewReader("fine")},
			{Name: "nope.jpg", Content: strings.NewReader("doomed")},
		},
	})
	if err != nil {
		t.Fatalf("ExportFiles: %v", err)
	}
	if res.Succeeded() != 1 {
		t.Errorf("Succeeded() = %d", res.Succeeded())
	}
	// Only the surviving file reaches batchCreate.
	if len(f.batchSizes) != 1 || f.batchSizes[0] != 1 {
		t.Errorf("batchSizes = %v", f.batchSizes)
	}
}

func TestExportFilesChunksBatchCreate(t *testing.T) {
	f := newFakePhotos()
	c := newTestClient(t, f)

	req := model.ExportRequest{AlbumName: "Big"}
	for i := 0; i < maxCreateBatch+7; i++ {
		req.Files = append(req.Files, model.ExportFile{
			Name:    fmt.Sprintf("f%03d.jpg", i),
			Content: strings.NewReader("x"),
		})
	}
	res, err := c.ExportFiles(context.Background(), testCreds(), req)
	if err != nil {
		t.Fatalf("ExportFiles: %v", err)
	}
	if res.Succeeded() != maxCreateBatch+7 {
		t.Errorf("Succeeded() = %d", res.Succeeded())
	}
	if len(f.batchSizes) != 2 || f.batchSizes[0] != maxCreateBatch || f.batchSizes[1] != 7 {
		t.Errorf("batchSizes = %v, want [%d 7]", f.batchSizes, maxCreateBatch)
	}
}

func TestExportFilesAllFail(t *testing.T) {
	f := newFakePhotos()
	f.failUpload = "doomed"
	c := newTestClient(t, f)

	_, err := c.ExportFiles(context.Background(), testCreds(), model.ExportRequest{
		AlbumName: "A",
		Files:     []model.ExportFile{{Name: "only.jpg", Content: strings.NewReader("doomed")}},
	})
	if err == nil {
		t.Fatal("zero successes must fail the export")
	}
}
