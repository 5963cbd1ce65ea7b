package box

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

type fakeFolder struct {
	id       string
	name     string
	parentID string
}

// fakeBox serves the folder, upload and shared-link endpoints.
type fakeBox struct {
	mu          sync.Mutex
	nextID      int
	folders     []fakeFolder
	uploads     map[string]string // "parentID/name" -> body
	listCalls   int
	createCalls int
	conflict    bool // answer 409 on the next create
}

func newFakeBox() *fakeBox {
	return &fakeBox{nextID: 100, uploads: make(map[string]string)}
}

func (f *fakeBox) addFolder(parentID, name string) fakeFolder {
	f.nextID++
	folder := fakeFolder{id: fmt.Sprintf("%d", f.nextID), name: name, parentID: parentID}
	f.folders = append(f.folders, folder)
	return folder
}

func (f *fakeBox) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/folders/", func(w http.ResponseWriter, r *http.Request) {
		// GET /folders/{id}/items
		parentID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/folders/"), "/items")
		if strings.HasSuffix(r.URL.Path, "/items") {
			f.mu.Lock()
			f.listCalls++
			var items itemCollection
			for _, fl := range f.folders {
				if fl.parentID == parentID {
					items.Entries = append(items.Entries, itemEntry{ID: fl.id, Type: "folder", Name: fl.name})
				}
			}
			f.mu.Unlock()
			json.NewEncoder(w).Encode(items)
			return
		}
		// PUT /folders/{id}?fields=shared_link
		if r.Method == http.MethodPut {
			var item sharedLinkItem
			item.SharedLink.URL = "https://app.box.com/s/folder-" + parentID
			json.NewEncoder(w).Encode(item)
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("/folders", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name   string `json:"name"`
			Parent struct {
				ID string `json:"id"`
			} `json:"parent"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.createCalls++
		if f.conflict {
			f.conflict = false
			f.addFolder(req.Parent.ID, req.Name)
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"code":"item_name_in_use"}`))
			return
		}
		folder := f.addFolder(req.Parent.ID, req.Name)
		json.NewEncoder(w).Encode(itemEntry{ID: folder.id, Type: "folder", Name: folder.name})
	})
	mux.HandleFunc("/files/content", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("bad multipart request: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var attrs struct {
			Name   string `json:"name"`
			Parent struct {
				ID string `json:"id"`
			} `json:"parent"`
		}
		if err := json.Unmarshal([]byte(r.FormValue("attributes")), &attrs); err != nil {
			t.Errorf("bad attributes part: %v", err)
		}
		part, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(part)
		f.mu.Lock()
		f.nextID++
		id := fmt.Sprintf("%d", f.nextID)
		f.uploads[attrs.Parent.ID+"/"+attrs.Name] = string(body)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(itemCollection{Entries: []itemEntry{{ID: id, Type: "file", Name: attrs.Name}}})
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		// PUT /files/{id}?fields=shared_link
		id := strings.TrimPrefix(r.URL.Path, "/files/")
		var item sharedLinkItem
		item.SharedLink.URL = "https://app.box.com/s/file-" + id
		json.NewEncoder(w).Encode(item)
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeBox) *Client {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c := NewClient("id", "secret")
	c.apiBase = srv.URL
	c.uploadBase = srv.URL
	return c
}

func TestUploadFileToRoot(t *testing.T) {
	f := newFakeBox()
	c := newTestClient(t, f)

	url, err := c.UploadFile(context.Background(), testCreds(), model.ExportFile{
		Name:    "doc.pdf",
		Content: strings.NewReader("pdfdata"),
	}, "")
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if f.uploads["0/doc.pdf"] != "pdfdata" {
		t.Errorf("uploads = %v", f.uploads)
	}
	if !strings.HasPrefix(url, "https://app.box.com/s/file-") {
		t.Errorf("url = %q", url)
	}
}

func TestUploadFileCreatesFolder(t *testing.T) {
	f := newFakeBox()
	c := newTestClient(t, f)

	if _, err := c.UploadFile(context.Background(), testCreds(), model.ExportFile{
		Name:    "doc.pdf",
		Content: strings.NewReader("x"),
	}, "Exports"); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if f.createCalls != 1 {
		t.Errorf("createCalls = %d, want 1", f.createCalls)
	}
	if len(f.folders) != 1 || f.folders[0].name != "Exports" || f.folders[0].parentID != "0" {
		t.Errorf("folders = %+v", f.folders)
	}
}

func TestUploadFileReusesExistingFolder(t *testing.T) {
	f := newFakeBox()
	f.addFolder("0", "Exports")
	c := newTestClient(t, f)

	if _, err := c.UploadFile(context.Background(), testCreds(), model.ExportFile{
		Name:    "doc.pdf",
		Content: strings.NewReader("x"),
	}, "Exports"); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if f.createCalls != 0 {
		t.Errorf("createCalls = %d, want reuse without create", f.createCalls)
	}
}

func TestEnsureFolderCreateConflictRelooksUp(t *testing.T) {
	f := newFakeBox()
	f.conflict = true
	c := newTestClient(t, f)

	id, err := c.ensureFolder(context.Background(), "at-test", "0", "Racy")
	if err != nil {
		t.Fatalf("ensureFolder: %v", err)
	}
	if id == "" {
		t.Fatal("ensureFolder returned empty id after conflict re-lookup")
	}
}

func TestExportFiles(t *testing.T) {
	f := newFakeBox()
	c := newTestClient(t, f)

	res, err := c.ExportFiles(context.Background(), testCreds(), model.ExportRequest{
		AlbumName: "Wedding",
		Files: []model.ExportFile{
			{Name: "cover.jpg", Content: strings.NewReader("c")},
			{Name: "a.jpg", Content: strings.NewReader("a"), Set: "Ceremony"},
			{Name: "b.jpg", Content: strings.NewReader("b"), Set: "Ceremony"},
			{Name: "d.jpg", Content: strings.NewReader("d"), Set: "Reception"},
		},
	})
	if err != nil {
		t.Fatalf("ExportFiles: %v", err)
	}
	if res.Succeeded() != 4 {
		t.Errorf("Succeeded() = %d", res.Succeeded())
	}
	// One root + one folder per distinct set, no duplicates.
	if f.createCalls != 3 {
		t.Errorf("createCalls = %d, want 3 (root, Ceremony, Reception)", f.createCalls)
	}
	var rootID string
	for _, fl := range f.folders {
		if fl.name == "Wedding" {
			rootID = fl.id
		}
	}
	if rootID == "" {
		t.Fatal("album root folder not created")
	}
	if f.uploads[rootID+"/cover.jpg"] != "c" {
		t.Errorf("cover.jpg not in album root: %v", f.uploads)
	}
	if res.URL != "https://app.box.com/s/folder-"+rootID {
		t.Errorf("URL = %q", res.URL)
	}
}
