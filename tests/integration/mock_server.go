package integration

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MockGalleryServer serves gallery pages and the images they reference. Each
// gallery lives under /g/<id>/ and links its images at /g/<id>/<n>.jpg; an
// unrelated banner under /ads/ follows the first image.
type MockGalleryServer struct {
	server       *httptest.Server
	requestCount int32
	imageCount   int32

	mu        sync.RWMutex
	galleries map[string]galleryPage
	failing   map[string]int // image path to status code
	delays    map[string]time.Duration
}

type galleryPage struct {
	title  string
	images int
	lazy   bool
}

// NewMockGalleryServer starts the server
func NewMockGalleryServer() *MockGalleryServer {
	m := &MockGalleryServer{
		galleries: make(map[string]galleryPage),
		failing:   make(map[string]int),
		delays:    make(map[string]time.Duration),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/gallery/", m.handlePage)
	mux.HandleFunc("/g/", m.handleImage)
	mux.HandleFunc("/ads/", m.handleImage)

	m.server = httptest.NewServer(mux)
	return m
}

// AddGallery registers a gallery page at /gallery/<id>
func (m *MockGalleryServer) AddGallery(id, title string, images int, lazy bool) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.galleries[id] = galleryPage{title: title, images: images, lazy: lazy}
	return m.server.URL + "/gallery/" + id
}

func (m *MockGalleryServer) handlePage(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.requestCount, 1)

	id := strings.TrimPrefix(r.URL.Path, "/gallery/")
	m.mu.RLock()
	g, ok := m.galleries[id]
	m.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body>\n", html.EscapeString(g.title))
	fmt.Fprintf(&b, "<div id=\"img_list\"><div><span>1/%d</span></div>\n", g.images)
	for i := 1; i <= g.images; i++ {
		if i == 2 {
			// the first image decides the gallery, so ads after it are filtered
			b.WriteString("<img src=\"/ads/banner.jpg\">\n")
		}
		if g.lazy {
			fmt.Fprintf(&b, "<img src=\"data:image/gif;base64,R0lGODlh\" data-src=\"/g/%s/%d.jpg\">\n", id, i)
		} else {
			fmt.Fprintf(&b, "<img src=\"/g/%s/%d.jpg\">\n", id, i)
		}
	}
	b.WriteString("</div></body></html>")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}

func (m *MockGalleryServer) handleImage(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.requestCount, 1)

	m.mu.RLock()
	code := m.failing[r.URL.Path]
	delay := m.delays[r.URL.Path]
	m.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if code > 0 {
		w.WriteHeader(code)
		return
	}

	atomic.AddInt32(&m.imageCount, 1)
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write([]byte("\xff\xd8\xff" + r.URL.Path))
}

// SetErrorResponse makes an image path answer with code
func (m *MockGalleryServer) SetErrorResponse(path string, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[path] = code
}

// ClearErrorResponse removes an injected error
func (m *MockGalleryServer) ClearErrorResponse(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failing, path)
}

// SetDelay delays responses for an image path
func (m *MockGalleryServer) SetDelay(path string, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[path] = delay
}

// GetURL returns the server base URL
func (m *MockGalleryServer) GetURL() string {
	return m.server.URL
}

// GetRequestCount returns the number of requests served
func (m *MockGalleryServer) GetRequestCount() int {
	return int(atomic.LoadInt32(&m.requestCount))
}

// GetImageCount returns the number of images served successfully
func (m *MockGalleryServer) GetImageCount() int {
	return int(atomic.LoadInt32(&m.imageCount))
}

// ResetCounters zeroes the counters
func (m *MockGalleryServer) ResetCounters() {
	atomic.StoreInt32(&m.requestCount, 0)
	atomic.StoreInt32(&m.imageCount, 0)
}

// Close shuts the server down
func (m *MockGalleryServer) Close() {
	m.server.Close()
}
