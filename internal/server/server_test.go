package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"galleryzip/pkg/config"
	"galleryzip/pkg/crawler"
	"galleryzip/pkg/logger"
)

type fakeRunner struct {
	mu      sync.Mutex
	batches [][]crawler.Task
	block   chan struct{}
}

func (f *fakeRunner) RunBatch(ctx context.Context, tasks []crawler.Task, onComplete func(crawler.Completion), _ ...crawler.BatchOption) []crawler.Completion {
	f.mu.Lock()
	f.batches = append(f.batches, tasks)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}

	var out []crawler.Completion
	for i, t := range tasks {
		c := crawler.Completion{TaskID: t.ID, URL: t.URL, Status: crawler.StatusSuccess, Images: i + 1, Archive: "dist/a.zip"}
		if strings.Contains(t.URL, "bad") {
			c = crawler.Completion{TaskID: t.ID, URL: t.URL, Status: crawler.StatusFailed, Error: "no gallery images found"}
		}
		onComplete(c)
		out = append(out, c)
	}
	return out
}

func testServer(r Runner) *Server {
	return New(r, config.ServerConfig{MaxBatchSize: 3, ShutdownGrace: time.Second}, logger.NewNopLogger())
}

func TestCrawlStreamsCompletions(t *testing.T) {
	runner := &fakeRunner{}
	ts := httptest.NewServer(testServer(runner).Handler())
	defer ts.Close()

	body := `{"tasks":[{"url":"https://example.com/g/1"},{"url":"https://example.com/bad","selector":".g img"}]}`
	resp, err := http.Post(ts.URL+"/crawl", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Batch-ID"))

	var got []crawler.Completion
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		var c crawler.Completion
		require.NoError(t, json.Unmarshal(sc.Bytes(), &c))
		got = append(got, c)
	}
	require.Len(t, got, 2)
	assert.Equal(t, crawler.StatusSuccess, got[0].Status)
	assert.Equal(t, crawler.StatusFailed, got[1].Status)
	assert.Equal(t, "no gallery images found", got[1].Error)

	require.Len(t, runner.batches, 1)
	assert.Equal(t, ".g img", runner.batches[0][1].Selector)
}

func TestCrawlRejectsBadRequests(t *testing.T) {
	ts := httptest.NewServer(testServer(&fakeRunner{}).Handler())
	defer ts.Close()

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"tasks":`},
		{"empty", `{"tasks":[]}`},
		{"too many", `{"tasks":[{"url":"a"},{"url":"b"},{"url":"c"},{"url":"d"}]}`},
		{"missing url", `{"tasks":[{"selector":"img"}]}`},
		{"unknown field", `{"tasks":[{"url":"a"}],"extra":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/crawl", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var e map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
			assert.NotEmpty(t, e["error"])
		})
	}
}

func TestHealthReportsBusy(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	ts := httptest.NewServer(testServer(runner).Handler())
	defer ts.Close()

	health := func() map[string]interface{} {
		resp, err := http.Get(ts.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		var h map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
		return h
	}
	assert.Equal(t, false, health()["busy"])

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := http.Post(ts.URL+"/crawl", "application/json", strings.NewReader(`{"tasks":[{"url":"https://example.com/g/1"}]}`))
		if err == nil {
			resp.Body.Close()
		}
	}()

	assert.Eventually(t, func() bool { return health()["busy"] == true }, 2*time.Second, 10*time.Millisecond)
	close(runner.block)
	<-done
	assert.Eventually(t, func() bool { return health()["busy"] == false }, 2*time.Second, 10*time.Millisecond)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- testServer(&fakeRunner{}).Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
	http.DefaultClient.CloseIdleConnections()
}
