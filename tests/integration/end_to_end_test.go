package integration

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"galleryzip/internal/server"
	"galleryzip/pkg/archive"
	"galleryzip/pkg/checkpoint"
	"galleryzip/pkg/crawler"
	"galleryzip/pkg/metadata"
)

func TestStaticGalleryToArchive(t *testing.T) {
	h := NewTestHelper(t)
	cfg := h.CreateTestConfig()
	url := h.Server().AddGallery("100", "Summer Trip - Example Photos", 6, false)
	h.Server().SetErrorResponse("/g/100/4.jpg", http.StatusNotFound)

	comp := h.NewCrawler(cfg, h.CreateTestLogger()).Crawl(context.Background(), crawler.Task{URL: url})

	require.Equal(t, crawler.StatusSuccess, comp.Status, comp.Error)
	assert.Equal(t, 5, comp.Images)
	assert.Equal(t, 1, comp.Failed)
	assert.True(t, strings.HasPrefix(filepath.Base(comp.Archive), "Summer_Trip_"), comp.Archive)

	names, err := archive.List(comp.Archive)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.jpg", "2.jpg", "3.jpg", "5.jpg", "6.jpg"}, names)

	m, err := metadata.Load(comp.Archive)
	require.NoError(t, err)
	assert.Equal(t, url, m.URL)
	assert.Equal(t, "static", m.Mode)
	assert.Equal(t, 5, m.Succeeded())
	assert.Equal(t, 1, m.Failed())

	// the ad banner is never requested
	assert.Equal(t, 5, h.Server().GetImageCount())
}

func TestStaticLazyAttributes(t *testing.T) {
	h := NewTestHelper(t)
	cfg := h.CreateTestConfig()
	url := h.Server().AddGallery("7", "Lazy", 3, true)

	comp := h.NewCrawler(cfg, h.CreateTestLogger()).Crawl(context.Background(), crawler.Task{URL: url})

	require.Equal(t, crawler.StatusSuccess, comp.Status, comp.Error)
	names, err := archive.List(comp.Archive)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.jpg", "2.jpg", "3.jpg"}, names)
}

func TestMissingPageFailsTask(t *testing.T) {
	h := NewTestHelper(t)
	cfg := h.CreateTestConfig()

	comp := h.NewCrawler(cfg, h.CreateTestLogger()).Crawl(context.Background(), crawler.Task{URL: h.Server().GetURL() + "/gallery/none"})

	assert.Equal(t, crawler.StatusFailed, comp.Status)
	assert.NotEmpty(t, comp.Error)
	h.AssertDirContainsFiles(cfg.Output.Directory, "*.zip", 0)
}

func TestEveryImageFailingFailsTask(t *testing.T) {
	h := NewTestHelper(t)
	cfg := h.CreateTestConfig()
	url := h.Server().AddGallery("9", "Broken", 2, false)
	h.Server().SetErrorResponse("/g/9/1.jpg", http.StatusForbidden)
	h.Server().SetErrorResponse("/g/9/2.jpg", http.StatusForbidden)

	comp := h.NewCrawler(cfg, h.CreateTestLogger()).Crawl(context.Background(), crawler.Task{URL: url})

	assert.Equal(t, crawler.StatusFailed, comp.Status)
	assert.Equal(t, 2, comp.Failed)
	h.AssertDirContainsFiles(cfg.Output.Directory, "*.zip", 0)
}

func TestBatchResume(t *testing.T) {
	h := NewTestHelper(t)
	cfg := h.CreateTestConfig()
	first := h.Server().AddGallery("1", "One", 2, false)
	second := h.Server().AddGallery("2", "Two", 2, false)
	h.Server().SetErrorResponse("/g/2/1.jpg", http.StatusInternalServerError)
	h.Server().SetErrorResponse("/g/2/2.jpg", http.StatusInternalServerError)

	tasks := crawler.TasksFromURLs([]string{first, second}, "")
	mgr, err := checkpoint.NewManagerAt(filepath.Join(t.TempDir(), "batch.json"), h.CreateTestLogger())
	require.NoError(t, err)
	c := h.NewCrawler(cfg, h.CreateTestLogger())

	run1 := c.RunBatch(context.Background(), tasks, nil, crawler.WithCheckpoint(mgr))
	assert.Equal(t, crawler.StatusSuccess, run1[0].Status)
	assert.Equal(t, crawler.StatusFailed, run1[1].Status)
	h.AssertFileExists(mgr.Path())

	h.Server().ClearErrorResponse("/g/2/1.jpg")
	h.Server().ClearErrorResponse("/g/2/2.jpg")
	h.Server().ResetCounters()

	run2 := c.RunBatch(context.Background(), tasks, nil, crawler.WithCheckpoint(mgr))
	assert.Equal(t, crawler.StatusSkipped, run2[0].Status)
	assert.Equal(t, run1[0].Archive, run2[0].Archive)
	assert.Equal(t, crawler.StatusSuccess, run2[1].Status)
	assert.Equal(t, 2, h.Server().GetImageCount(), "only the unfinished gallery is fetched again")
	assert.False(t, mgr.Exists())

	h.AssertDirContainsFiles(cfg.Output.Directory, "*.zip", 2)
}

func TestRelayStreamsBatch(t *testing.T) {
	h := NewTestHelper(t)
	cfg := h.CreateTestConfig()
	a := h.Server().AddGallery("a", "Alpha", 2, false)
	b := h.Server().AddGallery("b", "Beta", 3, false)

	log := h.CreateTestLogger()
	relay := httptest.NewServer(server.New(h.NewCrawler(cfg, log), cfg.Server, log).Handler())
	defer relay.Close()

	body, err := json.Marshal(server.BatchRequest{Tasks: crawler.TasksFromURLs([]string{a, b}, "")})
	require.NoError(t, err)
	resp, err := http.Post(relay.URL+"/crawl", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var comps []crawler.Completion
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		var c crawler.Completion
		require.NoError(t, json.Unmarshal(sc.Bytes(), &c))
		comps = append(comps, c)
	}
	require.NoError(t, sc.Err())
	require.Len(t, comps, 2)
	assert.Equal(t, a, comps[0].URL)
	assert.Equal(t, 2, comps[0].Images)
	assert.Equal(t, b, comps[1].URL)
	assert.Equal(t, 3, comps[1].Images)
	for _, c := range comps {
		assert.NotEmpty(t, c.TaskID)
		h.AssertFileExists(c.Archive)
	}
}
