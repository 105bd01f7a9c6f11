package downloader

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"galleryzip/pkg/logger"
	"galleryzip/pkg/ratelimit"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// MockClient fails every URL listed in failing
type MockClient struct {
	downloadDelay   time.Duration
	failing         map[string]bool
	downloadCounter int32
}

func (m *MockClient) DownloadImage(ctx context.Context, url, referer string) ([]byte, error) {
	atomic.AddInt32(&m.downloadCounter, 1)
	if m.downloadDelay > 0 {
		select {
		case <-time.After(m.downloadDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.failing[url] {
		return nil, fmt.Errorf("status 404 for %s", url)
	}
	return []byte("image:" + url), nil
}

func (m *MockClient) GetDownloadCount() int {
	return int(atomic.LoadInt32(&m.downloadCounter))
}

type MockStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func NewMockStorage() *MockStorage {
	return &MockStorage{files: make(map[string][]byte)}
}

func (m *MockStorage) IsCached(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[name]
	return ok
}

func (m *MockStorage) Save(r io.Reader, name string) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = data
	return int64(len(data)), nil
}

func (m *MockStorage) Size(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.files[name]; ok {
		return int64(len(d))
	}
	return -1
}

func (m *MockStorage) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

func makeJobs(n int) []Job {
	jobs := make([]Job, n)
	for i := range jobs {
		jobs[i] = Job{
			URL:      fmt.Sprintf("https://cdn.example.com/g/1/%d.jpg", i),
			Index:    i,
			FileName: fmt.Sprintf("%d.jpg", i),
			Referer:  "https://example.com/g/1",
		}
	}
	return jobs
}

func TestWorkerPoolBasicFunctionality(t *testing.T) {
	client := &MockClient{downloadDelay: 5 * time.Millisecond}
	storage := NewMockStorage()

	pool := NewWorkerPool(context.Background(), 3, client, storage, ratelimit.NewTokenBucket(0, 1), logger.NewNopLogger())
	pool.Start()

	var results []Result
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range pool.Results() {
			results = append(results, r)
		}
	}()

	for _, job := range makeJobs(10) {
		require.NoError(t, pool.Submit(job))
	}
	pool.Stop()
	<-done

	require.Len(t, results, 10)
	for _, r := range results {
		assert.True(t, r.Success, r.Job.URL)
		assert.NoError(t, r.Error)
		assert.Positive(t, r.Size)
	}
	assert.Equal(t, 10, client.GetDownloadCount())
	assert.Equal(t, 10, storage.Count())
}

func TestDownloadAllIsBestEffort(t *testing.T) {
	jobs := makeJobs(5)
	client := &MockClient{failing: map[string]bool{jobs[1].URL: true, jobs[3].URL: true}}
	storage := NewMockStorage()
	seen := 0

	results, err := DownloadAll(context.Background(), jobs, 2, client, storage, nil, logger.NewNopLogger(), func(Result) { seen++ })
	require.NoError(t, err)
	require.Len(t, results, 5)
	assert.Equal(t, 5, seen)

	var ok []int
	for i, r := range results {
		assert.Equal(t, i, r.Job.Index, "results are ordered by index")
		if r.Success {
			ok = append(ok, r.Job.Index)
		} else {
			assert.ErrorContains(t, r.Error, "download failed")
		}
	}
	assert.Equal(t, []int{0, 2, 4}, ok)
	assert.Equal(t, 3, storage.Count())
}

func TestDownloadAllEmpty(t *testing.T) {
	results, err := DownloadAll(context.Background(), nil, 4, &MockClient{}, NewMockStorage(), nil, logger.NewNopLogger(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestWorkerPoolConcurrency(t *testing.T) {
	client := &MockClient{downloadDelay: 100 * time.Millisecond}

	start := time.Now()
	results, err := DownloadAll(context.Background(), makeJobs(10), 5, client, NewMockStorage(), nil, logger.NewNopLogger(), nil)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Len(t, results, 10)
	// 10 jobs of 100ms over 5 workers take about 200ms
	assert.Less(t, elapsed, 600*time.Millisecond)
}

func TestWorkerPoolSkipsCachedImages(t *testing.T) {
	client := &MockClient{}
	storage := NewMockStorage()
	jobs := makeJobs(4)
	storage.files[jobs[1].CacheName()] = []byte("old")
	storage.files[jobs[3].CacheName()] = []byte("old")

	results, err := DownloadAll(context.Background(), jobs, 2, client, storage, nil, logger.NewNopLogger(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, client.GetDownloadCount())
	assert.Equal(t, 4, storage.Count())
	assert.True(t, results[1].Cached)
	assert.Equal(t, int64(3), results[1].Size)
	assert.False(t, results[0].Cached)
}

func TestWorkerPoolCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &MockClient{downloadDelay: time.Second}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	results, _ := DownloadAll(ctx, makeJobs(6), 2, client, NewMockStorage(), nil, logger.NewNopLogger(), nil)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	for _, r := range results {
		assert.False(t, r.Success)
		assert.Error(t, r.Error)
	}
}

func TestCacheNameKeepsDuplicatesApart(t *testing.T) {
	a := Job{Index: 1, FileName: "1.jpg"}
	b := Job{Index: 7, FileName: "1.jpg"}

	assert.NotEqual(t, a.CacheName(), b.CacheName())
	assert.True(t, strings.HasSuffix(a.CacheName(), "_1.jpg"))
}
