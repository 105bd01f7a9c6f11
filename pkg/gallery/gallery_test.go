package gallery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractEmpty(t *testing.T) {
	assert.Empty(t, Extract(nil, 4))
	assert.Empty(t, Extract([]Candidate{}, 4))
}

func TestExtractSingle(t *testing.T) {
	c0 := Candidate{URL: "/a/b/c/d/1.jpg", Index: 0}
	assert.Equal(t, []Candidate{c0}, Extract([]Candidate{c0}, 4))
}

func TestExtractSameGallery(t *testing.T) {
	in := []Candidate{
		{URL: "/a/b/c/d/1.jpg", Index: 0},
		{URL: "/a/b/c/d/2.jpg", Index: 1},
		{URL: "/a/b/x/y/3.jpg", Index: 2},
	}

	got := Extract(in, 4)

	assert.Equal(t, in[:2], got)
	assert.Equal(t, "/a/b/c/d", Prefix(in[0].URL, 4))
	assert.Equal(t, "/a/b/x/y", Prefix(in[2].URL, 4))
}

func TestExtractDropsEmptyURLs(t *testing.T) {
	in := []Candidate{
		{URL: "", Index: 0},
		{URL: "/a/b/c/d/1.jpg", Index: 1},
	}

	got := Extract(in, 4)

	assert.Equal(t, []Candidate{{URL: "/a/b/c/d/1.jpg", Index: 1}}, got)
}

func TestExtractEmptyFirstDoesNotAnchorPrefix(t *testing.T) {
	in := []Candidate{
		{URL: "", Index: 0},
		{URL: "https://cdn.example.com/g/100/1.jpg", Index: 1},
		{URL: "https://cdn.example.com/ads/banner.jpg", Index: 2},
		{URL: "https://cdn.example.com/g/100/2.jpg", Index: 3},
	}

	got := Extract(in, 2)

	assert.Equal(t, []Candidate{in[1], in[3]}, got)
}

func TestExtractIsExactEqualityNotOverlap(t *testing.T) {
	in := []Candidate{
		{URL: "https://img.example.com/2024/05/a/1.jpg", Index: 0},
		// shares the last segments but not the leading ones
		{URL: "https://img.example.com/2023/05/a/2.jpg", Index: 1},
		// deeper path inside the same gallery
		{URL: "https://img.example.com/2024/05/a/b/3.jpg", Index: 2},
		// other host
		{URL: "https://mirror.example.com/2024/05/a/4.jpg", Index: 3},
	}

	got := Extract(in, 3)

	assert.Equal(t, []Candidate{in[0], in[2]}, got)
}

func TestExtractPreservesOrderAndKeepsDuplicates(t *testing.T) {
	in := []Candidate{
		{URL: "/g/1/3.jpg", Index: 0},
		{URL: "/g/1/1.jpg", Index: 1},
		{URL: "/g/1/3.jpg", Index: 2},
	}

	assert.Equal(t, in, Extract(in, 2))
}

func TestExtractIsIdempotent(t *testing.T) {
	in := []Candidate{
		{URL: "/a/b/c/d/1.jpg", Index: 0},
		{URL: "/a/b/x/y/3.jpg", Index: 1},
		{URL: "", Index: 2},
		{URL: "/a/b/c/d/2.jpg", Index: 3},
	}

	first := Extract(in, 4)
	second := Extract(in, 4)
	assert.Equal(t, first, second)
	assert.Equal(t, first, Extract(first, 4))
}

func TestPrefix(t *testing.T) {
	tests := []struct {
		url  string
		n    int
		want string
	}{
		{"/a/b/c/d/1.jpg", 4, "/a/b/c/d"},
		{"/a/b/c/d/1.jpg", 2, "/a/b"},
		{"/a/1.jpg", 4, "/a/1.jpg"},
		{"a/b/1.jpg", 1, "a"},
		{"https://cdn.example.com/g/100/1.jpg?w=300", 2, "https://cdn.example.com/g/100"},
		{"https://cdn.example.com/g/100/1.jpg", 5, "https://cdn.example.com/g/100/1.jpg"},
		{"//cdn.example.com/g/100/1.jpg", 1, "//cdn.example.com/g"},
		{"/g/1/2.jpg#frag", 3, "/g/1/2.jpg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Prefix(tt.url, tt.n), "%s n=%d", tt.url, tt.n)
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		el   Element
		want string
	}{
		{"src wins", Element{Src: "/1.jpg", DataSrc: "/2.jpg"}, "/1.jpg"},
		{"data-src fallback", Element{DataSrc: "/2.jpg"}, "/2.jpg"},
		{"data-original fallback", Element{DataOriginal: "/3.jpg"}, "/3.jpg"},
		{"data-lazy-src fallback", Element{DataLazySrc: "/4.jpg"}, "/4.jpg"},
		{"placeholder data uri skipped", Element{Src: "data:image/gif;base64,R0lG", DataSrc: "/5.jpg"}, "/5.jpg"},
		{"whitespace only", Element{Src: "  "}, ""},
		{"nothing", Element{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.el))
		})
	}
}

func TestCandidatesKeepSnapshotPositions(t *testing.T) {
	got := Candidates([]Element{
		{Src: "/g/1/1.jpg"},
		{},
		{DataSrc: "/g/1/2.jpg"},
	})

	assert.Equal(t, []Candidate{
		{URL: "/g/1/1.jpg", Index: 0},
		{URL: "", Index: 1},
		{URL: "/g/1/2.jpg", Index: 2},
	}, got)

	assert.Len(t, Extract(got, 2), 2)
}

func TestFileName(t *testing.T) {
	tests := []struct {
		c    Candidate
		want string
	}{
		{Candidate{URL: "https://cdn.example.com/g/1/001.jpg", Index: 0}, "001.jpg"},
		{Candidate{URL: "https://cdn.example.com/g/1/pic.WEBP?x=1", Index: 1}, "pic.WEBP"},
		{Candidate{URL: "https://cdn.example.com/img?id=42", Index: 7}, "7.jpg"},
		{Candidate{URL: "https://cdn.example.com/g/1/noext", Index: 3}, "3.jpg"},
		{Candidate{URL: "/g/1/script.php", Index: 4}, "4.jpg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileName(tt.c), tt.c.URL)
	}
}

func TestParseCounter(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"12/48", 48},
		{" 1 / 120 ", 120},
		{"Page 3/7 photos", 7},
		{"48", 0},
		{"1/", 0},
		{"", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseCounter(tt.in), tt.in)
	}
}
