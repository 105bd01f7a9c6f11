package gallery

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// Element is an image element as seen in a DOM snapshot
type Element struct {
	Src          string `json:"src"`
	DataSrc      string `json:"dataSrc"`
	DataOriginal string `json:"dataOriginal"`
	DataLazySrc  string `json:"dataLazySrc"`
}

// Candidate is an image URL with its position in the snapshot
type Candidate struct {
	URL   string `json:"url"`
	Index int    `json:"index"`
}

// Resolve returns the first non-empty source attribute. Lazy loaders keep the
// real URL in a data attribute until the element scrolls into view.
func Resolve(e Element) string {
	for _, v := range []string{e.Src, e.DataSrc, e.DataOriginal, e.DataLazySrc} {
		if v = strings.TrimSpace(v); v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	return ""
}

// Candidates turns a snapshot into candidates, keeping snapshot positions.
// Elements without a resolvable URL keep an empty URL and are dropped by Extract.
func Candidates(elements []Element) []Candidate {
	out := make([]Candidate, 0, len(elements))
	for i, e := range elements {
		out = append(out, Candidate{URL: Resolve(e), Index: i})
	}
	return out
}

// Prefix returns the scheme and host of rawURL, if any, followed by its first
// n path segments. "/a/b/c/d/1.jpg" with n=4 yields "/a/b/c/d".
func Prefix(rawURL string, n int) string {
	head, p := "", rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		head = "//" + u.Host
		if u.Scheme != "" {
			head = u.Scheme + ":" + head
		}
		p = u.EscapedPath()
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}

	rooted := strings.HasPrefix(p, "/")
	segments := strings.Split(strings.Trim(p, "/"), "/")
	if n < len(segments) {
		segments = segments[:n]
	}
	joined := strings.Join(segments, "/")
	if rooted || head != "" {
		joined = "/" + joined
	}
	return head + joined
}

// Extract keeps the candidates that belong to the same gallery as the first
// candidate with a URL. Membership is exact equality of Prefix; order is kept.
func Extract(candidates []Candidate, filterPathIndex int) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	var prefix string
	for _, c := range candidates {
		if c.URL == "" {
			continue
		}
		if len(out) == 0 {
			prefix = Prefix(c.URL, filterPathIndex)
			out = append(out, c)
			continue
		}
		if Prefix(c.URL, filterPathIndex) == prefix {
			out = append(out, c)
		}
	}
	return out
}

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".avif": true,
}

// FileName is the archive entry name for c: the URL's base name when it
// carries an image extension, "{index}.jpg" otherwise.
func FileName(c Candidate) string {
	p := c.URL
	if u, err := url.Parse(c.URL); err == nil {
		p = u.Path
	}
	base := path.Base(p)
	if imageExts[strings.ToLower(path.Ext(base))] && !strings.ContainsAny(base, `\:*?"<>|`) {
		return base
	}
	return fmt.Sprintf("%d.jpg", c.Index)
}

// ParseCounter reads the total from a gallery counter such as "12/48" or
// "Page 1 / 48". It returns 0 when the text carries no total.
func ParseCounter(text string) int {
	i := strings.LastIndex(text, "/")
	if i < 0 {
		return 0
	}
	digits := strings.TrimSpace(text[i+1:])
	end := 0
	for end < len(digits) && digits[end] >= '0' && digits[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(digits[:end])
	if err != nil || n < 0 {
		return 0
	}
	return n
}
