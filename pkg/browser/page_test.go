package browser

import (
	"testing"

	"github.com/chromedp/cdproto/network"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"

	"galleryzip/pkg/crawler"
)

var (
	_ crawler.Page     = (*Page)(nil)
	_ crawler.Scroller = (*Page)(nil)
)

func TestAllowedResourceTypes(t *testing.T) {
	allowed := allowedTypes([]string{"Image", "Document", "Script", "XHR", "Fetch"})

	assert.True(t, Allowed(allowed, network.ResourceTypeImage))
	assert.True(t, Allowed(allowed, network.ResourceTypeXHR))
	assert.True(t, Allowed(allowed, network.ResourceTypeFetch))
	assert.False(t, Allowed(allowed, network.ResourceTypeStylesheet))
	assert.False(t, Allowed(allowed, network.ResourceTypeFont))
	assert.False(t, Allowed(allowed, network.ResourceTypeMedia))
}

func TestEmptyAllowListAllowsEverything(t *testing.T) {
	allowed := allowedTypes(nil)
	assert.Nil(t, allowed)
	assert.True(t, Allowed(allowed, network.ResourceTypeFont))
}

func TestJSStringQuotesSelectors(t *testing.T) {
	assert.Equal(t, `"#img_list img"`, jsString("#img_list img"))
	assert.Equal(t, `"a[data-x=\"1\"]"`, jsString(`a[data-x="1"]`))
}

func TestConsoleText(t *testing.T) {
	args := []*cdpruntime.RemoteObject{
		{Value: []byte(`"loaded"`)},
		{Value: []byte(`42`)},
		{Description: "HTMLImageElement"},
		{},
	}
	assert.Equal(t, "loaded 42 HTMLImageElement", consoleText(args))
}

func TestExceptionText(t *testing.T) {
	assert.Equal(t, "", exceptionText(nil))
	assert.Equal(t, "Uncaught", exceptionText(&cdpruntime.ExceptionDetails{Text: "Uncaught"}))
	assert.Equal(t, "TypeError: x is undefined", exceptionText(&cdpruntime.ExceptionDetails{
		Text:      "Uncaught",
		Exception: &cdpruntime.RemoteObject{Description: "TypeError: x is undefined"},
	}))
}
