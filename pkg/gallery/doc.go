// Package gallery decides which images on a page belong to the gallery being
// crawled.
//
// The first image with a usable URL anchors the gallery: its scheme, host and
// first filterPathIndex path segments form the gallery prefix. Later images
// are kept only when their own prefix is exactly equal to it.
package gallery
