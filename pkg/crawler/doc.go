// Package crawler runs gallery crawl tasks end to end.
//
// A task moves through strictly ordered phases on a single page:
//
//	navigate -> converge -> extract -> download -> archive
//
// Convergence scrolls the page until the gallery stops growing (see package
// convergence). Extraction keeps the images that share the first image's
// gallery prefix (see package gallery). Downloads run in bounded parallel and
// are best effort: failed images are left out of the archive and listed in
// the manifest. Every task ends with exactly one Completion, delivered to
// the caller whether the task succeeded or not.
//
// Batches run their tasks one after another and may record progress in a
// checkpoint so an interrupted batch can resume.
package crawler
