// Package render turns cached bodies into titles, link lists and plain
// text. The sync engine only needs the links; the CLI prints bodies.
//
// Three modes exist. ModeLinksOnly is the fastest and is what a crawl
// uses. ModeReadable and ModeFull differ only for HTML, where full mode
// also reports image sources.
package render
