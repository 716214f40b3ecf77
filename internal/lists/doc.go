// Package lists stores named, ordered collections of links as gemtext
// files. Lists double as bookmarks, queues and sync targets: the first
// line carries the list title and its status tag, every other "=>" line
// is one entry.
//
// The lists history, to_fetch, archives and tour are system lists. They
// are created on demand and can neither be deleted nor change status.
package lists
