// Package archiver drives archival cycles: it walks the configured boards,
// fetches every listed thread, filters threads by their opening post and
// hands each post of an admitted thread to a bounded pool of work units that
// persist the post and save its media.
package archiver
