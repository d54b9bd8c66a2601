// Package metadata keeps a JSON-lines manifest of completed downloads in
// the storage directory. Each line records which post, author and liking
// account a file came from. The manifest is informational: presence of the
// media file itself decides whether an asset is downloaded again.
package metadata
