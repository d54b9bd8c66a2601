// Package poller drives the sync cycle.
//
// Each cycle walks the tracked users in order. For every user it fetches one
// page of liked posts, joins authors and media, names the downloadable
// assets, drops names already in storage and downloads the rest before
// moving on to the next user. A rejected credential ends the loop.
package poller
