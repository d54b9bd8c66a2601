// Package twitter provides a client for the X (Twitter) API v2 endpoints
// likesync depends on.
//
// The client handles:
//   - Bearer token authentication on API requests
//   - Token bucket rate limiting and retries for network and 5xx failures
//   - Mapping HTTP statuses to typed errors from pkg/errors
//   - Unauthenticated downloads of media assets
//
// Status handling: 401 and 403 map to ErrorTypeAuth and are fatal for the
// process. 429 maps to ErrorTypeRateLimit and is not retried; the poll loop
// skips the user until the next cycle. 404 maps to ErrorTypeNotFound.
//
// Usage:
//
//	client := twitter.NewClient(token, 30*time.Second, log)
//	page, err := client.FetchLikedPosts(ctx, userID)
//	if errors.IsAuth(err) {
//	    // credentials are bad, stop
//	}
//
// A LikedPage carries the posts in API order plus a media index built from
// the includes.media expansion. Authors are not expanded: they are resolved
// separately through FetchUsersByIDs so they can be cached across pages.
package twitter
