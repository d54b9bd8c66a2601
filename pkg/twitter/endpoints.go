package twitter

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// DefaultBaseURL is the X API v2 root
	DefaultBaseURL = "https://api.twitter.com/2"

	// DefaultPageSize is the number of liked posts fetched per poll
	DefaultPageSize = 50

	// MinPageSize and MaxPageSize bound max_results on liked_tweets
	MinPageSize = 5
	MaxPageSize = 100

	// MaxUsersPerLookup is the API's cap on ids or usernames per lookup call
	MaxUsersPerLookup = 100
)

// ClampPageSize keeps n within the range liked_tweets accepts
func ClampPageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n < MinPageSize:
		return MinPageSize
	case n > MaxPageSize:
		return MaxPageSize
	default:
		return n
	}
}

// LikedTweetsURL constructs the URL for one page of a user's liked posts,
// expanded with media attachments and author ids
func LikedTweetsURL(baseURL, userID string, pageSize int) string {
	params := url.Values{}
	params.Set("expansions", "attachments.media_keys")
	params.Set("media.fields", "url,type")
	params.Set("tweet.fields", "created_at,author_id")
	params.Set("max_results", fmt.Sprintf("%d", ClampPageSize(pageSize)))

	return fmt.Sprintf("%s/users/%s/liked_tweets?%s",
		strings.TrimRight(baseURL, "/"), url.PathEscape(userID), params.Encode())
}

// UsersByIDsURL constructs the batched user lookup URL
func UsersByIDsURL(baseURL string, ids []string) string {
	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))

	return fmt.Sprintf("%s/users?%s", strings.TrimRight(baseURL, "/"), params.Encode())
}

// UsersByUsernamesURL constructs the batched username lookup URL
func UsersByUsernamesURL(baseURL string, usernames []string) string {
	params := url.Values{}
	params.Set("usernames", strings.Join(usernames, ","))

	return fmt.Sprintf("%s/users/by?%s", strings.TrimRight(baseURL, "/"), params.Encode())
}

// IsValidUsername checks a handle against X's rules: 1-15 letters, digits or underscores
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 15 {
		return false
	}

	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '_') {
			return false
		}
	}

	return true
}

// SanitizeUsername strips a leading @ and surrounding whitespace or slashes
func SanitizeUsername(username string) string {
	username = strings.TrimSpace(username)
	username = strings.TrimPrefix(username, "@")
	return strings.Trim(username, "/ ")
}

// chunk splits ids into slices of at most size elements
func chunk(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
