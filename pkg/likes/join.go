package likes

import (
	"context"

	"likesync/pkg/logger"
	"likesync/pkg/metrics"
	"likesync/pkg/twitter"
)

// ResolvedPost is a liked post with its author and media attached. It is
// built by Join and never re-reads the cache afterwards.
type ResolvedPost struct {
	Tweet  twitter.Tweet
	Author twitter.User
	// Media is in attachment order; empty if any media key was unresolvable
	Media []twitter.Media
}

// Join resolves the authors and media of every post on page.
//
// Posts whose author cannot be resolved are dropped. Posts referencing a
// media key absent from the page's media index are kept with no media, so
// they contribute no downloads but media indexes never shift. The only
// error is a fatal one from the author lookup.
func Join(ctx context.Context, page *twitter.LikedPage, cache *AuthorCache, log logger.Logger) ([]ResolvedPost, error) {
	if page == nil || len(page.Tweets) == 0 {
		return nil, nil
	}
	if log == nil {
		log = logger.GetLogger()
	}

	authors, err := cache.Resolve(ctx, page.AuthorIDs())
	if err != nil {
		return nil, err
	}

	resolved := make([]ResolvedPost, 0, len(page.Tweets))
	for _, tweet := range page.Tweets {
		author, ok := authors[tweet.AuthorID]
		if !ok {
			log.DebugWithFields("dropping post with unresolved author", map[string]interface{}{
				"post_id":   tweet.ID,
				"author_id": tweet.AuthorID,
			})
			metrics.PostsSkipped.WithLabelValues("author").Inc()
			continue
		}

		media, missing := resolveMedia(tweet.MediaKeys(), page.Media)
		if missing != "" {
			log.WarnWithFields("post references unknown media key; skipping its media", map[string]interface{}{
				"post_id":   tweet.ID,
				"media_key": missing,
			})
			metrics.PostsSkipped.WithLabelValues("media").Inc()
		}

		resolved = append(resolved, ResolvedPost{
			Tweet:  tweet,
			Author: author,
			Media:  media,
		})
	}

	return resolved, nil
}

// resolveMedia looks keys up in order. It is all or nothing: on the first
// unknown key it returns no media and that key.
func resolveMedia(keys []string, index map[string]twitter.Media) ([]twitter.Media, string) {
	if len(keys) == 0 {
		return nil, ""
	}
	media := make([]twitter.Media, 0, len(keys))
	for _, key := range keys {
		m, ok := index[key]
		if !ok {
			return nil, key
		}
		media = append(media, m)
	}
	return media, ""
}
