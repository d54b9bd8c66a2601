package twitter

// User is an X account as returned by the user lookup endpoints
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Media is an attachment from the includes.media expansion. URL is empty
// for types that have no direct asset, such as video.
type Media struct {
	MediaKey string `json:"media_key"`
	Type     string `json:"type"`
	URL      string `json:"url,omitempty"`
}

// Attachments lists the media keys of a post in display order
type Attachments struct {
	MediaKeys []string `json:"media_keys,omitempty"`
}

// Tweet is a post as delivered by liked_tweets
type Tweet struct {
	ID          string       `json:"id"`
	Text        string       `json:"text"`
	CreatedAt   string       `json:"created_at"`
	AuthorID    string       `json:"author_id"`
	Attachments *Attachments `json:"attachments,omitempty"`
}

// MediaKeys returns the post's media keys, or nil when it has none
func (t Tweet) MediaKeys() []string {
	if t.Attachments == nil {
		return nil
	}
	return t.Attachments.MediaKeys
}

// APIError is an entry of the partial-error array the v2 API returns
// alongside (or instead of) data
type APIError struct {
	Title        string `json:"title"`
	Detail       string `json:"detail"`
	Type         string `json:"type"`
	Value        string `json:"value,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
}

// Includes holds expanded objects referenced by the primary data
type Includes struct {
	Media []Media `json:"media,omitempty"`
	Users []User  `json:"users,omitempty"`
}

// Meta carries result counts and pagination tokens
type Meta struct {
	ResultCount int    `json:"result_count"`
	NextToken   string `json:"next_token,omitempty"`
}

// LikedTweetsResponse is the liked_tweets response body
type LikedTweetsResponse struct {
	Data     []Tweet    `json:"data"`
	Includes Includes   `json:"includes"`
	Errors   []APIError `json:"errors,omitempty"`
	Meta     Meta       `json:"meta"`
}

// UsersResponse is the body of /users and /users/by
type UsersResponse struct {
	Data   []User     `json:"data"`
	Errors []APIError `json:"errors,omitempty"`
}

// LikedPage is one fetched page: the posts in API order and the media
// index keyed by media key. It is discarded after joining.
type LikedPage struct {
	Tweets []Tweet
	Media  map[string]Media
}

// NewLikedPage builds the media index for resp. The first occurrence of a
// duplicated media key wins.
func NewLikedPage(resp *LikedTweetsResponse) *LikedPage {
	page := &LikedPage{
		Tweets: resp.Data,
		Media:  make(map[string]Media, len(resp.Includes.Media)),
	}
	for _, m := range resp.Includes.Media {
		if _, ok := page.Media[m.MediaKey]; !ok {
			page.Media[m.MediaKey] = m
		}
	}
	return page
}

// AuthorIDs returns the distinct author ids of the page in first-seen order
func (p *LikedPage) AuthorIDs() []string {
	seen := make(map[string]bool, len(p.Tweets))
	var ids []string
	for _, t := range p.Tweets {
		if t.AuthorID == "" || seen[t.AuthorID] {
			continue
		}
		seen[t.AuthorID] = true
		ids = append(ids, t.AuthorID)
	}
	return ids
}
