package likes

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MaxFilenameBytes is the common per-component limit of ext4, APFS and NTFS
const MaxFilenameBytes = 255

var (
	extensionPattern = regexp.MustCompile(`[A-Za-z0-9]+$`)

	displayNameReplacer = strings.NewReplacer("/", "[slash]", ".", "[dot]")
)

// Candidate is a media asset eligible for download. Filename identifies it.
type Candidate struct {
	Filename string
	URL      string

	PostID   string
	Username string
	MediaKey string
	Index    int
}

// Rejection records a media asset that could not be named
type Rejection struct {
	PostID   string
	MediaKey string
	Index    int
	Reason   string
}

func (r Rejection) String() string {
	return fmt.Sprintf("post %s media %d (%s): %s", r.PostID, r.Index, r.MediaKey, r.Reason)
}

// SanitizeDisplayName escapes the characters that separate filename fields
// or break paths: "/" becomes "[slash]" and "." becomes "[dot]"
func SanitizeDisplayName(name string) string {
	return displayNameReplacer.Replace(name)
}

// Extension returns the trailing alphanumeric run of url
func Extension(url string) (string, bool) {
	ext := extensionPattern.FindString(url)
	return ext, ext != ""
}

// DatePrefix returns the YYYY-MM-DD prefix of an ISO-8601 timestamp
func DatePrefix(createdAt string) (string, error) {
	if len(createdAt) < 10 {
		return "", fmt.Errorf("timestamp %q too short for a date", createdAt)
	}
	date := createdAt[:10]
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", fmt.Errorf("timestamp %q has no valid date: %w", createdAt, err)
	}
	return date, nil
}

// Filename composes {date}.{name}.@{username}.{postID}.{index}.{ext}
func Filename(date, displayName, username, postID string, index int, ext string) string {
	return fmt.Sprintf("%s.%s.@%s.%s.%d.%s",
		date, SanitizeDisplayName(displayName), username, postID, index, ext)
}

// Synthesize derives one candidate per downloadable media item of post, in
// attachment order. Media without a URL is skipped silently; media whose
// name cannot be derived is returned as a rejection.
func Synthesize(post ResolvedPost) ([]Candidate, []Rejection) {
	var (
		candidates []Candidate
		rejections []Rejection
	)

	date, dateErr := DatePrefix(post.Tweet.CreatedAt)

	for i, m := range post.Media {
		if m.URL == "" {
			continue
		}

		reject := func(reason string) {
			rejections = append(rejections, Rejection{
				PostID:   post.Tweet.ID,
				MediaKey: m.MediaKey,
				Index:    i,
				Reason:   reason,
			})
		}

		if dateErr != nil {
			reject(dateErr.Error())
			continue
		}

		ext, ok := Extension(m.URL)
		if !ok {
			reject(fmt.Sprintf("no extension in %q", m.URL))
			continue
		}

		name := Filename(date, post.Author.Name, post.Author.Username, post.Tweet.ID, i, ext)
		if len(name) > MaxFilenameBytes {
			reject(fmt.Sprintf("filename is %d bytes, over the %d byte limit", len(name), MaxFilenameBytes))
			continue
		}

		candidates = append(candidates, Candidate{
			Filename: name,
			URL:      m.URL,
			PostID:   post.Tweet.ID,
			Username: post.Author.Username,
			MediaKey: m.MediaKey,
			Index:    i,
		})
	}

	return candidates, rejections
}

// SynthesizeAll runs Synthesize over posts and concatenates the results
func SynthesizeAll(posts []ResolvedPost) ([]Candidate, []Rejection) {
	var (
		candidates []Candidate
		rejections []Rejection
	)
	for _, p := range posts {
		c, r := Synthesize(p)
		candidates = append(candidates, c...)
		rejections = append(rejections, r...)
	}
	return candidates, rejections
}
