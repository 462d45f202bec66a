package present

import "regexp"

// HashtagImageBase serves one image per hashtag.
const HashtagImageBase = "https://softwire.ontoast.io/hashtags/image/"

var hashtagPattern = regexp.MustCompile(`#(\w+)`)

// Hashtag returns the first tag in name that is not immediately followed by
// another '#'.
func Hashtag(name string) (string, bool) {
	for _, m := range hashtagPattern.FindAllStringSubmatchIndex(name, -1) {
		if end := m[1]; end < len(name) && name[end] == '#' {
			continue
		}
		return name[m[2]:m[3]], true
	}
	return "", false
}

// HashtagImageURL returns the image for the queue's hashtag, or "" when the
// name has none.
func HashtagImageURL(name string) string {
	tag, ok := Hashtag(name)
	if !ok {
		return ""
	}
	return HashtagImageBase + tag
}
