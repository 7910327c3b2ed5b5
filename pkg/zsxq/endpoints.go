package zsxq

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultTopicsURL lists a group's topics, newest first.
	DefaultTopicsURL = "https://api.zsxq.com/v2/groups/%s/topics?scope=all&count=20"

	// DefaultFileDownloadURL resolves a file id to a short-lived download URL.
	DefaultFileDownloadURL = "https://api.zsxq.com/v2/files/%s/download_url"
)

// Endpoints holds the URL templates of the remote API. Each template takes
// a single %s verb.
type Endpoints struct {
	TopicsURL       string
	FileDownloadURL string
}

// DefaultEndpoints returns the public API templates
func DefaultEndpoints() Endpoints {
	return Endpoints{
		TopicsURL:       DefaultTopicsURL,
		FileDownloadURL: DefaultFileDownloadURL,
	}
}

// Topics builds the feed URL for a group. The cursor, when present, is
// appended as end_time with its original text URL-encoded.
func (e Endpoints) Topics(groupID string, cursor Cursor) string {
	base := fmt.Sprintf(e.TopicsURL, url.PathEscape(groupID))
	if cursor.IsZero() {
		return base
	}

	sep := "&"
	if !strings.Contains(base, "?") {
		sep = "?"
	}
	return base + sep + "end_time=" + url.QueryEscape(cursor.Raw)
}

// FileDownload builds the resolution URL for a file id
func (e Endpoints) FileDownload(fileID int64) string {
	return fmt.Sprintf(e.FileDownloadURL, strconv.FormatInt(fileID, 10))
}
