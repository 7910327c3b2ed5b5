package zsxq

// TopicsResponse is the feed endpoint payload. On throttling the API answers
// 200 with succeeded=false and no resp_data.
type TopicsResponse struct {
	Succeeded bool           `json:"succeeded"`
	Code      int            `json:"code,omitempty"`
	Info      string         `json:"info,omitempty"`
	RespData  *TopicsPayload `json:"resp_data"`
}

// TopicsPayload wraps the topic list of one page
type TopicsPayload struct {
	Topics []Topic `json:"topics"`
}

// Topic is one raw feed entry. Only entries with a Talk payload carry
// conversational content.
type Topic struct {
	TopicID    int64  `json:"topic_id"`
	Type       string `json:"type"`
	CreateTime string `json:"create_time"`
	Title      string `json:"title,omitempty"`
	Talk       *Talk  `json:"talk,omitempty"`
}

// Talk is the conversational payload of a topic
type Talk struct {
	Owner  Owner   `json:"owner"`
	Text   string  `json:"text"`
	Images []Image `json:"images,omitempty"`
	Files  []File  `json:"files,omitempty"`
}

// Owner is the author of a talk
type Owner struct {
	UserID int64  `json:"user_id,omitempty"`
	Name   string `json:"name"`
}

// Image is an embedded image in several resolutions
type Image struct {
	ImageID   int64     `json:"image_id,omitempty"`
	Type      string    `json:"type,omitempty"`
	Thumbnail *ImageURL `json:"thumbnail,omitempty"`
	Large     *ImageURL `json:"large,omitempty"`
	Original  *ImageURL `json:"original,omitempty"`
}

// OriginalURL returns the full-resolution URL, or "" when absent.
func (i Image) OriginalURL() string {
	if i.Original == nil {
		return ""
	}
	return i.Original.URL
}

// ImageURL is one rendition of an image
type ImageURL struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// File is an attachment referenced by id
type File struct {
	FileID int64  `json:"file_id"`
	Name   string `json:"name"`
	Hash   string `json:"hash,omitempty"`
	Size   int64  `json:"size,omitempty"`
}

// FileDownloadResponse is the file resolution endpoint payload
type FileDownloadResponse struct {
	Succeeded bool `json:"succeeded"`
	Code      int  `json:"code,omitempty"`
	RespData  *struct {
		DownloadURL string `json:"download_url"`
	} `json:"resp_data"`
}
