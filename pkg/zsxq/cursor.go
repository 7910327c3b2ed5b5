package zsxq

import (
	"time"

	"zsxqsync/pkg/models"
)

// Cursor is the end_time sent to the feed to request older content. Raw is
// the create_time exactly as the API reported it; At is its normalized form.
type Cursor struct {
	Raw string
	At  time.Time
}

// IsZero reports whether the cursor is absent (first page of a run).
func (c Cursor) IsZero() bool {
	return c.Raw == ""
}

func (c Cursor) String() string {
	if c.IsZero() {
		return "<none>"
	}
	return c.Raw
}

// Page is one feed response. Earliest is the create_time of the last topic
// and is zero for an empty page.
type Page struct {
	Topics   []Topic
	Earliest Cursor
}

// Empty reports whether the page carried no topics.
func (p *Page) Empty() bool {
	return len(p.Topics) == 0
}

// CursorAt parses raw into a cursor, normalizing it into loc.
func CursorAt(raw string, loc *time.Location) (Cursor, error) {
	at, err := models.ParseTimestamp(raw, loc)
	if err != nil {
		return Cursor{}, err
	}
	return Cursor{Raw: raw, At: at}, nil
}
