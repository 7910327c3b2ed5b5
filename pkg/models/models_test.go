package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatermarkReached(t *testing.T) {
	wm := At(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	assert.False(t, wm.Reached(time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)))
	assert.True(t, wm.Reached(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), "equal instant stops")
	assert.True(t, wm.Reached(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)))

	assert.False(t, Beginning().Reached(time.Time{}))
}

func TestWatermarkString(t *testing.T) {
	assert.Equal(t, "beginning", Beginning().String())
	assert.Equal(t, "2024-01-01T08:30:00.000000", At(time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC)).String())
}

func TestTopicLists(t *testing.T) {
	topic := &Topic{Images: []string{"a/0.jpg", "a/1.png"}}

	assert.Equal(t, "a/0.jpg,a/1.png", topic.ImageList())
	assert.Equal(t, "", topic.FileList())
	assert.Equal(t, []string{"a/0.jpg", "a/1.png"}, SplitList(topic.ImageList()))
	assert.Nil(t, SplitList(""))
}
