package config

import (
	"fmt"
	"time"

	"zsxqsync/pkg/models"
)

// Sources converts the configured groups into backfill sources, parsing
// each configured watermark in loc.
func (c *Config) Sources(loc *time.Location) ([]models.Source, error) {
	sources := make([]models.Source, 0, len(c.Groups))
	for _, g := range c.Groups {
		wm, err := models.ParseWatermark(g.LastDownloadTime, loc)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", g.ID, err)
		}
		sources = append(sources, models.Source{ID: g.ID, Name: g.Name, Watermark: wm})
	}
	return sources, nil
}
