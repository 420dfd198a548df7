// Package catalog models the read-only course tree and the sources it can
// be loaded from.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Video is a single playable lesson. YouTubeID is the external playback
// reference handed to the player widget.
type Video struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	YouTubeID   string `json:"youtubeVideoId" yaml:"youtubeVideoId"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Section groups videos; the order of Videos is the play order.
type Section struct {
	ID     string  `json:"id" yaml:"id"`
	Name   string  `json:"name" yaml:"name"`
	Videos []Video `json:"videos" yaml:"videos"`
}

type Course struct {
	ID           string    `json:"id" yaml:"id"`
	Title        string    `json:"title" yaml:"title"`
	Description  string    `json:"description" yaml:"description"`
	ThumbnailURL string    `json:"thumbnailUrl" yaml:"thumbnailUrl"`
	Sections     []Section `json:"sections" yaml:"sections"`
}

// Videos returns the flattened play order: sections in stored order, and
// each section's videos in stored order.
func (c Course) Videos() []Video {
	out := make([]Video, 0, c.TotalVideos())
	for _, s := range c.Sections {
		out = append(out, s.Videos...)
	}
	return out
}

func (c Course) TotalVideos() int {
	n := 0
	for _, s := range c.Sections {
		n += len(s.Videos)
	}
	return n
}

func (c Course) FindVideo(id string) (Video, bool) {
	for _, s := range c.Sections {
		for _, v := range s.Videos {
			if v.ID == id {
				return v, true
			}
		}
	}
	return Video{}, false
}

// Validate checks the identifier invariants: every id is present and video
// ids are unique within the course.
func (c Course) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("course id is empty")
	}
	seen := make(map[string]struct{}, c.TotalVideos())
	for i, s := range c.Sections {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("course %s: section %d has an empty id", c.ID, i)
		}
		for j, v := range s.Videos {
			if strings.TrimSpace(v.ID) == "" {
				return fmt.Errorf("course %s: section %s video %d has an empty id", c.ID, s.ID, j)
			}
			if _, dup := seen[v.ID]; dup {
				return fmt.Errorf("course %s: duplicate video id %q", c.ID, v.ID)
			}
			seen[v.ID] = struct{}{}
		}
	}
	return nil
}

// ValidateAll validates each course and rejects duplicate course ids.
func ValidateAll(courses []Course) error {
	seen := make(map[string]struct{}, len(courses))
	for _, c := range courses {
		if err := c.Validate(); err != nil {
			return err
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("duplicate course id %q", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}
