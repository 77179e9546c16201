package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zulandar/lectern/internal/store"
)

// manifest lists videos to import for one channel. JSON manifests parse as
// YAML too.
//
//	channel:
//	  id: UCxyz
//	  name: Elk 101
//	videos:
//	  - id: abc123
//	    title: Early season elk
//	    published_at: 2024-09-01
//	    duration: 1260
type manifest struct {
	Channel struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		URL         string `yaml:"url"`
		Description string `yaml:"description"`
		Subscribers int    `yaml:"subscribers"`
		Thumbnail   string `yaml:"thumbnail"`
	} `yaml:"channel"`
	Videos []manifestVideo `yaml:"videos"`
}

type manifestVideo struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	PublishedAt string `yaml:"published_at"`
	Duration    int    `yaml:"duration"`
	Thumbnail   string `yaml:"thumbnail"`
}

func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return parseManifest(data)
}

func parseManifest(data []byte) (*manifest, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Channel.ID == "" {
		return nil, fmt.Errorf("manifest: channel.id is required")
	}
	for i, v := range m.Videos {
		if v.ID == "" {
			return nil, fmt.Errorf("manifest: videos[%d].id is required", i)
		}
		if v.PublishedAt != "" {
			if _, err := parsePublished(v.PublishedAt); err != nil {
				return nil, fmt.Errorf("manifest: videos[%d].published_at: %w", i, err)
			}
		}
	}
	return &m, nil
}

func (m *manifest) channelInput() store.ChannelInput {
	return store.ChannelInput{
		ChannelID:       m.Channel.ID,
		Name:            m.Channel.Name,
		URL:             m.Channel.URL,
		Description:     m.Channel.Description,
		SubscriberCount: m.Channel.Subscribers,
		ThumbnailURL:    m.Channel.Thumbnail,
	}
}

func (m *manifest) videoInputs() []store.VideoInput {
	out := make([]store.VideoInput, len(m.Videos))
	for i, v := range m.Videos {
		out[i] = store.VideoInput{
			VideoID:         v.ID,
			Title:           v.Title,
			Description:     v.Description,
			DurationSeconds: v.Duration,
			ThumbnailURL:    v.Thumbnail,
		}
		if out[i].Title == "" {
			out[i].Title = v.ID
		}
		if t, err := parsePublished(v.PublishedAt); err == nil {
			out[i].PublishedAt = t
		}
	}
	return out
}

// parsePublished accepts RFC 3339 timestamps or plain dates. An empty
// string is no date.
func parsePublished(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%q is not a date (want YYYY-MM-DD or RFC 3339)", s)
}
