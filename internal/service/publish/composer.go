package publish

import (
	"github.com/socialkit/crosspost/internal/domain/social"
)

// BuildPayload assembles the provider publish envelope. media may be nil;
// the payload then carries no content block at all.
func BuildPayload(text, authorURN string, media social.ResolvedMedia) map[string]any {
	payload := map[string]any{
		"author":     authorURN,
		"commentary": text,
		"visibility": "PUBLIC",
		"distribution": map[string]any{
			"feedDistribution": "MAIN_FEED",
		},
		"lifecycleState":            "PUBLISHED",
		"isReshareDisabledByAuthor": false,
	}

	switch m := media.(type) {
	case social.ResolvedArticle:
		article := map[string]any{"source": m.Source}
		if m.Title != "" {
			article["title"] = m.Title
		}
		if m.Description != "" {
			article["description"] = m.Description
		}
		if m.Thumbnail != "" {
			article["thumbnail"] = m.Thumbnail
		}
		payload["content"] = map[string]any{"article": article}
	case social.ResolvedAsset:
		payload["content"] = map[string]any{
			"media": map[string]any{
				"id":    m.URN,
				"title": m.Title,
			},
		}
	}
	return payload
}
