package publish

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/socialkit/crosspost/internal/domain/social"
)

func TestBuildPayloadTextOnly(t *testing.T) {
	payload := BuildPayload("hello", "urn:li:person:owner", nil)

	require.Equal(t, "urn:li:person:owner", payload["author"])
	require.Equal(t, "hello", payload["commentary"])
	require.Equal(t, "PUBLIC", payload["visibility"])
	require.Equal(t, "PUBLISHED", payload["lifecycleState"])
	require.Equal(t, false, payload["isReshareDisabledByAuthor"])
	require.Equal(t, map[string]any{"feedDistribution": "MAIN_FEED"}, payload["distribution"])
	require.NotContains(t, payload, "content")
}

func TestBuildPayloadArticle(t *testing.T) {
	payload := BuildPayload("read this", "urn:li:person:owner", social.ResolvedArticle{
		Source:      "https://blog.example/post",
		Title:       "A Title",
		Description: "A description.",
		Thumbnail:   "urn:li:image:1",
	})

	content := payload["content"].(map[string]any)
	article := content["article"].(map[string]any)
	require.Equal(t, "https://blog.example/post", article["source"])
	require.Equal(t, "A Title", article["title"])
	require.Equal(t, "A description.", article["description"])
	require.Equal(t, "urn:li:image:1", article["thumbnail"])
}

func TestBuildPayloadArticleOmitsEmptyFields(t *testing.T) {
	payload := BuildPayload("read this", "urn:li:person:owner", social.ResolvedArticle{
		Source: "https://blog.example/post",
	})

	article := payload["content"].(map[string]any)["article"].(map[string]any)
	require.Equal(t, map[string]any{"source": "https://blog.example/post"}, article)
}

func TestBuildPayloadAsset(t *testing.T) {
	payload := BuildPayload("watch this", "urn:li:person:owner", social.ResolvedAsset{
		AssetKind: social.MediaVideo,
		Title:     "Demo clip",
		URN:       "urn:li:video:1",
	})

	media := payload["content"].(map[string]any)["media"].(map[string]any)
	require.Equal(t, "urn:li:video:1", media["id"])
	require.Equal(t, "Demo clip", media["title"])
}
