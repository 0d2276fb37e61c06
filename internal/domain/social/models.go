package social

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Network identifies a supported provider integration.
type Network string

const (
	NetworkLinkedIn Network = "linkedin"
	NetworkTwitter  Network = "twitter"
)

// ParseNetwork validates a path segment against the known networks.
func ParseNetwork(raw string) (Network, error) {
	switch Network(strings.ToLower(strings.TrimSpace(raw))) {
	case NetworkLinkedIn:
		return NetworkLinkedIn, nil
	case NetworkTwitter:
		return NetworkTwitter, nil
	}
	return "", fmt.Errorf("%w: unknown network %q", ErrValidation, raw)
}

// Input limits enforced before any provider call.
const (
	MaxPostTextLen         = 3000
	MaxMediaTitleLen       = 100
	MaxMediaDescriptionLen = 300
)

// NonceTTL bounds how long a login nonce stays valid.
const NonceTTL = 60 * time.Second

// Token bundles the provider-issued credentials persisted per network.
type Token struct {
	AccessToken           string    `json:"access_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshToken          string    `json:"refresh_token,omitempty"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at,omitempty"`
}

// MediaKind discriminates the media union.
type MediaKind string

const (
	MediaArticle  MediaKind = "article"
	MediaImage    MediaKind = "image"
	MediaDocument MediaKind = "document"
	MediaVideo    MediaKind = "video"
)

// Media is the tagged union of publishable attachments.
type Media interface {
	Kind() MediaKind
	Validate() error
}

// ArticleMedia shares an external link, optionally pre-filled with metadata.
type ArticleMedia struct {
	Source      string `json:"source"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
}

// Kind implements Media.
func (ArticleMedia) Kind() MediaKind { return MediaArticle }

// Validate implements Media.
func (a ArticleMedia) Validate() error {
	if strings.TrimSpace(a.Source) == "" {
		return fmt.Errorf("%w: article source is required", ErrValidation)
	}
	if len(a.Title) > MaxMediaTitleLen {
		return fmt.Errorf("%w: article title exceeds %d characters", ErrValidation, MaxMediaTitleLen)
	}
	if len(a.Description) > MaxMediaDescriptionLen {
		return fmt.Errorf("%w: article description exceeds %d characters", ErrValidation, MaxMediaDescriptionLen)
	}
	return nil
}

// AssetMedia uploads a binary (image, document or video) fetched from Source.
type AssetMedia struct {
	AssetKind MediaKind `json:"type"`
	Source    string    `json:"source"`
	Title     string    `json:"title"`
}

// Kind implements Media.
func (m AssetMedia) Kind() MediaKind { return m.AssetKind }

// Validate implements Media.
func (m AssetMedia) Validate() error {
	switch m.AssetKind {
	case MediaImage, MediaDocument, MediaVideo:
	default:
		return fmt.Errorf("%w: unknown asset type %q", ErrValidation, m.AssetKind)
	}
	if strings.TrimSpace(m.Source) == "" {
		return fmt.Errorf("%w: asset source is required", ErrValidation)
	}
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("%w: asset title is required", ErrValidation)
	}
	if len(m.Title) > MaxMediaTitleLen {
		return fmt.Errorf("%w: asset title exceeds %d characters", ErrValidation, MaxMediaTitleLen)
	}
	return nil
}

// MediaInput decodes the wire representation of the media union.
type MediaInput struct {
	Media Media
}

// UnmarshalJSON dispatches on the "type" tag.
func (m *MediaInput) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("%w: malformed media payload", ErrValidation)
	}
	switch MediaKind(strings.ToLower(strings.TrimSpace(probe.Type))) {
	case MediaArticle:
		var article ArticleMedia
		if err := json.Unmarshal(data, &article); err != nil {
			return fmt.Errorf("%w: malformed article media", ErrValidation)
		}
		m.Media = article
	case MediaImage, MediaDocument, MediaVideo:
		var asset AssetMedia
		if err := json.Unmarshal(data, &asset); err != nil {
			return fmt.Errorf("%w: malformed asset media", ErrValidation)
		}
		asset.AssetKind = MediaKind(strings.ToLower(strings.TrimSpace(probe.Type)))
		m.Media = asset
	default:
		return fmt.Errorf("%w: unknown media type %q", ErrValidation, probe.Type)
	}
	return nil
}

// MarshalJSON round-trips the wrapped variant.
func (m MediaInput) MarshalJSON() ([]byte, error) {
	switch v := m.Media.(type) {
	case ArticleMedia:
		return json.Marshal(struct {
			Type MediaKind `json:"type"`
			ArticleMedia
		}{MediaArticle, v})
	case AssetMedia:
		return json.Marshal(v)
	}
	return nil, fmt.Errorf("unsupported media variant %T", m.Media)
}

// Comment is a follow-up message posted under a published post.
type Comment struct {
	Text string `json:"text"`
}

// PublishRequest is the caller-facing publish input.
type PublishRequest struct {
	Text     string      `json:"text"`
	Media    *MediaInput `json:"media,omitempty"`
	Comments []Comment   `json:"comments,omitempty"`
}

// Validate enforces the schema limits before any provider call.
func (r PublishRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrValidation)
	}
	if len(r.Text) > MaxPostTextLen {
		return fmt.Errorf("%w: text exceeds %d characters", ErrValidation, MaxPostTextLen)
	}
	if r.Media != nil {
		if r.Media.Media == nil {
			return fmt.Errorf("%w: media payload is empty", ErrValidation)
		}
		if err := r.Media.Media.Validate(); err != nil {
			return err
		}
	}
	for i, comment := range r.Comments {
		if strings.TrimSpace(comment.Text) == "" {
			return fmt.Errorf("%w: comment %d is empty", ErrValidation, i)
		}
		if len(comment.Text) > MaxPostTextLen {
			return fmt.Errorf("%w: comment %d exceeds %d characters", ErrValidation, i, MaxPostTextLen)
		}
	}
	return nil
}

// PublishResult reports the created post.
type PublishResult struct {
	PostURN string `json:"postUrn"`
	PostURL string `json:"postUrl"`
}

// ResolvedMedia is media after enrichment or upload, ready for the payload.
type ResolvedMedia interface {
	resolvedMedia()
}

// ResolvedArticle carries article metadata; Thumbnail holds an uploaded
// image URN when a thumbnail was scraped or supplied.
type ResolvedArticle struct {
	Source      string
	Title       string
	Description string
	Thumbnail   string
}

func (ResolvedArticle) resolvedMedia() {}

// ResolvedAsset references an uploaded provider asset by URN.
type ResolvedAsset struct {
	AssetKind MediaKind
	Title     string
	URN       string
}

func (ResolvedAsset) resolvedMedia() {}

// UploadChunk is one server-assigned byte range of a video upload.
type UploadChunk struct {
	UploadURL string
	FirstByte int64
	LastByte  int64
}

// UploadSession tracks a chunked video upload between initialize and finalize.
type UploadSession struct {
	VideoURN    string
	UploadToken string
	Chunks      []UploadChunk
	ETags       []string
}

// ShareStatus lifecycle for audit records.
type ShareStatus string

const (
	SharePending ShareStatus = "pending"
	ShareSuccess ShareStatus = "success"
	ShareFailed  ShareStatus = "failed"
)

// ShareRecord is one row of the publish audit log.
type ShareRecord struct {
	ID           int64       `json:"id"`
	Network      Network     `json:"network"`
	Text         string      `json:"text"`
	Status       ShareStatus `json:"status"`
	ExternalRef  string      `json:"external_ref,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}
