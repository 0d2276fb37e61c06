package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/socialkit/crosspost/internal/domain/social"
)

// InitializedUpload is the provider's answer to an image or document
// initialize-upload call.
type InitializedUpload struct {
	UploadURL string
	URN       string
}

// InitializeImageUpload registers an image upload and returns the target URL
// plus the image URN it will resolve to.
func (c *Client) InitializeImageUpload(ctx context.Context, accessToken, ownerURN string) (*InitializedUpload, error) {
	return c.initializeSimpleUpload(ctx, accessToken, ownerURN, "images", "image")
}

// InitializeDocumentUpload registers a document upload.
func (c *Client) InitializeDocumentUpload(ctx context.Context, accessToken, ownerURN string) (*InitializedUpload, error) {
	return c.initializeSimpleUpload(ctx, accessToken, ownerURN, "documents", "document")
}

func (c *Client) initializeSimpleUpload(ctx context.Context, accessToken, ownerURN, resource, urnField string) (*InitializedUpload, error) {
	payload := map[string]any{
		"initializeUploadRequest": map[string]any{"owner": ownerURN},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal initialize payload: %w", err)
	}

	endpoint := c.baseURL + "/rest/" + resource + "?action=initializeUpload"
	resp, respBody, err := c.do(ctx, http.MethodPost, endpoint, accessToken, body)
	if err != nil {
		return nil, social.WrapShareError(social.NetworkLinkedIn, "initialize upload", err)
	}
	if resp.StatusCode >= 300 {
		return nil, social.NewShareError(social.NetworkLinkedIn, "initialize upload", resp.StatusCode, string(respBody))
	}

	var decoded struct {
		Value map[string]any `json:"value"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil || decoded.Value == nil {
		return nil, social.NewShareError(social.NetworkLinkedIn, "initialize upload", resp.StatusCode, string(respBody))
	}
	uploadURL, _ := decoded.Value["uploadUrl"].(string)
	urn, _ := decoded.Value[urnField].(string)
	if uploadURL == "" || urn == "" {
		return nil, social.NewShareError(social.NetworkLinkedIn, "initialize upload", resp.StatusCode, string(respBody))
	}
	return &InitializedUpload{UploadURL: uploadURL, URN: urn}, nil
}

// InitializeVideoUpload registers a chunked video upload and returns the
// session holding the server-assigned chunk plan.
func (c *Client) InitializeVideoUpload(ctx context.Context, accessToken, ownerURN string, fileSizeBytes int64) (*social.UploadSession, error) {
	payload := map[string]any{
		"initializeUploadRequest": map[string]any{
			"owner":           ownerURN,
			"fileSizeBytes":   fileSizeBytes,
			"uploadCaptions":  false,
			"uploadThumbnail": false,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal initialize payload: %w", err)
	}

	endpoint := c.baseURL + "/rest/videos?action=initializeUpload"
	resp, respBody, err := c.do(ctx, http.MethodPost, endpoint, accessToken, body)
	if err != nil {
		return nil, social.WrapShareError(social.NetworkLinkedIn, "initialize video upload", err)
	}
	if resp.StatusCode >= 300 {
		return nil, social.NewShareError(social.NetworkLinkedIn, "initialize video upload", resp.StatusCode, string(respBody))
	}

	var decoded struct {
		Value struct {
			Video              string `json:"video"`
			UploadToken        string `json:"uploadToken"`
			UploadInstructions []struct {
				UploadURL string `json:"uploadUrl"`
				FirstByte int64  `json:"firstByte"`
				LastByte  int64  `json:"lastByte"`
			} `json:"uploadInstructions"`
		} `json:"value"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, social.NewShareError(social.NetworkLinkedIn, "initialize video upload", resp.StatusCode, string(respBody))
	}
	if decoded.Value.Video == "" || len(decoded.Value.UploadInstructions) == 0 {
		return nil, social.NewShareError(social.NetworkLinkedIn, "initialize video upload", resp.StatusCode, string(respBody))
	}

	session := &social.UploadSession{
		VideoURN:    decoded.Value.Video,
		UploadToken: decoded.Value.UploadToken,
	}
	for _, instruction := range decoded.Value.UploadInstructions {
		session.Chunks = append(session.Chunks, social.UploadChunk{
			UploadURL: instruction.UploadURL,
			FirstByte: instruction.FirstByte,
			LastByte:  instruction.LastByte,
		})
	}
	return session, nil
}

// UploadAsset PUTs the full asset bytes to the provider-issued upload URL.
func (c *Client) UploadAsset(ctx context.Context, uploadURL, accessToken string, data []byte) error {
	resp, body, err := c.put(ctx, uploadURL, accessToken, data)
	if err != nil {
		return social.WrapShareError(social.NetworkLinkedIn, "upload asset", err)
	}
	if resp.StatusCode >= 300 {
		return social.NewShareError(social.NetworkLinkedIn, "upload asset", resp.StatusCode, string(body))
	}
	return nil
}

// UploadChunk PUTs one byte range of a video and returns the ETag the
// provider acknowledges it with.
func (c *Client) UploadChunk(ctx context.Context, uploadURL, accessToken string, data []byte) (string, error) {
	resp, body, err := c.put(ctx, uploadURL, accessToken, data)
	if err != nil {
		return "", social.WrapShareError(social.NetworkLinkedIn, "upload video chunk", err)
	}
	if resp.StatusCode >= 300 {
		return "", social.NewShareError(social.NetworkLinkedIn, "upload video chunk", resp.StatusCode, string(body))
	}
	etag := strings.TrimSpace(resp.Header.Get("ETag"))
	if etag == "" {
		return "", social.NewShareError(social.NetworkLinkedIn, "upload video chunk", resp.StatusCode, "missing etag header")
	}
	return etag, nil
}

// FinalizeVideo completes a chunked upload with the collected ETags. Single
// attempt; the uploader service owns the retry policy.
func (c *Client) FinalizeVideo(ctx context.Context, accessToken string, session *social.UploadSession, etags []string) error {
	payload := map[string]any{
		"finalizeUploadRequest": map[string]any{
			"video":           session.VideoURN,
			"uploadToken":     session.UploadToken,
			"uploadedPartIds": etags,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal finalize payload: %w", err)
	}

	endpoint := c.baseURL + "/rest/videos?action=finalizeUpload"
	resp, respBody, err := c.do(ctx, http.MethodPost, endpoint, accessToken, body)
	if err != nil {
		return social.WrapShareError(social.NetworkLinkedIn, "finalize video upload", err)
	}
	if resp.StatusCode >= 300 {
		return social.NewShareError(social.NetworkLinkedIn, "finalize video upload", resp.StatusCode, string(respBody))
	}
	return nil
}

func (c *Client) put(ctx context.Context, uploadURL, accessToken string, data []byte) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("build upload request: %w", err)
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("read upload response: %w", err)
	}
	return resp, body, nil
}
