package publish

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/socialkit/crosspost/internal/adapter/linkedin"
	"github.com/socialkit/crosspost/internal/domain/social"
)

// LinkedInAPI is the slice of the LinkedIn REST surface the publish services
// consume. Satisfied by *linkedin.Client.
type LinkedInAPI interface {
	DownloadAsset(ctx context.Context, sourceURL string) ([]byte, error)
	InitializeImageUpload(ctx context.Context, accessToken, ownerURN string) (*linkedin.InitializedUpload, error)
	InitializeDocumentUpload(ctx context.Context, accessToken, ownerURN string) (*linkedin.InitializedUpload, error)
	InitializeVideoUpload(ctx context.Context, accessToken, ownerURN string, fileSizeBytes int64) (*social.UploadSession, error)
	UploadAsset(ctx context.Context, uploadURL, accessToken string, data []byte) error
	UploadChunk(ctx context.Context, uploadURL, accessToken string, data []byte) (string, error)
	FinalizeVideo(ctx context.Context, accessToken string, session *social.UploadSession, etags []string) error
	CreatePost(ctx context.Context, accessToken string, payload map[string]any) (string, error)
	CreateComment(ctx context.Context, accessToken, postURN, actorURN, text string) error
}

var _ LinkedInAPI = (*linkedin.Client)(nil)

const finalizeRetries = 3

// backoffDelay is the shared linear backoff: more remaining retries, longer
// wait.
func backoffDelay(remainingRetries int) time.Duration {
	return time.Duration(500*remainingRetries+1) * time.Millisecond
}

// AssetUploader drives the provider upload protocols and returns asset URNs.
type AssetUploader struct {
	api         LinkedInAPI
	ownerURN    string
	gracePeriod time.Duration
	sleep       func(time.Duration)
	logger      *zap.Logger
}

// NewAssetUploader wires the uploader. gracePeriod is the pause between the
// last chunk landing and finalize, covering provider-side eventual
// consistency.
func NewAssetUploader(api LinkedInAPI, ownerURN string, gracePeriod time.Duration, logger *zap.Logger) *AssetUploader {
	if logger == nil {
		logger = zap.L()
	}
	return &AssetUploader{
		api:         api,
		ownerURN:    ownerURN,
		gracePeriod: gracePeriod,
		sleep:       time.Sleep,
		logger:      logger,
	}
}

// UploadImage runs the two-phase image upload and returns the image URN.
func (u *AssetUploader) UploadImage(ctx context.Context, accessToken, sourceURL string) (string, error) {
	initialized, err := u.api.InitializeImageUpload(ctx, accessToken, u.ownerURN)
	if err != nil {
		return "", err
	}
	return u.uploadInitialized(ctx, accessToken, sourceURL, initialized)
}

// UploadDocument runs the two-phase document upload and returns the URN.
func (u *AssetUploader) UploadDocument(ctx context.Context, accessToken, sourceURL string) (string, error) {
	initialized, err := u.api.InitializeDocumentUpload(ctx, accessToken, u.ownerURN)
	if err != nil {
		return "", err
	}
	return u.uploadInitialized(ctx, accessToken, sourceURL, initialized)
}

func (u *AssetUploader) uploadInitialized(ctx context.Context, accessToken, sourceURL string, initialized *linkedin.InitializedUpload) (string, error) {
	data, err := u.api.DownloadAsset(ctx, sourceURL)
	if err != nil {
		return "", social.WrapShareError(social.NetworkLinkedIn, "download asset", err)
	}
	if err := u.api.UploadAsset(ctx, initialized.UploadURL, accessToken, data); err != nil {
		return "", err
	}
	return initialized.URN, nil
}

// UploadVideo runs the chunked video protocol: initialize, upload the chunks
// in parallel, wait out the grace period, finalize. Returns the video URN.
func (u *AssetUploader) UploadVideo(ctx context.Context, accessToken, sourceURL string) (string, error) {
	data, err := u.api.DownloadAsset(ctx, sourceURL)
	if err != nil {
		return "", social.WrapShareError(social.NetworkLinkedIn, "download video", err)
	}

	session, err := u.api.InitializeVideoUpload(ctx, accessToken, u.ownerURN, int64(len(data)))
	if err != nil {
		return "", err
	}

	etags, err := u.uploadChunks(ctx, accessToken, session, data)
	if err != nil {
		return "", err
	}
	session.ETags = etags

	if u.gracePeriod > 0 {
		u.sleep(u.gracePeriod)
	}

	if err := u.finalize(ctx, accessToken, session, etags); err != nil {
		return "", err
	}
	return session.VideoURN, nil
}

// uploadChunks PUTs every chunk concurrently. ETags land at the index of
// their chunk, so the result keeps chunk-plan order no matter which upload
// finishes first.
func (u *AssetUploader) uploadChunks(ctx context.Context, accessToken string, session *social.UploadSession, data []byte) ([]string, error) {
	etags := make([]string, len(session.Chunks))
	g, ctx := errgroup.WithContext(ctx)

	for i, chunk := range session.Chunks {
		if chunk.FirstByte < 0 || chunk.LastByte >= int64(len(data)) || chunk.FirstByte > chunk.LastByte {
			return nil, social.NewShareError(social.NetworkLinkedIn, "upload video chunk", 0,
				fmt.Sprintf("chunk range [%d, %d] outside %d bytes", chunk.FirstByte, chunk.LastByte, len(data)))
		}
		part := data[chunk.FirstByte : chunk.LastByte+1]
		uploadURL := chunk.UploadURL
		idx := i
		g.Go(func() error {
			etag, err := u.api.UploadChunk(ctx, uploadURL, accessToken, part)
			if err != nil {
				return err
			}
			etags[idx] = etag
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return etags, nil
}

// finalize retries on provider rejection with a shrinking linear backoff.
func (u *AssetUploader) finalize(ctx context.Context, accessToken string, session *social.UploadSession, etags []string) error {
	remaining := finalizeRetries
	for {
		err := u.api.FinalizeVideo(ctx, accessToken, session, etags)
		if err == nil {
			return nil
		}
		if remaining == 0 {
			return err
		}
		u.logger.Warn("finalize rejected, retrying",
			zap.Int("remaining", remaining), zap.Error(err))
		u.sleep(backoffDelay(remaining))
		remaining--
	}
}
