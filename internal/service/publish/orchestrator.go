package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/socialkit/crosspost/internal/adapter/linkedin"
	"github.com/socialkit/crosspost/internal/domain/social"
	"github.com/socialkit/crosspost/internal/repository"
	oauthsvc "github.com/socialkit/crosspost/internal/service/oauth"
)

const commentRetries = 10

// Orchestrator coordinates a LinkedIn publish: token, media resolution,
// payload composition, the publish call, and detached comment posting.
type Orchestrator struct {
	session   oauthsvc.Session
	api       LinkedInAPI
	uploader  *AssetUploader
	enricher  *ArticleEnricher
	shares    repository.ShareRecordRepo
	authorURN string
	logger    *zap.Logger
	sleep     func(time.Duration)
	tasks     sync.WaitGroup
}

// NewOrchestrator wires the publish coordinator.
func NewOrchestrator(
	session oauthsvc.Session,
	api LinkedInAPI,
	uploader *AssetUploader,
	enricher *ArticleEnricher,
	shares repository.ShareRecordRepo,
	authorURN string,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.L()
	}
	return &Orchestrator{
		session:   session,
		api:       api,
		uploader:  uploader,
		enricher:  enricher,
		shares:    shares,
		authorURN: authorURN,
		logger:    logger,
		sleep:     time.Sleep,
	}
}

// Publish runs the full pipeline and returns as soon as the post is created.
// Comments are posted by a detached worker and never block or fail the
// response.
func (o *Orchestrator) Publish(ctx context.Context, req social.PublishRequest) (social.PublishResult, error) {
	if err := req.Validate(); err != nil {
		return social.PublishResult{}, err
	}

	accessToken, err := o.session.EnsureValidToken(ctx)
	if err != nil {
		return social.PublishResult{}, err
	}

	record := o.recordAttempt(ctx, req.Text)

	media, err := o.resolveMedia(ctx, accessToken, req)
	if err != nil {
		o.recordOutcome(ctx, record, social.ShareFailed, "", err)
		return social.PublishResult{}, err
	}

	payload := BuildPayload(req.Text, o.authorURN, media)
	postURN, err := o.api.CreatePost(ctx, accessToken, payload)
	if err != nil {
		o.recordOutcome(ctx, record, social.ShareFailed, "", err)
		return social.PublishResult{}, err
	}

	o.recordOutcome(ctx, record, social.ShareSuccess, postURN, nil)

	if len(req.Comments) > 0 {
		comments := make([]social.Comment, len(req.Comments))
		copy(comments, req.Comments)
		o.tasks.Add(1)
		go o.postComments(context.WithoutCancel(ctx), accessToken, postURN, comments)
	}

	return social.PublishResult{
		PostURN: postURN,
		PostURL: linkedin.PostURL(postURN),
	}, nil
}

// WaitBackground blocks until detached comment workers finish. Tests use it
// to observe fire-and-forget completion deterministically.
func (o *Orchestrator) WaitBackground() {
	o.tasks.Wait()
}

func (o *Orchestrator) resolveMedia(ctx context.Context, accessToken string, req social.PublishRequest) (social.ResolvedMedia, error) {
	if req.Media == nil {
		return nil, nil
	}
	switch m := req.Media.Media.(type) {
	case social.ArticleMedia:
		return o.enricher.Enrich(ctx, accessToken, m), nil
	case social.AssetMedia:
		var (
			urn string
			err error
		)
		switch m.AssetKind {
		case social.MediaImage:
			urn, err = o.uploader.UploadImage(ctx, accessToken, m.Source)
		case social.MediaDocument:
			urn, err = o.uploader.UploadDocument(ctx, accessToken, m.Source)
		case social.MediaVideo:
			urn, err = o.uploader.UploadVideo(ctx, accessToken, m.Source)
		default:
			return nil, fmt.Errorf("%w: unknown asset type %q", social.ErrValidation, m.AssetKind)
		}
		if err != nil {
			return nil, err
		}
		return social.ResolvedAsset{AssetKind: m.AssetKind, Title: m.Title, URN: urn}, nil
	}
	return nil, fmt.Errorf("%w: unsupported media variant", social.ErrValidation)
}

// postComments walks the comments in issuance order. Every terminal failure
// is logged and swallowed; the publish response already went out.
func (o *Orchestrator) postComments(ctx context.Context, accessToken, postURN string, comments []social.Comment) {
	defer o.tasks.Done()
	for i, comment := range comments {
		if err := o.postComment(ctx, accessToken, postURN, comment.Text); err != nil {
			o.logger.Error("comment post failed",
				zap.String("post_urn", postURN), zap.Int("comment", i), zap.Error(err))
		}
	}
}

// postComment retries only the propagation-delay 404s; anything else is
// terminal on the first attempt.
func (o *Orchestrator) postComment(ctx context.Context, accessToken, postURN, text string) error {
	remaining := commentRetries
	for {
		err := o.api.CreateComment(ctx, accessToken, postURN, o.authorURN, text)
		if err == nil {
			return nil
		}
		var shareErr *social.ShareError
		if !errors.As(err, &shareErr) || shareErr.Status != http.StatusNotFound || remaining == 0 {
			return err
		}
		o.sleep(backoffDelay(remaining))
		remaining--
	}
}

func (o *Orchestrator) recordAttempt(ctx context.Context, text string) *social.ShareRecord {
	if o.shares == nil {
		return nil
	}
	record, err := o.shares.Create(ctx, social.ShareRecord{
		Network: social.NetworkLinkedIn,
		Text:    text,
		Status:  social.SharePending,
	})
	if err != nil {
		o.logger.Warn("share record insert failed", zap.Error(err))
		return nil
	}
	return &record
}

func (o *Orchestrator) recordOutcome(ctx context.Context, record *social.ShareRecord, status social.ShareStatus, externalRef string, cause error) {
	if o.shares == nil || record == nil {
		return
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	if err := o.shares.SetStatus(ctx, record.ID, status, externalRef, message); err != nil {
		o.logger.Warn("share record update failed", zap.Error(err))
	}
}
