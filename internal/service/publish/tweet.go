package publish

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/socialkit/crosspost/internal/adapter/twitter"
	"github.com/socialkit/crosspost/internal/domain/social"
	"github.com/socialkit/crosspost/internal/repository"
	oauthsvc "github.com/socialkit/crosspost/internal/service/oauth"
)

// TwitterAPI is the slice of the Twitter surface the publisher consumes.
type TwitterAPI interface {
	CreateTweet(ctx context.Context, accessToken, text string) (string, error)
}

var _ TwitterAPI = (*twitter.Client)(nil)

// TweetPublisher publishes plain-text posts to Twitter. Media and comments
// are not supported on this network.
type TweetPublisher struct {
	session oauthsvc.Session
	api     TwitterAPI
	shares  repository.ShareRecordRepo
	logger  *zap.Logger
}

// NewTweetPublisher wires the publisher.
func NewTweetPublisher(session oauthsvc.Session, api TwitterAPI, shares repository.ShareRecordRepo, logger *zap.Logger) *TweetPublisher {
	if logger == nil {
		logger = zap.L()
	}
	return &TweetPublisher{session: session, api: api, shares: shares, logger: logger}
}

// Publish creates the tweet and returns its id and URL.
func (p *TweetPublisher) Publish(ctx context.Context, req social.PublishRequest) (social.PublishResult, error) {
	if err := req.Validate(); err != nil {
		return social.PublishResult{}, err
	}
	if req.Media != nil {
		return social.PublishResult{}, fmt.Errorf("%w: media is not supported on twitter", social.ErrValidation)
	}
	if len(req.Comments) > 0 {
		return social.PublishResult{}, fmt.Errorf("%w: comments are not supported on twitter", social.ErrValidation)
	}

	accessToken, err := p.session.EnsureValidToken(ctx)
	if err != nil {
		return social.PublishResult{}, err
	}

	var recordID int64
	if p.shares != nil {
		record, err := p.shares.Create(ctx, social.ShareRecord{
			Network: social.NetworkTwitter,
			Text:    req.Text,
			Status:  social.SharePending,
		})
		if err != nil {
			p.logger.Warn("share record insert failed", zap.Error(err))
		} else {
			recordID = record.ID
		}
	}

	tweetID, err := p.api.CreateTweet(ctx, accessToken, req.Text)
	if err != nil {
		p.setStatus(ctx, recordID, social.ShareFailed, "", err)
		return social.PublishResult{}, err
	}
	p.setStatus(ctx, recordID, social.ShareSuccess, tweetID, nil)

	return social.PublishResult{
		PostURN: tweetID,
		PostURL: twitter.TweetURL(tweetID),
	}, nil
}

func (p *TweetPublisher) setStatus(ctx context.Context, recordID int64, status social.ShareStatus, externalRef string, cause error) {
	if p.shares == nil || recordID == 0 {
		return
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	if err := p.shares.SetStatus(ctx, recordID, status, externalRef, message); err != nil {
		p.logger.Warn("share record update failed", zap.Error(err))
	}
}
