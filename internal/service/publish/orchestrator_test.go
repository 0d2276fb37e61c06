package publish

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/socialkit/crosspost/internal/adapter/linkedin"
	"github.com/socialkit/crosspost/internal/adapter/scraper"
	"github.com/socialkit/crosspost/internal/domain/social"
	oauthsvc "github.com/socialkit/crosspost/internal/service/oauth"
)

func TestPublishTextOnly(t *testing.T) {
	h := newOrchestratorTestHarness()

	result, err := h.orchestrator.Publish(context.Background(), social.PublishRequest{Text: "hello world"})
	require.NoError(t, err)
	require.Equal(t, "urn:li:share:123", result.PostURN)
	require.Equal(t, "https://www.linkedin.com/feed/update/urn:li:share:123", result.PostURL)

	require.Len(t, h.api.payloads, 1)
	payload := h.api.payloads[0]
	require.Equal(t, "hello world", payload["commentary"])
	require.Equal(t, "urn:li:person:owner", payload["author"])
	require.NotContains(t, payload, "content")

	records := h.shares.records
	require.Len(t, records, 1)
	require.Equal(t, social.ShareSuccess, records[0].Status)
	require.Equal(t, "urn:li:share:123", records[0].ExternalRef)
}

func TestPublishRejectsInvalidRequest(t *testing.T) {
	h := newOrchestratorTestHarness()

	_, err := h.orchestrator.Publish(context.Background(), social.PublishRequest{Text: "   "})
	require.ErrorIs(t, err, social.ErrValidation)
	require.Empty(t, h.api.payloads)
	require.Empty(t, h.shares.records)
}

func TestPublishPropagatesExpiredToken(t *testing.T) {
	h := newOrchestratorTestHarness()
	h.session.tokenErr = social.ErrExpiredToken

	_, err := h.orchestrator.Publish(context.Background(), social.PublishRequest{Text: "hello"})
	require.ErrorIs(t, err, social.ErrExpiredToken)
	require.Empty(t, h.api.payloads)
}

func TestPublishImageAsset(t *testing.T) {
	h := newOrchestratorTestHarness()
	h.api.assets["https://cdn.example/cat.png"] = []byte("png")
	h.api.initImage = initializedUpload("https://upload.example/image/1", "urn:li:image:1")

	result, err := h.orchestrator.Publish(context.Background(), social.PublishRequest{
		Text: "look at this",
		Media: &social.MediaInput{Media: social.AssetMedia{
			AssetKind: social.MediaImage,
			Source:    "https://cdn.example/cat.png",
			Title:     "A cat",
		}},
	})
	require.NoError(t, err)
	require.Equal(t, "urn:li:share:123", result.PostURN)

	payload := h.api.payloads[0]
	content := payload["content"].(map[string]any)
	media := content["media"].(map[string]any)
	require.Equal(t, "urn:li:image:1", media["id"])
	require.Equal(t, "A cat", media["title"])
}

func TestPublishUploadFailureRecordsOutcome(t *testing.T) {
	h := newOrchestratorTestHarness()
	h.api.downloadErr = errors.New("unreachable")
	h.api.initImage = initializedUpload("https://upload.example/image/1", "urn:li:image:1")

	_, err := h.orchestrator.Publish(context.Background(), social.PublishRequest{
		Text: "look at this",
		Media: &social.MediaInput{Media: social.AssetMedia{
			AssetKind: social.MediaImage,
			Source:    "https://cdn.example/cat.png",
			Title:     "A cat",
		}},
	})
	var shareErr *social.ShareError
	require.ErrorAs(t, err, &shareErr)
	require.Empty(t, h.api.payloads)

	require.Len(t, h.shares.records, 1)
	require.Equal(t, social.ShareFailed, h.shares.records[0].Status)
	require.NotEmpty(t, h.shares.records[0].ErrorMessage)
}

func TestPublishArticleWhenScrapeUnavailable(t *testing.T) {
	h := newOrchestratorTestHarness()

	result, err := h.orchestrator.Publish(context.Background(), social.PublishRequest{
		Text: "worth a read",
		Media: &social.MediaInput{Media: social.ArticleMedia{
			Source: "https://blog.example/post",
			Title:  "Already titled",
		}},
	})
	require.NoError(t, err)
	require.Equal(t, "urn:li:share:123", result.PostURN)

	payload := h.api.payloads[0]
	content := payload["content"].(map[string]any)
	article := content["article"].(map[string]any)
	require.Equal(t, "https://blog.example/post", article["source"])
	require.Equal(t, "Already titled", article["title"])
}

func TestPublishReturnsBeforeComments(t *testing.T) {
	h := newOrchestratorTestHarness()
	started := make(chan struct{})
	release := make(chan struct{})
	h.api.commentFn = func(string) error {
		close(started)
		<-release
		return nil
	}

	result, err := h.orchestrator.Publish(context.Background(), social.PublishRequest{
		Text:     "hello",
		Comments: []social.Comment{{Text: "first!"}},
	})
	require.NoError(t, err)
	require.Equal(t, "urn:li:share:123", result.PostURN)

	// The publish response is out while the comment is still in flight.
	<-started
	require.Empty(t, h.api.commentsSnapshot())

	close(release)
	h.orchestrator.WaitBackground()
	require.Equal(t, []string{"first!"}, h.api.commentsSnapshot())
}

func TestPublishCommentRetriesPropagationDelay(t *testing.T) {
	h := newOrchestratorTestHarness()
	var delays []time.Duration
	h.orchestrator.sleep = func(d time.Duration) { delays = append(delays, d) }

	var calls int
	h.api.commentFn = func(string) error {
		calls++
		if calls <= 2 {
			return social.NewShareError(social.NetworkLinkedIn, "post comment", http.StatusNotFound, "not found")
		}
		return nil
	}

	_, err := h.orchestrator.Publish(context.Background(), social.PublishRequest{
		Text:     "hello",
		Comments: []social.Comment{{Text: "first!"}},
	})
	require.NoError(t, err)
	h.orchestrator.WaitBackground()

	require.Equal(t, 3, calls)
	require.Equal(t, []time.Duration{backoffDelay(10), backoffDelay(9)}, delays)
	require.Equal(t, []string{"first!"}, h.api.commentsSnapshot())
}

func TestPublishCommentRetriesExhaust(t *testing.T) {
	h := newOrchestratorTestHarness()
	h.orchestrator.sleep = func(time.Duration) {}

	var calls int
	h.api.commentFn = func(text string) error {
		if text == "doomed" {
			calls++
			return social.NewShareError(social.NetworkLinkedIn, "post comment", http.StatusNotFound, "not found")
		}
		return nil
	}

	_, err := h.orchestrator.Publish(context.Background(), social.PublishRequest{
		Text: "hello",
		Comments: []social.Comment{
			{Text: "doomed"},
			{Text: "still posted"},
		},
	})
	require.NoError(t, err)
	h.orchestrator.WaitBackground()

	require.Equal(t, commentRetries+1, calls)
	// A failed comment does not stop the ones after it.
	require.Equal(t, []string{"still posted"}, h.api.commentsSnapshot())
}

func TestPublishCommentNonRetryableFailure(t *testing.T) {
	h := newOrchestratorTestHarness()
	h.orchestrator.sleep = func(time.Duration) {}

	var calls int
	h.api.commentFn = func(string) error {
		calls++
		return social.NewShareError(social.NetworkLinkedIn, "post comment", http.StatusInternalServerError, "boom")
	}

	_, err := h.orchestrator.Publish(context.Background(), social.PublishRequest{
		Text:     "hello",
		Comments: []social.Comment{{Text: "first!"}},
	})
	require.NoError(t, err)
	h.orchestrator.WaitBackground()

	require.Equal(t, 1, calls)
}

// ---- Test harness and fakes ----

type orchestratorTestHarness struct {
	orchestrator *Orchestrator
	session      *fakeSession
	api          *fakeLinkedInAPI
	shares       *memoryShareRepo
}

func newOrchestratorTestHarness() *orchestratorTestHarness {
	api := newFakeLinkedInAPI()
	session := &fakeSession{token: "access-token"}
	shares := newMemoryShareRepo()
	uploader := newTestUploader(api, 0)
	enricher := NewArticleEnricher(failingFetcher{}, uploader, zap.NewNop())
	orchestrator := NewOrchestrator(session, api, uploader, enricher, shares, "urn:li:person:owner", zap.NewNop())
	orchestrator.sleep = func(time.Duration) {}
	return &orchestratorTestHarness{
		orchestrator: orchestrator,
		session:      session,
		api:          api,
		shares:       shares,
	}
}

func initializedUpload(uploadURL, urn string) *linkedin.InitializedUpload {
	return &linkedin.InitializedUpload{UploadURL: uploadURL, URN: urn}
}

type fakeSession struct {
	token    string
	tokenErr error
}

func (f *fakeSession) Network() social.Network { return social.NetworkLinkedIn }

func (f *fakeSession) BuildLoginURL(context.Context) (string, string, error) {
	return "https://provider.example/authorize", "nonce", nil
}

func (f *fakeSession) MatchNonce(context.Context, string) (bool, string, error) {
	return true, "", nil
}

func (f *fakeSession) ExchangeCode(context.Context, string, string) (social.Token, error) {
	return social.Token{AccessToken: f.token}, nil
}

func (f *fakeSession) EnsureValidToken(context.Context) (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return f.token, nil
}

func (f *fakeSession) ValidateIdentity(context.Context, string) error { return nil }

var _ oauthsvc.Session = (*fakeSession)(nil)

type memoryShareRepo struct {
	mu      sync.Mutex
	nextID  int64
	records []social.ShareRecord
}

func newMemoryShareRepo() *memoryShareRepo {
	return &memoryShareRepo{nextID: 1}
}

func (m *memoryShareRepo) Create(_ context.Context, record social.ShareRecord) (social.ShareRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record.ID = m.nextID
	m.nextID++
	record.CreatedAt = time.Now()
	record.UpdatedAt = record.CreatedAt
	m.records = append(m.records, record)
	return record, nil
}

func (m *memoryShareRepo) SetStatus(_ context.Context, id int64, status social.ShareStatus, externalRef, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID == id {
			m.records[i].Status = status
			m.records[i].ExternalRef = externalRef
			m.records[i].ErrorMessage = errorMessage
			m.records[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return errors.New("record not found")
}

func (m *memoryShareRepo) ListRecent(_ context.Context, network social.Network, limit int) ([]social.ShareRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []social.ShareRecord
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		if m.records[i].Network == network {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

type failingFetcher struct{}

func (failingFetcher) FetchDocument(context.Context, string) (*scraper.Document, error) {
	return nil, errors.New("fetch disabled")
}
