package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/socialkit/crosspost/internal/adapter/linkedin"
	"github.com/socialkit/crosspost/internal/domain/social"
)

func TestUploadImage(t *testing.T) {
	api := newFakeLinkedInAPI()
	api.assets["https://cdn.example/cat.png"] = []byte("png-bytes")
	api.initImage = &linkedin.InitializedUpload{
		UploadURL: "https://upload.example/image/1",
		URN:       "urn:li:image:1",
	}
	uploader := newTestUploader(api, 0)

	urn, err := uploader.UploadImage(context.Background(), "token", "https://cdn.example/cat.png")
	require.NoError(t, err)
	require.Equal(t, "urn:li:image:1", urn)
	require.Equal(t, []byte("png-bytes"), api.uploaded["https://upload.example/image/1"])
}

func TestUploadDocument(t *testing.T) {
	api := newFakeLinkedInAPI()
	api.assets["https://cdn.example/report.pdf"] = []byte("pdf-bytes")
	api.initDocument = &linkedin.InitializedUpload{
		UploadURL: "https://upload.example/doc/1",
		URN:       "urn:li:document:1",
	}
	uploader := newTestUploader(api, 0)

	urn, err := uploader.UploadDocument(context.Background(), "token", "https://cdn.example/report.pdf")
	require.NoError(t, err)
	require.Equal(t, "urn:li:document:1", urn)
}

func TestUploadImageDownloadFails(t *testing.T) {
	api := newFakeLinkedInAPI()
	api.downloadErr = errors.New("connection reset")
	api.initImage = &linkedin.InitializedUpload{UploadURL: "https://upload.example/image/1", URN: "urn:li:image:1"}
	uploader := newTestUploader(api, 0)

	_, err := uploader.UploadImage(context.Background(), "token", "https://cdn.example/cat.png")
	var shareErr *social.ShareError
	require.ErrorAs(t, err, &shareErr)
	require.Equal(t, social.NetworkLinkedIn, shareErr.Network)
}

func TestUploadVideoKeepsChunkOrder(t *testing.T) {
	data := []byte("abcdefghijkl")
	api := newFakeLinkedInAPI()
	api.assets["https://cdn.example/clip.mp4"] = data
	api.videoSession = &social.UploadSession{
		VideoURN:    "urn:li:video:1",
		UploadToken: "upload-token",
		Chunks: []social.UploadChunk{
			{UploadURL: "https://upload.example/chunk/0", FirstByte: 0, LastByte: 3},
			{UploadURL: "https://upload.example/chunk/1", FirstByte: 4, LastByte: 7},
			{UploadURL: "https://upload.example/chunk/2", FirstByte: 8, LastByte: 11},
		},
	}
	// The first chunk finishes last; collected etags must still follow the
	// chunk plan, not completion order.
	api.chunkDelay = map[string]time.Duration{
		"https://upload.example/chunk/0": 30 * time.Millisecond,
		"https://upload.example/chunk/1": 10 * time.Millisecond,
	}
	uploader := newTestUploader(api, 0)

	urn, err := uploader.UploadVideo(context.Background(), "token", "https://cdn.example/clip.mp4")
	require.NoError(t, err)
	require.Equal(t, "urn:li:video:1", urn)

	require.Equal(t, []byte("abcd"), api.chunks["https://upload.example/chunk/0"])
	require.Equal(t, []byte("efgh"), api.chunks["https://upload.example/chunk/1"])
	require.Equal(t, []byte("ijkl"), api.chunks["https://upload.example/chunk/2"])

	require.Len(t, api.finalized, 1)
	require.Equal(t, []string{
		"etag-https://upload.example/chunk/0",
		"etag-https://upload.example/chunk/1",
		"etag-https://upload.example/chunk/2",
	}, api.finalized[0])
}

func TestUploadVideoRejectsOutOfRangeChunk(t *testing.T) {
	api := newFakeLinkedInAPI()
	api.assets["https://cdn.example/clip.mp4"] = []byte("abcd")
	api.videoSession = &social.UploadSession{
		VideoURN: "urn:li:video:1",
		Chunks: []social.UploadChunk{
			{UploadURL: "https://upload.example/chunk/0", FirstByte: 0, LastByte: 7},
		},
	}
	uploader := newTestUploader(api, 0)

	_, err := uploader.UploadVideo(context.Background(), "token", "https://cdn.example/clip.mp4")
	var shareErr *social.ShareError
	require.ErrorAs(t, err, &shareErr)
	require.Empty(t, api.chunks)
	require.Empty(t, api.finalized)
}

func TestUploadVideoFinalizeRetriesThenFails(t *testing.T) {
	api := newFakeLinkedInAPI()
	api.assets["https://cdn.example/clip.mp4"] = []byte("abcd")
	api.videoSession = &social.UploadSession{
		VideoURN: "urn:li:video:1",
		Chunks: []social.UploadChunk{
			{UploadURL: "https://upload.example/chunk/0", FirstByte: 0, LastByte: 3},
		},
	}
	api.finalizeErr = social.NewShareError(social.NetworkLinkedIn, "finalize video upload", 500, "not ready")
	uploader := newTestUploader(api, 0)
	var delays []time.Duration
	uploader.sleep = func(d time.Duration) { delays = append(delays, d) }

	_, err := uploader.UploadVideo(context.Background(), "token", "https://cdn.example/clip.mp4")
	var shareErr *social.ShareError
	require.ErrorAs(t, err, &shareErr)
	require.Len(t, api.finalized, finalizeRetries+1)
	require.Equal(t, []time.Duration{
		backoffDelay(3),
		backoffDelay(2),
		backoffDelay(1),
	}, delays)
}

func TestUploadVideoFinalizeRecovers(t *testing.T) {
	api := newFakeLinkedInAPI()
	api.assets["https://cdn.example/clip.mp4"] = []byte("abcd")
	api.videoSession = &social.UploadSession{
		VideoURN: "urn:li:video:1",
		Chunks: []social.UploadChunk{
			{UploadURL: "https://upload.example/chunk/0", FirstByte: 0, LastByte: 3},
		},
	}
	api.finalizeErr = social.NewShareError(social.NetworkLinkedIn, "finalize video upload", 500, "not ready")
	api.finalizeFailures = 2
	uploader := newTestUploader(api, 0)
	uploader.sleep = func(time.Duration) {}

	urn, err := uploader.UploadVideo(context.Background(), "token", "https://cdn.example/clip.mp4")
	require.NoError(t, err)
	require.Equal(t, "urn:li:video:1", urn)
	require.Len(t, api.finalized, 3)
}

func TestUploadVideoWaitsGracePeriod(t *testing.T) {
	api := newFakeLinkedInAPI()
	api.assets["https://cdn.example/clip.mp4"] = []byte("abcd")
	api.videoSession = &social.UploadSession{
		VideoURN: "urn:li:video:1",
		Chunks: []social.UploadChunk{
			{UploadURL: "https://upload.example/chunk/0", FirstByte: 0, LastByte: 3},
		},
	}
	uploader := newTestUploader(api, 40*time.Millisecond)
	var delays []time.Duration
	uploader.sleep = func(d time.Duration) { delays = append(delays, d) }

	_, err := uploader.UploadVideo(context.Background(), "token", "https://cdn.example/clip.mp4")
	require.NoError(t, err)
	require.Equal(t, []time.Duration{40 * time.Millisecond}, delays)
}

func TestBackoffDelayShrinksWithRemainingRetries(t *testing.T) {
	require.Equal(t, 5001*time.Millisecond, backoffDelay(10))
	require.Equal(t, 1501*time.Millisecond, backoffDelay(3))
	require.Greater(t, backoffDelay(2), backoffDelay(1))
}

// ---- Test harness and fakes ----

func newTestUploader(api *fakeLinkedInAPI, gracePeriod time.Duration) *AssetUploader {
	uploader := NewAssetUploader(api, "urn:li:person:owner", gracePeriod, zap.NewNop())
	uploader.sleep = func(time.Duration) {}
	return uploader
}

type fakeLinkedInAPI struct {
	mu sync.Mutex

	assets      map[string][]byte
	downloadErr error

	initImage    *linkedin.InitializedUpload
	initDocument *linkedin.InitializedUpload
	videoSession *social.UploadSession
	initErr      error

	uploaded   map[string][]byte
	chunks     map[string][]byte
	chunkDelay map[string]time.Duration
	chunkErr   error

	finalizeErr      error
	finalizeFailures int
	finalized        [][]string

	postURN   string
	postErr   error
	payloads  []map[string]any
	commentFn func(text string) error
	comments  []string
}

func newFakeLinkedInAPI() *fakeLinkedInAPI {
	return &fakeLinkedInAPI{
		assets:   map[string][]byte{},
		uploaded: map[string][]byte{},
		chunks:   map[string][]byte{},
		postURN:  "urn:li:share:123",
	}
}

func (f *fakeLinkedInAPI) DownloadAsset(_ context.Context, sourceURL string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	data, ok := f.assets[sourceURL]
	if !ok {
		return nil, fmt.Errorf("no asset for %s", sourceURL)
	}
	return data, nil
}

func (f *fakeLinkedInAPI) InitializeImageUpload(context.Context, string, string) (*linkedin.InitializedUpload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		return nil, f.initErr
	}
	return f.initImage, nil
}

func (f *fakeLinkedInAPI) InitializeDocumentUpload(context.Context, string, string) (*linkedin.InitializedUpload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		return nil, f.initErr
	}
	return f.initDocument, nil
}

func (f *fakeLinkedInAPI) InitializeVideoUpload(context.Context, string, string, int64) (*social.UploadSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		return nil, f.initErr
	}
	session := *f.videoSession
	return &session, nil
}

func (f *fakeLinkedInAPI) UploadAsset(_ context.Context, uploadURL, _ string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded[uploadURL] = data
	return nil
}

func (f *fakeLinkedInAPI) UploadChunk(_ context.Context, uploadURL, _ string, data []byte) (string, error) {
	f.mu.Lock()
	delay := f.chunkDelay[uploadURL]
	chunkErr := f.chunkErr
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if chunkErr != nil {
		return "", chunkErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks[uploadURL] = data
	return "etag-" + uploadURL, nil
}

func (f *fakeLinkedInAPI) FinalizeVideo(_ context.Context, _ string, _ *social.UploadSession, etags []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	recorded := make([]string, len(etags))
	copy(recorded, etags)
	f.finalized = append(f.finalized, recorded)
	if f.finalizeErr != nil {
		if f.finalizeFailures == 0 {
			return f.finalizeErr
		}
		if len(f.finalized) <= f.finalizeFailures {
			return f.finalizeErr
		}
	}
	return nil
}

func (f *fakeLinkedInAPI) CreatePost(_ context.Context, _ string, payload map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	if f.postErr != nil {
		return "", f.postErr
	}
	return f.postURN, nil
}

func (f *fakeLinkedInAPI) CreateComment(_ context.Context, _, _, _, text string) error {
	f.mu.Lock()
	fn := f.commentFn
	f.mu.Unlock()

	var err error
	if fn != nil {
		err = fn(text)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		f.comments = append(f.comments, text)
	}
	return err
}

func (f *fakeLinkedInAPI) commentsSnapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.comments))
	copy(out, f.comments)
	return out
}

var _ LinkedInAPI = (*fakeLinkedInAPI)(nil)
