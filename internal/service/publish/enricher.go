package publish

import (
	"context"

	"go.uber.org/zap"

	"github.com/socialkit/crosspost/internal/adapter/scraper"
	"github.com/socialkit/crosspost/internal/domain/social"
)

// Selector candidates per property. Twitter-card tags outrank Open Graph;
// the bare <title> element is a last resort for the title only.
var (
	titleCandidates = []scraper.Candidate{
		{Selector: `meta[name="twitter:title"]`, Attr: "content", Priority: 1},
		{Selector: `meta[property="og:title"]`, Attr: "content", Priority: 2},
		{Selector: "title", Priority: 3},
	}
	descriptionCandidates = []scraper.Candidate{
		{Selector: `meta[name="twitter:description"]`, Attr: "content", Priority: 1},
		{Selector: `meta[property="og:description"]`, Attr: "content", Priority: 2},
	}
	thumbnailCandidates = []scraper.Candidate{
		{Selector: `meta[name="twitter:image"]`, Attr: "content", Priority: 1},
		{Selector: `meta[property="og:image"]`, Attr: "content", Priority: 2},
	}
)

type documentFetcher interface {
	FetchDocument(ctx context.Context, pageURL string) (*scraper.Document, error)
}

type imageUploader interface {
	UploadImage(ctx context.Context, accessToken, sourceURL string) (string, error)
}

// ArticleEnricher fills in missing article metadata from the linked page.
// Enrichment is best effort and never fails a publish.
type ArticleEnricher struct {
	fetcher  documentFetcher
	uploader imageUploader
	logger   *zap.Logger
}

// NewArticleEnricher wires the enricher.
func NewArticleEnricher(fetcher documentFetcher, uploader imageUploader, logger *zap.Logger) *ArticleEnricher {
	if logger == nil {
		logger = zap.L()
	}
	return &ArticleEnricher{fetcher: fetcher, uploader: uploader, logger: logger}
}

// Enrich resolves an article, scraping title, description and thumbnail when
// missing. A scraped thumbnail is uploaded and replaced by its image URN;
// articles must reference provider-native assets.
func (e *ArticleEnricher) Enrich(ctx context.Context, accessToken string, article social.ArticleMedia) social.ResolvedArticle {
	resolved := social.ResolvedArticle{
		Source:      article.Source,
		Title:       article.Title,
		Description: article.Description,
		Thumbnail:   article.Thumbnail,
	}
	if resolved.Title != "" && resolved.Thumbnail != "" {
		return resolved
	}

	doc, err := e.fetcher.FetchDocument(ctx, article.Source)
	if err != nil {
		e.logger.Info("article scrape skipped", zap.String("source", article.Source), zap.Error(err))
		return resolved
	}

	if resolved.Title == "" {
		resolved.Title = doc.Extract(titleCandidates)
	}
	if resolved.Description == "" {
		resolved.Description = doc.Extract(descriptionCandidates)
	}
	if resolved.Thumbnail == "" {
		if thumbnailURL := doc.Extract(thumbnailCandidates); thumbnailURL != "" {
			urn, err := e.uploader.UploadImage(ctx, accessToken, thumbnailURL)
			if err != nil {
				e.logger.Warn("thumbnail upload failed", zap.String("thumbnail", thumbnailURL), zap.Error(err))
			} else {
				resolved.Thumbnail = urn
			}
		}
	}
	return resolved
}
