package keyword

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/entscheid/internal/models"
	"github.com/hyperjump/entscheid/pkg/utils"
)

const (
	analyzerName = "decision_text"
	docType      = "decision"
)

// bleveDoc is the indexed projection of a decision.
type bleveDoc struct {
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	FullText   string   `json:"full_text"`
	LegalAreas []string `json:"legal_areas"`
	CourtLevel string   `json:"court_level"`
	Canton     string   `json:"canton"`
	Language   string   `json:"language"`
}

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

var _ Index = (*BleveIndex)(nil)

// NewBleveIndex creates or opens a Bleve index at path. An empty path keeps the index
// in memory; it is then rebuilt from the decision store on start.
// If you change the index mapping in code, remove the index directory to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im, err := buildMapping()
	if err != nil {
		return nil, err
	}

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// buildMapping indexes text with a unicode tokenizer and lowercasing only. No stop
// words and no stemming, so provision references like "Art. 41 OR" stay intact
// across German, French and Italian text.
func buildMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	if err := im.AddCustomAnalyzer(analyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, fmt.Errorf("failed to register analyzer: %w", err)
	}

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = analyzerName
	textFieldMapping.IncludeTermVectors = true
	for _, f := range []string{"title", "summary", "full_text", "legal_areas"} {
		docMapping.AddFieldMappingsAt(f, textFieldMapping)
	}
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	for _, f := range []string{"court_level", "canton", "language"} {
		docMapping.AddFieldMappingsAt(f, keywordFieldMapping)
	}
	im.AddDocumentMapping(docType, docMapping)
	im.DefaultType = docType
	im.DefaultMapping = docMapping
	im.DefaultAnalyzer = analyzerName
	return im, nil
}

// Index adds or replaces the decision in the index.
func (b *BleveIndex) Index(ctx context.Context, d *models.Decision) error {
	return b.index.Index(d.ID, bleveDoc{
		Title:      d.Title,
		Summary:    d.Summary,
		FullText:   d.FullText,
		LegalAreas: d.LegalAreas,
		CourtLevel: string(d.CourtLevel),
		Canton:     string(d.Canton),
		Language:   string(d.Language),
	})
}

// Search runs a match query over the text fields and returns up to limit hits.
// Title matches are weighted by opts.TitleBoost and added to the body score; for
// multi-term queries the merged score is scaled by the squared share of query terms
// a decision matches, so decisions covering every term rank first.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Hit, error) {
	terms := utils.Tokenize(query, 1)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}
	titleBoost := 1.0
	if opts != nil && opts.TitleBoost > 0 {
		titleBoost = opts.TitleBoost
	}
	reqSize := limit * 2
	if reqSize < 50 {
		reqSize = 50
	}

	titleScores, err := b.fieldScores(ctx, query, []string{"title"}, reqSize, opts)
	if err != nil {
		return nil, fmt.Errorf("Bleve title search failed: %w", err)
	}
	bodyScores, err := b.fieldScores(ctx, query, []string{"summary", "full_text", "legal_areas"}, reqSize, opts)
	if err != nil {
		return nil, fmt.Errorf("Bleve body search failed: %w", err)
	}

	coverage := map[string]int{}
	if len(terms) > 1 {
		for _, term := range terms {
			ids, err := b.fieldScores(ctx, term, nil, reqSize, opts)
			if err != nil {
				continue
			}
			for id := range ids {
				coverage[id]++
			}
		}
	}

	scores := make(map[string]float64, len(titleScores)+len(bodyScores))
	for id, s := range titleScores {
		scores[id] += s * titleBoost
	}
	for id, s := range bodyScores {
		scores[id] += s
	}
	hits := make([]Hit, 0, len(scores))
	for id, s := range scores {
		if len(terms) > 1 {
			matched := coverage[id]
			if matched == 0 {
				matched = 1
			}
			c := float64(matched) / float64(len(terms))
			s *= c * c
		}
		hits = append(hits, Hit{ID: id, Score: s})
	}
	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// fieldScores runs a match query restricted to fields (all text fields when nil)
// and the filters of opts, returning score per id.
func (b *BleveIndex) fieldScores(ctx context.Context, text string, fields []string, size int, opts *SearchOptions) (map[string]float64, error) {
	var q blevequery.Query
	if len(fields) == 0 {
		q = bleve.NewMatchQuery(text)
	} else {
		parts := make([]blevequery.Query, 0, len(fields))
		for _, f := range fields {
			mq := bleve.NewMatchQuery(text)
			mq.SetField(f)
			parts = append(parts, mq)
		}
		q = bleve.NewDisjunctionQuery(parts...)
	}
	q = withFilters(q, opts)

	req := bleve.NewSearchRequest(q)
	req.Size = size
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(res.Hits))
	for _, hit := range res.Hits {
		out[hit.ID] = hit.Score
	}
	return out, nil
}

func withFilters(q blevequery.Query, opts *SearchOptions) blevequery.Query {
	if opts == nil {
		return q
	}
	must := []blevequery.Query{q}
	add := func(field, value string) {
		if value == "" {
			return
		}
		tq := bleve.NewTermQuery(value)
		tq.SetField(field)
		must = append(must, tq)
	}
	if opts.CourtLevel.Valid() {
		add("court_level", string(opts.CourtLevel))
	}
	add("canton", string(opts.Canton))
	add("language", string(opts.Language))
	if len(must) == 1 {
		return q
	}
	return bleve.NewConjunctionQuery(must...)
}

// SearchPhrase returns decisions whose summary or full text contains phrase with its
// terms adjacent and in order.
func (b *BleveIndex) SearchPhrase(ctx context.Context, phrase string, limit int) ([]Hit, error) {
	if strings.TrimSpace(phrase) == "" || limit <= 0 {
		return nil, nil
	}
	parts := make([]blevequery.Query, 0, 2)
	for _, f := range []string{"summary", "full_text"} {
		pq := bleve.NewMatchPhraseQuery(phrase)
		pq.SetField(f)
		parts = append(parts, pq)
	}
	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(parts...))
	req.Size = limit
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve phrase search failed: %w", err)
	}
	hits := make([]Hit, len(res.Hits))
	for i, h := range res.Hits {
		hits[i] = Hit{ID: h.ID, Score: h.Score}
	}
	return hits, nil
}

func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}

// Delete removes a decision from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// DocCount returns the total number of decisions in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}
