package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/jonwraymond/ragcache/answer"
	"github.com/jonwraymond/ragcache/resilience"
)

// Chroma defaults.
const (
	DefaultChromaBaseURL    = "http://localhost:8000"
	DefaultChromaTenant     = "default_tenant"
	DefaultChromaDatabase   = "default_database"
	DefaultChromaCollection = "medical_kb"
)

// ChromaConfig configures a Chroma v2 HTTP server.
type ChromaConfig struct {
	BaseURL    string `yaml:"base_url"`
	Tenant     string `yaml:"tenant"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
	// Token is sent as X-Chroma-Token when set.
	Token string `yaml:"token"`

	resilience.Policy `yaml:",inline"`
}

// ChromaRetriever embeds the query and asks Chroma for the nearest documents.
//
// Documents are joined with blank lines into the retrieval context. Each
// source takes its identifiers from the "source", "id" and "title" metadata
// keys; the full metadata map is kept on the Source.
type ChromaRetriever struct {
	cfg      ChromaConfig
	embedder Embedder
	client   *httpClient

	mu           sync.Mutex
	collectionID string
}

// NewChromaRetriever creates a retriever. Tenant and database default to
// Chroma's defaults.
func NewChromaRetriever(cfg ChromaConfig, embedder Embedder, opts ...Option) (*ChromaRetriever, error) {
	if embedder == nil {
		return nil, ErrNilEmbedder
	}
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if cfg.Collection == "" {
		return nil, ErrMissingCollection
	}
	if cfg.Tenant == "" {
		cfg.Tenant = DefaultChromaTenant
	}
	if cfg.Database == "" {
		cfg.Database = DefaultChromaDatabase
	}
	header := make(http.Header)
	if cfg.Token != "" {
		header.Set("X-Chroma-Token", cfg.Token)
	}
	return &ChromaRetriever{
		cfg:      cfg,
		embedder: embedder,
		client:   newHTTPClient("chroma", cfg.BaseURL, header, applyOptions(cfg.Policy, opts)),
	}, nil
}

// Name identifies the retriever in telemetry.
func (r *ChromaRetriever) Name() string { return "chroma:" + r.cfg.Collection }

type chromaQuery struct {
	QueryEmbeddings [][]float32 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
	Include         []string    `json:"include"`
}

type chromaQueryResult struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]*string        `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
}

// Retrieve returns up to k documents for query.
func (r *ChromaRetriever) Retrieve(ctx context.Context, query string, k int) (answer.Retrieval, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return answer.Retrieval{}, fmt.Errorf("embed query: %w", err)
	}
	id, err := r.resolveCollection(ctx)
	if err != nil {
		return answer.Retrieval{}, err
	}

	var res chromaQueryResult
	req := chromaQuery{
		QueryEmbeddings: [][]float32{vec},
		NResults:        k,
		Include:         []string{"documents", "metadatas"},
	}
	if err := r.client.call(ctx, http.MethodPost, r.collectionPath(id)+"/query", req, &res); err != nil {
		return answer.Retrieval{}, err
	}
	return toRetrieval(res), nil
}

func toRetrieval(res chromaQueryResult) answer.Retrieval {
	var out answer.Retrieval
	var docs []*string
	if len(res.Documents) > 0 {
		docs = res.Documents[0]
	}
	var metas []map[string]any
	if len(res.Metadatas) > 0 {
		metas = res.Metadatas[0]
	}

	texts := make([]string, 0, len(docs))
	for _, d := range docs {
		if d != nil && *d != "" {
			texts = append(texts, *d)
		}
	}
	out.Context = strings.Join(texts, "\n\n")

	out.Sources = make([]answer.Source, 0, len(metas))
	for _, m := range metas {
		out.Sources = append(out.Sources, answer.Source{
			ID:       metaString(m, "id"),
			Source:   metaString(m, "source"),
			Title:    metaString(m, "title"),
			Metadata: m,
		})
	}
	return out
}

func metaString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Ping calls the Chroma heartbeat endpoint.
func (r *ChromaRetriever) Ping(ctx context.Context) error {
	return r.client.roundTrip(ctx, http.MethodGet, "/api/v2/heartbeat", nil, nil)
}

// resolveCollection looks the collection ID up by name once; failures are
// not remembered.
func (r *ChromaRetriever) resolveCollection(ctx context.Context) (string, error) {
	r.mu.Lock()
	id := r.collectionID
	r.mu.Unlock()
	if id != "" {
		return id, nil
	}

	var coll struct {
		ID string `json:"id"`
	}
	if err := r.client.call(ctx, http.MethodGet, r.collectionPath(r.cfg.Collection), nil, &coll); err != nil {
		return "", err
	}
	if coll.ID == "" {
		return "", fmt.Errorf("backend: chroma collection %q has no id", r.cfg.Collection)
	}

	r.mu.Lock()
	r.collectionID = coll.ID
	r.mu.Unlock()
	return coll.ID, nil
}

func (r *ChromaRetriever) collectionPath(nameOrID string) string {
	return "/api/v2/tenants/" + url.PathEscape(r.cfg.Tenant) +
		"/databases/" + url.PathEscape(r.cfg.Database) +
		"/collections/" + url.PathEscape(nameOrID)
}
