package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/blockindex/internal/domain"
	"github.com/Aman-CERP/blockindex/internal/engine"
	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
	"github.com/Aman-CERP/blockindex/internal/query"
	"github.com/Aman-CERP/blockindex/internal/store"
	"github.com/Aman-CERP/blockindex/pkg/version"
)

// ServerName is the implementation name announced to clients.
const ServerName = "blockindex"

const (
	maxLimit      = 50
	shutdownGrace = 5 * time.Second
)

// Backend is the part of the engine the server calls.
type Backend interface {
	Root() string
	Search(ctx context.Context, q string, mode engine.SearchMode, limit int) ([]engine.Hit, error)
	PagesForURL(ctx context.Context, url string) ([]store.PageConnection, error)
	LinksForPage(ctx context.Context, title string) (*query.PageLinks, error)
	ReferencesForPage(ctx context.Context, title string) (*query.PageReferences, error)
	Page(ctx context.Context, title string) (*domain.Page, error)
	Status(ctx context.Context) (*engine.Status, error)
}

var _ Backend = (*engine.Engine)(nil)

// Server bridges AI clients with a block index.
type Server struct {
	mcp          *mcp.Server
	backend      Backend
	defaultLimit int
	logger       *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "search_blocks",
		Description: "Search the outline notes. Returns matching blocks with their page title and the chain of parent blocks they sit under. mode=text matches keywords; mode=vector matches meaning when vectors are enabled.",
	},
	{
		Name:        "pages_for_url",
		Description: "List the pages that mention an exact URL, with the blocks it appears on.",
	},
	{
		Name:        "page_links",
		Description: "List every URL on a page together with the page references on the blocks above and below it. Use to see how a link is categorized.",
	},
	{
		Name:        "page_references",
		Description: "List every page reference and tag on a page together with the URLs on the blocks above and below it.",
	},
	{
		Name:        "index_status",
		Description: "Report page, block and file counts, the active search backends and whether live sync is running.",
	},
}

// NewServer creates an MCP server over backend. defaultLimit applies when a
// search names no limit.
func NewServer(backend Backend, defaultLimit int, logger *slog.Logger) (*Server, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if defaultLimit <= 0 {
		defaultLimit = 10
	}

	s := &Server{
		backend:      backend,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: ServerName, Version: version.Version},
		nil,
	)
	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

func (s *Server) registerTools() {
	add := func(name string) *mcp.Tool {
		for _, t := range tools {
			if t.Name == name {
				return &mcp.Tool{Name: t.Name, Description: t.Description}
			}
		}
		panic("unknown tool " + name)
	}

	mcp.AddTool(s.mcp, add("search_blocks"), s.searchBlocksHandler)
	mcp.AddTool(s.mcp, add("pages_for_url"), s.pagesForURLHandler)
	mcp.AddTool(s.mcp, add("page_links"), s.pageLinksHandler)
	mcp.AddTool(s.mcp, add("page_references"), s.pageReferencesHandler)
	mcp.AddTool(s.mcp, add("index_status"), s.indexStatusHandler)

	s.logger.Debug("MCP tools registered", slog.Int("count", len(tools)))
}

func (s *Server) searchBlocksHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchBlocksInput) (
	*mcp.CallToolResult,
	SearchBlocksOutput,
	error,
) {
	q := strings.TrimSpace(input.Query)
	if q == "" {
		return nil, SearchBlocksOutput{}, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	mode := engine.SearchMode(strings.ToLower(input.Mode))
	limit := clampLimit(input.Limit, s.defaultLimit, 1, maxLimit)

	start := time.Now()
	requestID := uuid.NewString()[:8]
	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", q),
		slog.String("mode", string(mode)),
		slog.Int("limit", limit))

	hits, err := s.backend.Search(ctx, q, mode, limit)
	if err != nil {
		s.logger.Error("search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, SearchBlocksOutput{}, MapError(err)
	}
	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(hits)))

	out := SearchBlocksOutput{Results: make([]BlockResult, 0, len(hits))}
	for _, h := range hits {
		out.Results = append(out.Results, BlockResult{
			Page:         h.Title,
			BlockID:      h.BlockID.String(),
			Content:      h.Content,
			Path:         h.Path,
			Score:        h.Score,
			MatchedTerms: h.MatchedTerms,
		})
	}
	return textResult(FormatHits(q, hits)), out, nil
}

func (s *Server) pagesForURLHandler(ctx context.Context, _ *mcp.CallToolRequest, input PagesForURLInput) (
	*mcp.CallToolResult,
	PagesForURLOutput,
	error,
) {
	url := strings.TrimSpace(input.URL)
	if url == "" {
		return nil, PagesForURLOutput{}, NewInvalidParamsError("url parameter is required")
	}

	conns, err := s.backend.PagesForURL(ctx, url)
	if err != nil {
		return nil, PagesForURLOutput{}, MapError(err)
	}

	out := PagesForURLOutput{URL: url, Pages: make([]PageMatch, 0, len(conns))}
	for _, c := range conns {
		out.Pages = append(out.Pages, PageMatch{
			Title:    c.Title,
			PageID:   c.PageID.String(),
			BlockIDs: stringsOf(c.BlockIDs),
		})
	}
	return textResult(FormatConnections(url, conns)), out, nil
}

func (s *Server) pageLinksHandler(ctx context.Context, _ *mcp.CallToolRequest, input PageInput) (
	*mcp.CallToolResult,
	PageLinksOutput,
	error,
) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, PageLinksOutput{}, NewInvalidParamsError("title parameter is required")
	}

	links, err := s.backend.LinksForPage(ctx, title)
	if err != nil {
		return nil, PageLinksOutput{}, MapError(err)
	}

	out := PageLinksOutput{Title: links.Title, Links: make([]LinkResult, 0, len(links.Links))}
	for _, l := range links.Links {
		out.Links = append(out.Links, LinkResult{
			URL:            l.URL.String(),
			BlockID:        l.BlockID.String(),
			AncestorRefs:   stringsOf(l.AncestorRefs),
			DescendantRefs: stringsOf(l.DescendantRefs),
		})
	}
	return textResult(FormatLinks(links)), out, nil
}

func (s *Server) pageReferencesHandler(ctx context.Context, _ *mcp.CallToolRequest, input PageInput) (
	*mcp.CallToolResult,
	PageReferencesOutput,
	error,
) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, PageReferencesOutput{}, NewInvalidParamsError("title parameter is required")
	}

	refs, err := s.backend.ReferencesForPage(ctx, title)
	if err != nil {
		return nil, PageReferencesOutput{}, MapError(err)
	}

	out := PageReferencesOutput{Title: refs.Title, References: make([]ReferenceResult, 0, len(refs.References))}
	for _, r := range refs.References {
		out.References = append(out.References, ReferenceResult{
			Reference:      r.Reference.String(),
			BlockID:        r.BlockID.String(),
			AncestorURLs:   stringsOf(r.AncestorURLs),
			DescendantURLs: stringsOf(r.DescendantURLs),
		})
	}
	return textResult(FormatReferences(refs)), out, nil
}

func (s *Server) indexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out, err := s.indexStatus(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, out, nil
}

func (s *Server) indexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	st, err := s.backend.Status(ctx)
	if err != nil {
		return nil, err
	}
	out := &IndexStatusOutput{
		Graph:           st.Graph,
		Pages:           st.Pages,
		Blocks:          st.Blocks,
		Files:           st.Files,
		Syncing:         st.Syncing,
		TextBackend:     st.TextBackend,
		TextDocs:        st.TextDocs,
		VectorsEnabled:  st.Embedder != "",
		Embedder:        st.Embedder,
		Chunks:          st.Chunks,
		SizeBytes:       st.TotalSize(),
		Inconsistencies: st.Inconsistencies,
	}
	if !st.LastModified.IsZero() {
		out.LastModified = st.LastModified.UTC().Format(time.RFC3339)
	}
	for _, t := range st.Targets {
		if t.State != amerrors.BreakerClosed {
			out.DegradedIndexes = append(out.DegradedIndexes, t.Name)
		}
	}
	return out, nil
}

// Serve runs the server until ctx is done. transport is "stdio" or "http";
// addr is the listen address for http.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("Starting MCP server",
		slog.String("transport", transport),
		slog.String("addr", addr),
		slog.String("graph", s.backend.Root()))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped gracefully")
		return nil
	case "http":
		return s.serveHTTP(ctx, addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, http)", transport)
	}
}

func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("http transport needs a listen address")
	}
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return fmt.Errorf("http transport: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("MCP server stopped gracefully")
	return nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}
