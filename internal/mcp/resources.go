package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// PageURIPrefix prefixes page resource URIs. The rest is the
	// path-escaped page title.
	PageURIPrefix = "blockindex://page/"

	// StatusURI is the URI of the index status resource.
	StatusURI = "blockindex://status"
)

// PageURI returns the resource URI of the page titled title.
func PageURI(title string) string {
	return PageURIPrefix + url.PathEscape(title)
}

func (s *Server) registerResources() {
	s.mcp.AddResourceTemplate(
		&mcp.ResourceTemplate{
			Name:        "page",
			URITemplate: PageURIPrefix + "{title}",
			Description: "A page rendered back into its outline",
			MIMEType:    "text/markdown",
		},
		func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.readPage(ctx, req.Params.URI)
		},
	)

	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "status",
			URI:         StatusURI,
			Description: "Index statistics as JSON",
			MIMEType:    "application/json",
		},
		func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.readStatus(ctx)
		},
	)
}

func (s *Server) readPage(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	escaped, ok := strings.CutPrefix(uri, PageURIPrefix)
	if !ok || escaped == "" {
		return nil, NewResourceNotFoundError(uri)
	}
	title, err := url.PathUnescape(escaped)
	if err != nil {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid page uri: %s", uri))
	}

	page, err := s.backend.Page(ctx, title)
	if err != nil {
		return nil, MapError(err)
	}
	if page == nil {
		return nil, NewResourceNotFoundError(uri)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "text/markdown",
			Text:     FormatOutline(page),
		}},
	}, nil
}

func (s *Server) readStatus(ctx context.Context) (*mcp.ReadResourceResult, error) {
	st, err := s.indexStatus(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      StatusURI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
