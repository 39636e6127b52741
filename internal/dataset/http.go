package dataset

import (
	"context"
	"fmt"

	"github.com/wonny/salespulse/internal/sales"
	"github.com/wonny/salespulse/pkg/httputil"
)

// HTTPSource downloads the CSV dataset from a URL
type HTTPSource struct {
	client *httputil.Client
	url    string
}

// NewHTTPSource creates an HTTP CSV source
func NewHTTPSource(client *httputil.Client, url string) *HTTPSource {
	return &HTTPSource{client: client, url: url}
}

// Name implements Source
func (s *HTTPSource) Name() string { return "http:" + s.url }

// Load implements Source
func (s *HTTPSource) Load(ctx context.Context) ([]sales.RawRecord, error) {
	body, err := s.client.Fetch(ctx, s.url)
	if err != nil {
		return nil, fmt.Errorf("fetch dataset: %w", err)
	}
	defer body.Close()

	return ParseCSV(ctx, body)
}
