package input

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Sources are the ways wallets can be supplied; all of them are combined.
type Sources struct {
	Addresses []string
	Text      string
	// File is a local path or an http(s) URL.
	File         string
	WalletColumn string
}

// Collector gathers wallets from Sources.
type Collector struct {
	client *http.Client
	logger zerolog.Logger
}

// NewCollector builds a Collector whose URL fetches time out after timeout.
func NewCollector(timeout time.Duration, logger zerolog.Logger) *Collector {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Collector{
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "input").Logger(),
	}
}

// Collect returns the valid wallets from all sources in first-seen order
// without duplicates.
func (c *Collector) Collect(ctx context.Context, src Sources) ([]string, error) {
	var wallets []string

	for _, addr := range src.Addresses {
		addr = strings.TrimSpace(addr)
		if IsValidWallet(addr) {
			wallets = append(wallets, addr)
		}
	}

	if strings.TrimSpace(src.Text) != "" {
		parsed, err := Parse(src.Text, src.WalletColumn)
		if err != nil {
			return nil, fmt.Errorf("parse wallet text: %w", err)
		}
		wallets = append(wallets, parsed...)
	}

	if src.File != "" {
		content, err := c.read(ctx, src.File)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch or parse input file: %w", err)
		}
		parsed, err := Parse(content, src.WalletColumn)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch or parse input file: %w", err)
		}
		c.logger.Debug().Str("file", src.File).Str("format", string(DetectFormat(content))).Int("wallets", len(parsed)).Msg("input file parsed")
		wallets = append(wallets, parsed...)
	}

	return Dedupe(wallets), nil
}

func (c *Collector) read(ctx context.Context, location string) (string, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		data, err := os.ReadFile(location)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: unexpected status %d", location, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Dedupe removes repeated wallets, keeping the first occurrence.
func Dedupe(wallets []string) []string {
	seen := make(map[string]struct{}, len(wallets))
	out := make([]string, 0, len(wallets))
	for _, w := range wallets {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
