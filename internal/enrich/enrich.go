// Package enrich looks up captured artifact hashes against an external
// scanner and records the outcome on the artifact row. Only the hash ever
// leaves the host; payloads stay in the vault.
package enrich

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"decoyftp/internal/config"
	"decoyftp/internal/honeypot"
	"decoyftp/internal/model"
)

// Store is the slice of the telemetry store the scanner needs.
type Store interface {
	ArtifactsWithoutScanResult(limit int) ([]model.Artifact, error)
	SetArtifactScanResult(hash, result string) error
}

// ResultNotFound is stored when the scanner has never seen the hash, so
// the artifact is not re-queried on the next run.
const ResultNotFound = "not found"

// Scanner queries the VirusTotal file API for artifact hashes. One Run
// processes a bounded slice of unscanned artifacts and stops early when
// the API reports its rate limit.
type Scanner struct {
	client    *http.Client
	apiKey    string
	hashURL   string
	resultURL string
	logger    honeypot.Logger
}

func NewScanner(cfg config.EnrichmentConfig, logger honeypot.Logger) *Scanner {
	return &Scanner{
		client:    &http.Client{Timeout: 30 * time.Second},
		apiKey:    cfg.APIKey,
		hashURL:   cfg.HashURL,
		resultURL: cfg.ResultURL,
		logger:    logger,
	}
}

// Stats summarizes one enrichment run.
type Stats struct {
	Scanned     int
	Found       int
	NotFound    int
	RateLimited bool
}

// Run enriches up to limit unscanned artifacts. A rate-limit response
// stops the run without error; already-recorded outcomes are kept.
func (s *Scanner) Run(ctx context.Context, store Store, limit int) (*Stats, error) {
	artifacts, err := store.ArtifactsWithoutScanResult(limit)
	if err != nil {
		return nil, fmt.Errorf("listing unscanned artifacts: %w", err)
	}

	stats := &Stats{}
	for _, art := range artifacts {
		result, rateLimited, err := s.lookup(ctx, art.Hash)
		if err != nil {
			return stats, fmt.Errorf("looking up %s: %w", art.Hash, err)
		}
		if rateLimited {
			s.logger.Info("scanner rate limit reached, stopping run")
			stats.RateLimited = true
			return stats, nil
		}
		if err := store.SetArtifactScanResult(art.Hash, result); err != nil {
			return stats, fmt.Errorf("recording scan result for %s: %w", art.Hash, err)
		}
		stats.Scanned++
		if result == ResultNotFound {
			stats.NotFound++
			s.logger.Info("artifact unknown to scanner", "hash", art.Hash)
		} else {
			stats.Found++
			s.logger.Info("artifact known to scanner", "hash", art.Hash, "result", result)
		}
	}
	return stats, nil
}

// lookup queries one hash. A 200 yields a link to the scanner's report,
// any other non-429 status is treated as not found.
func (s *Scanner) lookup(ctx context.Context, hash string) (result string, rateLimited bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.hashURL+hash, nil)
	if err != nil {
		return "", false, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("x-apikey", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("querying scanner: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return fmt.Sprintf("%s/%s/details", s.resultURL, hash), false, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", true, nil
	default:
		return ResultNotFound, false, nil
	}
}
