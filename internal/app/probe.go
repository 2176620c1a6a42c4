package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"wallet-x-search/internal/input"
	"wallet-x-search/internal/service"
)

// Probe searches a single wallet and prints the verdict as JSON. Nothing is
// persisted.
func (a *App) Probe(ctx context.Context, wallet string, out io.Writer) error {
	if err := a.Config.RequireCredentials(); err != nil {
		return err
	}
	wallet = strings.TrimSpace(wallet)
	if !input.IsValidWallet(wallet) {
		return errors.New("not a valid wallet address")
	}

	ctx, cancel := signalContext(ctx)
	defer cancel()

	verdict := a.newOrchestrator().SearchWallet(ctx, wallet)

	// probe output keeps the full raw response
	record := service.NewResultRecord(verdict, len(verdict.RawText)+1)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(record); err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}
	return nil
}
