package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"wallet-x-search/internal/extract"
	"wallet-x-search/internal/model"
)

// ErrHandleNotParsable marks a response with no recognisable handle.
var ErrHandleNotParsable = errors.New("handle not parsable")

// OwnershipResult is the ownership analysis outcome.
type OwnershipResult struct {
	Handle        string
	Confidence    model.Confidence
	HasConfidence bool
	RawText       string
	Err           error
}

// Ownership asks who posted the wallet and how likely they own it.
type Ownership struct {
	caller caller
}

// NewOwnership constructs the ownership agent.
func NewOwnership(client SearchClient, gate Gate, opts Options, logger zerolog.Logger) *Ownership {
	return &Ownership{caller: newCaller("ownership", client, gate, opts, logger)}
}

// OwnershipQuery builds the attribution prompt for wallet.
func OwnershipQuery(wallet string) string {
	return fmt.Sprintf(`Search X for all posts containing the exact phrase "%s".

Analyze the context of each post to determine:
1. Who posted it (username/handle)
2. Whether this wallet address belongs to that user (confidence level: high, medium, low, or none)

Confidence level guidelines:
- "High": Clear ownership (user's own post in airdrop thread, wallet sharing, profile bio, explicit ownership statements)
- "Medium": Strong indication (user sharing their wallet for donations, trading, or in context of their activity)
- "Low": Weak indication (user just mentioned or quoted it, minimal context)
- "None": Very weak or no indication of ownership

Return the username and confidence level in this format:
Username: @handle
Confidence: [High|Medium|Low|None]

If multiple posts exist, analyze all of them and provide the highest confidence level with the associated username.`, wallet)
}

// Analyze runs the ownership query for wallet. Parse failures are final and
// are not retried.
func (o *Ownership) Analyze(ctx context.Context, wallet string) OwnershipResult {
	res := o.caller.call(ctx, wallet, OwnershipQuery(wallet))
	if res.Err != nil {
		return OwnershipResult{Err: res.Err}
	}

	confidence, hasConfidence := extract.Confidence(res.Text)
	handle, ok := extract.Handle(res.Text)
	if !ok {
		o.caller.logger.Warn().Str("wallet", short(wallet)).Msg("could not parse handle from response")
		return OwnershipResult{
			Confidence:    confidence,
			HasConfidence: hasConfidence,
			RawText:       res.Text,
			Err:           ErrHandleNotParsable,
		}
	}

	if !hasConfidence {
		confidence = model.ConfidenceMedium
	}
	return OwnershipResult{
		Handle:        handle,
		Confidence:    confidence,
		HasConfidence: true,
		RawText:       res.Text,
	}
}
