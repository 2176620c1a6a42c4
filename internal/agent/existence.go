package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ExistenceResult is the existence check outcome. Err is set only when the
// service could not be reached within the retry budget.
type ExistenceResult struct {
	PostExists bool
	RawText    string
	Err        error
}

// Existence asks whether any post contains the wallet address.
type Existence struct {
	caller caller
}

// NewExistence constructs the existence agent.
func NewExistence(client SearchClient, gate Gate, opts Options, logger zerolog.Logger) *Existence {
	return &Existence{caller: newCaller("existence", client, gate, opts, logger)}
}

// ExistenceQuery builds the yes/no search prompt for wallet.
func ExistenceQuery(wallet string) string {
	return fmt.Sprintf(
		`Search X for any posts containing the exact phrase "%s". `+
			`Respond with only "true" if any post exists, or "false" if no posts are found. `+
			`Do not provide any other information.`, wallet)
}

// Check runs the existence query for wallet.
func (e *Existence) Check(ctx context.Context, wallet string) ExistenceResult {
	res := e.caller.call(ctx, wallet, ExistenceQuery(wallet))
	if res.Err != nil {
		return ExistenceResult{RawText: "Error: " + res.Err.Error(), Err: res.Err}
	}

	exists, ambiguous := ParseExistence(res.Text)
	if ambiguous {
		e.caller.logger.Warn().Str("wallet", short(wallet)).Msg("ambiguous existence response, defaulting to false")
	}
	return ExistenceResult{PostExists: exists, RawText: strings.TrimSpace(res.Text)}
}

// ParseExistence interprets a true/false answer. Anything that is not clearly
// "true" counts as false.
func ParseExistence(text string) (exists bool, ambiguous bool) {
	content := strings.ToLower(strings.TrimSpace(text))
	hasTrue := strings.Contains(content, "true")
	hasFalse := strings.Contains(content, "false")
	switch {
	case hasTrue && !hasFalse:
		return true, false
	case hasFalse:
		return false, false
	default:
		return false, true
	}
}
