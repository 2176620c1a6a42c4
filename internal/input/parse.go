// Package input turns pasted text, files and URLs into a de-duplicated list
// of wallet addresses.
package input

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

// Format is a detected input layout.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatText Format = "text"
)

// DefaultWalletColumn is the CSV header looked up first.
const DefaultWalletColumn = "wallet_address"

var (
	solanaPattern  = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
	bitcoinPattern = regexp.MustCompile(`^(1|3|bc1)[a-zA-HJ-NP-Z0-9]{25,62}$`)
	genericPattern = regexp.MustCompile(`^[a-zA-Z0-9]{20,100}$`)

	objectWalletKeys = []string{"wallet", "wallet_address", "walletAddress", "address"}
	wrapperKeys      = []string{"wallets", "wallet_addresses", "walletAddresses", "addresses", "data"}
	csvColumnNames   = []string{"wallet", "address", "wallet_address", "walletaddress"}
)

// IsValidWallet performs a shape check for EVM, Solana, Bitcoin and other
// alphanumeric chain addresses.
func IsValidWallet(address string) bool {
	if len(address) < 10 {
		return false
	}
	if strings.HasPrefix(address, "0x") && common.IsHexAddress(address) {
		return true
	}
	if solanaPattern.MatchString(address) {
		if decoded, err := base58.Decode(address); err == nil && len(decoded) == 32 {
			return true
		}
	}
	if bitcoinPattern.MatchString(address) {
		return true
	}
	return genericPattern.MatchString(address)
}

// DetectFormat guesses whether content is JSON, CSV or one address per line.
func DetectFormat(content string) Format {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "[") || strings.HasPrefix(content, "{") {
		if json.Valid([]byte(content)) {
			return FormatJSON
		}
	}

	lines := strings.Split(content, "\n")
	if len(lines) > 1 && strings.Contains(lines[0], ",") {
		header := strings.ToLower(lines[0])
		for _, word := range []string{"wallet", "address", "id"} {
			if strings.Contains(header, word) {
				return FormatCSV
			}
		}
		if strings.Contains(lines[1], ",") {
			return FormatCSV
		}
	}
	return FormatText
}

// Parse dispatches content to the parser for its detected format.
func Parse(content, walletColumn string) ([]string, error) {
	switch DetectFormat(content) {
	case FormatJSON:
		return ParseJSON(content)
	case FormatCSV:
		return ParseCSV(content, walletColumn)
	default:
		return ParseText(content), nil
	}
}

// ParseText reads one address per line.
func ParseText(content string) []string {
	var wallets []string
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		wallet := strings.TrimSpace(line)
		if wallet != "" && IsValidWallet(wallet) {
			wallets = append(wallets, wallet)
		}
	}
	return wallets
}

// ParseCSV extracts addresses from the wallet column, falling back to the
// first column when no header looks like one.
func ParseCSV(content, walletColumn string) ([]string, error) {
	if walletColumn == "" {
		walletColumn = DefaultWalletColumn
	}

	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	col := resolveColumn(header, walletColumn)

	var wallets []string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		if col >= len(row) {
			continue
		}
		wallet := strings.TrimSpace(row[col])
		if wallet != "" && IsValidWallet(wallet) {
			wallets = append(wallets, wallet)
		}
	}
	return wallets, nil
}

func resolveColumn(header []string, walletColumn string) int {
	for i, field := range header {
		lower := strings.ToLower(strings.TrimSpace(field))
		if lower == strings.ToLower(walletColumn) {
			return i
		}
		if strings.Contains(lower, "wallet") && strings.Contains(lower, "address") {
			return i
		}
		for _, name := range csvColumnNames {
			if lower == name {
				return i
			}
		}
	}
	return 0
}

// ParseJSON accepts an array of strings or objects, or an object wrapping
// such an array under a known key.
func ParseJSON(content string) ([]string, error) {
	var data any
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return nil, fmt.Errorf("decode json input: %w", err)
	}
	return walletsFromJSON(data), nil
}

func walletsFromJSON(data any) []string {
	switch v := data.(type) {
	case []any:
		var wallets []string
		for _, item := range v {
			if wallet, ok := walletFromItem(item); ok {
				wallets = append(wallets, wallet)
			}
		}
		return wallets
	case map[string]any:
		for _, key := range wrapperKeys {
			if inner, ok := v[key].([]any); ok {
				return walletsFromJSON(inner)
			}
		}
	}
	return nil
}

// walletFromItem reads a string item or the first known wallet key of an object.
func walletFromItem(item any) (string, bool) {
	switch v := item.(type) {
	case string:
		wallet := strings.TrimSpace(v)
		return wallet, IsValidWallet(wallet)
	case map[string]any:
		for _, key := range objectWalletKeys {
			raw, ok := v[key]
			if !ok {
				continue
			}
			wallet := strings.TrimSpace(fmt.Sprint(raw))
			return wallet, IsValidWallet(wallet)
		}
	}
	return "", false
}
