package model

import (
	"fmt"
	"strings"
	"time"
)

// Confidence is the ordered attribution scale None < Low < Medium < High.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceLow
	ConfidenceMedium
	ConfidenceHigh
)

var confidenceNames = [...]string{"None", "Low", "Medium", "High"}

// String returns the canonical capitalised name.
func (c Confidence) String() string {
	if c < ConfidenceNone || c > ConfidenceHigh {
		return fmt.Sprintf("Confidence(%d)", int(c))
	}
	return confidenceNames[c]
}

// Valid reports whether c is one of the four defined levels.
func (c Confidence) Valid() bool {
	return c >= ConfidenceNone && c <= ConfidenceHigh
}

// ParseConfidence maps a level name (case-insensitive) to a Confidence.
func ParseConfidence(s string) (Confidence, error) {
	for i, name := range confidenceNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Confidence(i), nil
		}
	}
	return ConfidenceNone, fmt.Errorf("unknown confidence level %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Confidence) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid confidence %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Confidence) UnmarshalText(b []byte) error {
	parsed, err := ParseConfidence(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Verdict is the outcome of searching one wallet. Values are built through the
// constructors below and passed by value; nothing mutates a Verdict after it
// is returned.
type Verdict struct {
	Wallet      string
	PostExists  bool
	Handle      string
	Confidence  Confidence
	RawText     string
	Error       string
	CompletedAt time.Time
}

// HasHandle reports whether an account was attributed.
func (v Verdict) HasHandle() bool { return v.Handle != "" }

// Degraded reports whether the verdict carries a failure description.
func (v Verdict) Degraded() bool { return v.Error != "" }

// NoPostVerdict records that no matching post was found. errMsg is set when
// the existence check itself failed.
func NoPostVerdict(wallet, raw, errMsg string) Verdict {
	return Verdict{
		Wallet:      wallet,
		Confidence:  ConfidenceNone,
		RawText:     raw,
		Error:       errMsg,
		CompletedAt: time.Now().UTC(),
	}
}

// AttributedVerdict records a post attributed to handle. The handle is stored
// with a leading "@".
func AttributedVerdict(wallet, handle string, confidence Confidence, raw string) Verdict {
	return Verdict{
		Wallet:      wallet,
		PostExists:  true,
		Handle:      "@" + strings.TrimPrefix(handle, "@"),
		Confidence:  confidence,
		RawText:     raw,
		CompletedAt: time.Now().UTC(),
	}
}

// UnattributedVerdict records a post whose author could not be determined.
func UnattributedVerdict(wallet string, confidence Confidence, raw, errMsg string) Verdict {
	if errMsg == "" {
		errMsg = "could not determine ownership"
	}
	return Verdict{
		Wallet:      wallet,
		PostExists:  true,
		Confidence:  confidence,
		RawText:     raw,
		Error:       errMsg,
		CompletedAt: time.Now().UTC(),
	}
}

// FailedVerdict is produced when the pipeline for a wallet broke down entirely.
func FailedVerdict(wallet, errMsg string) Verdict {
	return Verdict{
		Wallet:      wallet,
		Confidence:  ConfidenceNone,
		Error:       errMsg,
		CompletedAt: time.Now().UTC(),
	}
}
