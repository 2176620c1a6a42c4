package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-x-search/internal/config"
	"wallet-x-search/internal/input"
	"wallet-x-search/internal/model"
	"wallet-x-search/internal/service"
	"wallet-x-search/internal/storage"
)

const (
	walletA = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	walletB = "So11111111111111111111111111111111111111112"
)

// fakeXAI answers existence prompts with "true" and ownership prompts with a
// fixed attribution.
func fakeXAI(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		answer := "Username: @alice\nConfidence: High"
		if strings.Contains(string(body), "Respond with only") {
			answer = "true"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": answer}}},
		})
	}))
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		XAI: config.XAIConfig{APIKey: "test", BaseURL: baseURL, RequestTimeout: 5 * time.Second},
		Search: config.SearchConfig{
			Concurrency:     2,
			MaxRetries:      1,
			RetryStep:       time.Millisecond,
			RateWindow:      time.Minute,
			RateMaxRequests: 100,
		},
		Input:      config.InputConfig{WalletColumn: input.DefaultWalletColumn, FetchTimeout: time.Second},
		Checkpoint: config.CheckpointConfig{Backend: "file", Key: "test", Path: filepath.Join(dir, "checkpoint.json"), Interval: 1, Resume: true},
		Output:     config.OutputConfig{Path: filepath.Join(dir, "results.jsonl"), RawTextLimit: 1000},
		Scheduler:  config.SchedulerConfig{Interval: 10 * time.Millisecond},
		Export:     config.ExportConfig{MaxRows: 100},
	}
}

func TestRunEndToEnd(t *testing.T) {
	var calls atomic.Int32
	srv := fakeXAI(t, &calls)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	a := NewApp(cfg, zerolog.Nop())

	err := a.Run(context.Background(), RunOptions{Sources: input.Sources{Addresses: []string{walletA, walletB, walletA}}})
	require.NoError(t, err)
	assert.EqualValues(t, 4, calls.Load())

	data, err := os.ReadFile(cfg.Output.Path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var rec service.ResultRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.True(t, rec.PostExists)
	require.NotNil(t, rec.TwitterHandle)
	assert.Equal(t, "@alice", *rec.TwitterHandle)
	assert.Equal(t, "High", rec.Confidence)

	_, err = storage.NewFileCheckpointStore(cfg.Checkpoint.Path).LoadCheckpoint(context.Background(), "test")
	assert.ErrorIs(t, err, storage.ErrNoCheckpoint)
}

func TestRunRequiresAPIKey(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:0")
	cfg.XAI.APIKey = ""
	err := NewApp(cfg, zerolog.Nop()).Run(context.Background(), RunOptions{Sources: input.Sources{Addresses: []string{walletA}}})
	assert.ErrorIs(t, err, config.ErrMissingAPIKey)
}

func TestRunWithoutWallets(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:0")
	err := NewApp(cfg, zerolog.Nop()).Run(context.Background(), RunOptions{Sources: input.Sources{Addresses: []string{"nope"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no valid wallet addresses")
}

func TestWatchProcessesInBatches(t *testing.T) {
	var calls atomic.Int32
	srv := fakeXAI(t, &calls)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	err := NewApp(cfg, zerolog.Nop()).Watch(context.Background(), RunOptions{
		Sources:    input.Sources{Addresses: []string{walletA, walletB}},
		BatchLimit: 1,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 4, calls.Load())
}

func TestProbePrintsVerdict(t *testing.T) {
	var calls atomic.Int32
	srv := fakeXAI(t, &calls)
	defer srv.Close()

	var out bytes.Buffer
	err := NewApp(testConfig(t, srv.URL), zerolog.Nop()).Probe(context.Background(), walletA, &out)
	require.NoError(t, err)

	var rec service.ResultRecord
	require.NoError(t, json.Unmarshal(out.Bytes(), &rec))
	assert.Equal(t, walletA, rec.Wallet)
	assert.Equal(t, "High", rec.Confidence)
	assert.Contains(t, rec.RawResponse, "Username: @alice")
}

func TestProbeRejectsInvalidWallet(t *testing.T) {
	err := NewApp(testConfig(t, "http://127.0.0.1:0"), zerolog.Nop()).Probe(context.Background(), "bad", io.Discard)
	require.Error(t, err)
}

func TestCommandsRequireDatabase(t *testing.T) {
	a := NewApp(testConfig(t, "http://127.0.0.1:0"), zerolog.Nop())
	ctx := context.Background()

	assert.ErrorContains(t, a.Show(ctx, ShowOptions{Limit: 5}, io.Discard), "database not configured")
	assert.ErrorContains(t, a.Export(ctx, ExportOptions{CSVPath: "x.csv"}), "database not configured")
	assert.ErrorContains(t, a.Rescan(ctx, RescanOptions{DryRun: true}, io.Discard), "database not configured")
	assert.Error(t, a.Export(ctx, ExportOptions{}))
}

func sampleRecords() []storage.VerdictRecord {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []storage.VerdictRecord{
		{Verdict: model.AttributedVerdict("w1", "alice", model.ConfidenceHigh, "raw"), RunID: "r1", UpdatedAt: now},
		{Verdict: model.UnattributedVerdict("w2", model.ConfidenceLow, "raw", "handle not parsable"), RunID: "r1", UpdatedAt: now},
		{Verdict: model.NoPostVerdict("w3", "false", ""), RunID: "r1", UpdatedAt: now},
		{Verdict: model.FailedVerdict("w4", "line one\nline two"), RunID: "r1", UpdatedAt: now},
	}
}

func TestConfidenceDistribution(t *testing.T) {
	d := confidenceDistribution(sampleRecords())
	assert.Equal(t, 2, d.NoPost)
	assert.Equal(t, 1, d.ByConfidence[model.ConfidenceHigh])
	assert.Equal(t, 1, d.ByConfidence[model.ConfidenceLow])
	assert.Equal(t, 2, d.Errored)
}

func TestWriteVerdictsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "verdicts.csv")
	require.NoError(t, writeVerdictsCSV(path, sampleRecords()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"wallet", "post_exists", "twitter_handle", "confidence", "error", "run_id", "completed_at"}, rows[0])
	assert.Equal(t, "@alice", rows[1][2])
	assert.Equal(t, "line one line two", rows[4][4])
}

func TestWriteConfidencePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.png")
	require.NoError(t, writeConfidencePNG(path, sampleRecords()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
}

func TestWriteVerdictTable(t *testing.T) {
	var out bytes.Buffer
	writeVerdictTable(&out, sampleRecords())
	text := out.String()
	assert.Contains(t, text, "Wallet")
	assert.Contains(t, text, "@alice")
	assert.NotContains(t, text, "line one\n")

	out.Reset()
	writeVerdictTable(&out, nil)
	assert.Equal(t, "no verdicts found\n", out.String())
}
