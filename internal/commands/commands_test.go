package commands_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momosync/momosync/internal/commands"
	"github.com/momosync/momosync/internal/ingest"
	"github.com/momosync/momosync/pkg/api"
	"github.com/momosync/momosync/pkg/sms"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := commands.NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))

	err := cmd.Execute()
	return out.String(), err
}

func TestParse_FromArgs(t *testing.T) {
	out, err := execute(t, "", "parse", "MTN MoMo: You have received UGX 150,000 from John Doe. Ref: ABC123")
	require.NoError(t, err)

	for _, want := range []string{"MTN", "Cash In", "UGX 150,000", "John Doe", "ABC123"} {
		assert.Contains(t, out, want)
	}
}

func TestParse_FromStdinWithPhone(t *testing.T) {
	out, err := execute(t, "Airtel Money: Sent UGX 5,000 to 0772123456.\n", "parse", "--sender", "AirtelMoney")
	require.NoError(t, err)

	assert.Contains(t, out, "AIRTEL")
	assert.Contains(t, out, "Cash Out")
	assert.Contains(t, out, "+256772123456")
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"not relevant", "Dinner at 7?", ingest.ErrNotRelevant},
		{"no network", "Transaction of UGX 0 failed", sms.ErrNoNetworkDetected},
		{"no amount", "MTN: You have received money", sms.ErrNoValidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "", "parse", tt.body)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNormalize(t *testing.T) {
	out, err := execute(t, "", "normalize", "0772 123 456", "256772123456", "772123456")
	require.NoError(t, err)
	assert.Equal(t, "+256772123456\n+256772123456\n+256772123456\n", out)

	out, err = execute(t, "", "normalize", "--country-code", "254", "0712345678")
	require.NoError(t, err)
	assert.Equal(t, "+254712345678\n", out)

	_, err = execute(t, "", "normalize")
	assert.Error(t, err)
}

func TestPlugins(t *testing.T) {
	out, err := execute(t, "", "plugins")
	require.NoError(t, err)

	for _, name := range []string{"gmail", "mbox", "webhook", "csv", "json", "sheets", "postgres", "sqlite", "dynamodb"} {
		assert.Contains(t, out, name)
	}
}

func writeTransactions(t *testing.T) string {
	t.Helper()

	txns := []*api.Transaction{
		{MessageID: "1", Amount: 150000, Currency: "UGX", Direction: "Cash In", Network: "MTN", Timestamp: "2025-03-01T09:00:00Z"},
		{MessageID: "2", Amount: 50000, Currency: "UGX", Direction: "Cash Out", Network: "MTN", Timestamp: "2025-03-02T09:00:00Z"},
		{MessageID: "3", Amount: 20000, Currency: "UGX", Direction: "Cash Out", Network: "AIRTEL", Timestamp: "2025-03-03T09:00:00Z"},
	}
	data, err := json.Marshal(txns)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "transactions.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestSummary_JSON(t *testing.T) {
	path := writeTransactions(t)

	out, err := execute(t, "", "summary", "--json", path)
	require.NoError(t, err)

	assert.Contains(t, out, "2025-03-01 to 2025-03-03")
	assert.Contains(t, out, "UGX 150,000")
	assert.Contains(t, out, "AIRTEL")
	assert.Contains(t, out, "UGX 80,000")
}

func TestSummary_DateRange(t *testing.T) {
	path := writeTransactions(t)

	out, err := execute(t, "", "summary", "--json", path, "--since", "2025-03-02", "--until", "2025-03-03")
	require.NoError(t, err)

	assert.Contains(t, out, "UGX 50,000")
	assert.NotContains(t, out, "AIRTEL")
	assert.NotContains(t, out, "150,000")
}

func TestSummary_EmptySQLite(t *testing.T) {
	out, err := execute(t, "", "summary", "--sqlite", filepath.Join(t.TempDir(), "momosync.db"))
	require.NoError(t, err)
	assert.Contains(t, out, "no transactions")
}

func TestSummary_FlagErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no source", []string{"summary"}},
		{"two sources", []string{"summary", "--json", "a.json", "--sqlite", "b.db"}},
		{"bad date", []string{"summary", "--json", "a.json", "--since", "March"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "", tt.args...)
			assert.Error(t, err)
		})
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "momosync.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestStatus(t *testing.T) {
	ready := writeConfig(t, `{"MOMOSYNC_READER": "mbox", "MOMOSYNC_WRITER": "csv"}`)
	out, err := execute(t, "", "status", "--config", ready)
	require.NoError(t, err)
	assert.Contains(t, out, "ready to run")

	broken := writeConfig(t, `{"MOMOSYNC_READER": "pigeon", "MOMOSYNC_WRITER": "csv"}`)
	out, err = execute(t, "", "status", "--config", broken)
	require.Error(t, err)
	assert.Contains(t, out, `reader plugin "pigeon" not found`)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "dev (commit: none")
}
