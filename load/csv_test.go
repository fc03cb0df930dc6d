package load

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rasnes/tiingo-powerbi-push/config"
	"github.com/rasnes/tiingo-powerbi-push/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSink(path, mode string) *CSVSink {
	return NewCSVSink(config.SinkConfig{Path: path, Mode: mode}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestCSVSink_Replace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stock_data.csv")
	sink := newTestSink(path, config.SinkModeReplace)

	require.NoError(t, sink.Write(testTable(t, "AAPL", "2024-01-02", 2, false)))
	require.NoError(t, sink.Write(testTable(t, "MSFT", "2024-01-04", 1, false)))

	assert.Equal(t, []string{
		"Symbol,date,open,high,low,close,volume",
		"MSFT,2024-01-04,100,101.5,99.25,100.75,1000",
	}, readLines(t, path))
}

func TestCSVSink_AppendDisjointRanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stock_data.csv")
	sink := newTestSink(path, config.SinkModeAppend)

	require.NoError(t, sink.Write(testTable(t, "AAPL", "2024-01-02", 2, true)))
	require.NoError(t, sink.Write(testTable(t, "AAPL", "2024-01-04", 1, true)))

	lines := readLines(t, path)
	require.Len(t, lines, 4)
	assert.Equal(t, "Symbol,date,open,high,low,close,volume,Year,Month,Month_Name,Quarter,Quarter_Year,Quarter_Year_Sort", lines[0])
	assert.Equal(t, "AAPL,2024-01-02,100,101.5,99.25,100.75,1000,2024,1,January,1,2024 Q1,20241", lines[1])
	assert.True(t, strings.HasPrefix(lines[3], "AAPL,2024-01-04,"))
}

func TestCSVSink_AppendWritesHeaderToEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stock_data.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	require.NoError(t, newTestSink(path, config.SinkModeAppend).Write(testTable(t, "AAPL", "2024-01-02", 1, false)))
	assert.Equal(t, "Symbol,date,open,high,low,close,volume", readLines(t, path)[0])
}

// Re-running the same date in append mode accumulates duplicate rows. This is
// a known limitation of append mode; CompactCSV is the explicit fix.
func TestCSVSink_AppendDoesNotDeduplicate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stock_data.csv")
	sink := newTestSink(path, config.SinkModeAppend)
	table := testTable(t, "AAPL", "2024-01-02", 1, false)

	require.NoError(t, sink.Write(table))
	require.NoError(t, sink.Write(table))

	lines := readLines(t, path)
	require.Len(t, lines, 3)
	assert.Equal(t, lines[1], lines[2])
}

func TestCSVSink_AppendHeaderMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stock_data.csv")
	require.NoError(t, newTestSink(path, config.SinkModeAppend).Write(testTable(t, "AAPL", "2024-01-02", 1, false)))

	err := newTestSink(path, config.SinkModeAppend).Write(testTable(t, "AAPL", "2024-01-03", 1, true))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
	assert.Len(t, readLines(t, path), 2)
}

func TestCSVSink_EmptyTableIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stock_data.csv")
	require.NoError(t, newTestSink(path, config.SinkModeReplace).Write(transform.Table{}))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestCSVSink_UnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err := newTestSink(filepath.Join(blocker, "stock_data.csv"), config.SinkModeReplace).
		Write(testTable(t, "AAPL", "2024-01-02", 1, false))
	assert.Error(t, err)
}

func TestRemoveDuplicateRows(t *testing.T) {
	tests := []struct {
		name            string
		csvData         []byte
		expectedOutput  string
		expectedRemoved int
		expectedError   string
	}{
		{
			name: "No duplicates",
			csvData: []byte(`Symbol,date,close
AAPL,2024-01-02,1
MSFT,2024-01-02,2`),
			expectedOutput: `Symbol,date,close
AAPL,2024-01-02,1
MSFT,2024-01-02,2
`,
		},
		{
			name: "Last occurrence wins",
			csvData: []byte(`Symbol,date,close
AAPL,2024-01-02,1
MSFT,2024-01-02,2
AAPL,2024-01-02,1.5
AAPL,2024-01-03,3`),
			expectedOutput: `Symbol,date,close
MSFT,2024-01-02,2
AAPL,2024-01-02,1.5
AAPL,2024-01-03,3
`,
			expectedRemoved: 1,
		},
		{
			name:          "Empty input",
			csvData:       []byte(" \n"),
			expectedError: "received empty CSV data",
		},
		{
			name: "Missing key columns",
			csvData: []byte(`id,name
1,Alice`),
			expectedError: "lacks Symbol and date columns",
		},
		{
			name: "Invalid CSV format",
			csvData: []byte(`Symbol,date
AAPL,2024-01-02,extra`),
			expectedError: "failed to read CSV data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, removed, err := RemoveDuplicateRows(tt.csvData)
			if tt.expectedError != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expectedOutput, string(output))
				assert.Equal(t, tt.expectedRemoved, removed)
			}
		})
	}
}

func TestCompactCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stock_data.csv")
	sink := newTestSink(path, config.SinkModeAppend)
	require.NoError(t, sink.Write(testTable(t, "AAPL", "2024-01-02", 2, false)))
	require.NoError(t, sink.Write(testTable(t, "AAPL", "2024-01-03", 2, false)))

	removed, err := CompactCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	lines := readLines(t, path)
	require.Len(t, lines, 4)
	assert.Equal(t, "AAPL,2024-01-02,100,101.5,99.25,100.75,1000", lines[1])
	// 2024-01-03 from the second run replaces the first run's row.
	assert.Equal(t, "AAPL,2024-01-03,100,101.5,99.25,100.75,1000", lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "AAPL,2024-01-04,"))

	removed, err = CompactCSV(path)
	require.NoError(t, err)
	assert.Zero(t, removed)

	_, err = CompactCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
