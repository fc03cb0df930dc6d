package load

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/rasnes/tiingo-powerbi-push/config"
	"github.com/rasnes/tiingo-powerbi-push/transform"
)

// CSVSink writes a run's table to a local delimited file.
//
// In replace mode the file is truncated and rewritten. In append mode rows are
// added to the end and the header is only written when the file is new or
// empty. Append does not deduplicate: re-running a date already present leaves
// duplicate (Symbol, date) rows behind until CompactCSV is run. At most one run
// may write a given file at a time.
type CSVSink struct {
	Path   string
	Mode   string
	Logger *slog.Logger
}

func NewCSVSink(cfg config.SinkConfig, logger *slog.Logger) *CSVSink {
	return &CSVSink{
		Path:   cfg.Path,
		Mode:   cfg.Mode,
		Logger: logger,
	}
}

// Write persists the table. An empty table is a no-op.
func (s *CSVSink) Write(table transform.Table) error {
	if table.Len() == 0 {
		return nil
	}

	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", s.Path, err)
		}
	}

	var (
		f           *os.File
		writeHeader = true
		err         error
	)
	switch s.Mode {
	case config.SinkModeReplace, "":
		f, err = os.Create(s.Path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", s.Path, err)
		}
	case config.SinkModeAppend:
		existing, err := readHeader(s.Path)
		if err != nil {
			return err
		}
		if existing != nil {
			if !slices.Equal(existing, table.Header()) {
				return fmt.Errorf("cannot append to %s: header %v does not match %v", s.Path, existing, table.Header())
			}
			writeHeader = false
		}
		f, err = os.OpenFile(s.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", s.Path, err)
		}
	default:
		return fmt.Errorf("unknown sink mode %q", s.Mode)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if writeHeader {
		if err := writer.Write(table.Header()); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
	}
	for _, row := range table.Rows {
		if err := writer.Write(table.Record(row)); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", s.Path, err)
	}

	if s.Logger != nil {
		s.Logger.Info("Wrote CSV", "path", s.Path, "mode", s.Mode, "rows", table.Len(), "header", writeHeader)
	}
	return nil
}

// readHeader returns nil when the file does not exist or is empty.
func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header of %s: %w", path, err)
	}
	return header, nil
}

// CompactCSV rewrites an append-mode log so that each (Symbol, date) pair
// appears once, keeping the last occurrence. It returns the number of rows removed.
func CompactCSV(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	compacted, removed, err := RemoveDuplicateRows(data)
	if err != nil {
		return 0, fmt.Errorf("failed to compact %s: %w", path, err)
	}
	if removed == 0 {
		return 0, nil
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compacted, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return removed, nil
}

// RemoveDuplicateRows removes rows sharing a (Symbol, date) key from CSV data
// while preserving the header. The last occurrence wins and keeps its position.
func RemoveDuplicateRows(csvData []byte) ([]byte, int, error) {
	if len(bytes.TrimSpace(csvData)) == 0 {
		return nil, 0, fmt.Errorf("received empty CSV data")
	}

	records, err := csv.NewReader(bytes.NewReader(csvData)).ReadAll()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read CSV data: %w", err)
	}
	header, rows := records[0], records[1:]

	symbolCol := slices.Index(header, "Symbol")
	dateCol := slices.Index(header, "date")
	if symbolCol < 0 || dateCol < 0 {
		return nil, 0, fmt.Errorf("CSV header %v lacks Symbol and date columns", header)
	}

	last := make(map[[2]string]int, len(rows))
	for i, record := range rows {
		last[[2]string{record[symbolCol], record[dateCol]}] = i
	}

	var buffer bytes.Buffer
	writer := csv.NewWriter(&buffer)
	if err := writer.Write(header); err != nil {
		return nil, 0, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i, record := range rows {
		if last[[2]string{record[symbolCol], record[dateCol]}] != i {
			continue
		}
		if err := writer.Write(record); err != nil {
			return nil, 0, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, 0, fmt.Errorf("failed to flush CSV writer: %w", err)
	}

	return buffer.Bytes(), len(rows) - len(last), nil
}
