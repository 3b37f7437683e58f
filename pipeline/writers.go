package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-products/models"
)

var csvHeader = []string{"link", "source_url", "position", "scraped_at"}

// outputFile is the file handle shared by the CSV and JSONL writers. Every
// batch is flushed to disk before Write returns, so Validate can re-read the
// file by name while it is still open.
type outputFile struct {
	kind string
	file *os.File
	buf  *bufio.Writer
	mu   sync.Mutex
}

func createOutput(kind, filename string) (*outputFile, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create %s file: %w", kind, err)
	}
	return &outputFile{kind: kind, file: f, buf: bufio.NewWriter(f)}, nil
}

func (o *outputFile) flush() error {
	if err := o.buf.Flush(); err != nil {
		return fmt.Errorf("flush %s file: %w", o.kind, err)
	}
	return nil
}

func (o *outputFile) close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.flush(); err != nil {
		_ = o.file.Close()
		return err
	}
	return o.file.Close()
}

// reopen opens the output for reading.
func (o *outputFile) reopen() (*os.File, error) {
	f, err := os.Open(o.file.Name())
	if err != nil {
		return nil, fmt.Errorf("open %s file: %w", o.kind, err)
	}
	return f, nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}

// CSVWriter writes records to CSV. A null link is an empty cell.
type CSVWriter struct {
	out *outputFile
	csv *csv.Writer
}

// NewCSVWriter creates filename and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	out, err := createOutput("csv", filename)
	if err != nil {
		return nil, err
	}
	cw := &CSVWriter{out: out, csv: csv.NewWriter(out.buf)}
	if err := cw.writeRows([][]string{csvHeader}); err != nil {
		_ = out.file.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return cw, nil
}

func (cw *CSVWriter) Write(records []*models.ProductRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.LinkOrEmpty(),
			r.SourceURL,
			strconv.Itoa(r.Position),
			r.ScrapedAt.Format(time.RFC3339),
		})
	}
	return cw.writeRows(rows)
}

func (cw *CSVWriter) writeRows(rows [][]string) error {
	cw.out.mu.Lock()
	defer cw.out.mu.Unlock()

	if err := cw.csv.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return cw.out.flush()
}

func (cw *CSVWriter) Close() error {
	return cw.out.close()
}

// Validate re-reads the output and checks the header and column count.
// A file holding only the header is valid: a run may extract nothing.
func (cw *CSVWriter) Validate() error {
	f, err := cw.out.reopen()
	if err != nil {
		return err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = len(csvHeader)
	rows, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("read csv file: %w", err)
	}
	if len(rows) == 0 || rows[0][0] != csvHeader[0] {
		return fmt.Errorf("csv file is missing its header")
	}
	return nil
}

// JSONWriter writes newline-delimited JSON records. A null link is encoded
// as null.
type JSONWriter struct {
	out *outputFile
	enc *json.Encoder
}

// NewJSONWriter creates filename for JSONL output.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	out, err := createOutput("json", filename)
	if err != nil {
		return nil, err
	}
	return &JSONWriter{out: out, enc: json.NewEncoder(out.buf)}, nil
}

func (jw *JSONWriter) Write(records []*models.ProductRecord) error {
	jw.out.mu.Lock()
	defer jw.out.mu.Unlock()

	for _, r := range records {
		if err := jw.enc.Encode(r); err != nil {
			return fmt.Errorf("encode record from %s: %w", r.SourceURL, err)
		}
	}
	return jw.out.flush()
}

func (jw *JSONWriter) Close() error {
	return jw.out.close()
}

// Validate checks that every line decodes as a record. An empty file is
// valid.
func (jw *JSONWriter) Validate() error {
	f, err := jw.out.reopen()
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		var r models.ProductRecord
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return fmt.Errorf("json line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan json file: %w", err)
	}
	return nil
}
