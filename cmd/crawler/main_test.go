package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aluiziolira/go-scrape-products/config"
	"github.com/aluiziolira/go-scrape-products/pipeline"
)

func TestCreateWriter(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		format string
		file   string
		want   string
	}{
		{format: "csv", file: "products.csv", want: "*pipeline.CSVWriter"},
		{format: "json", file: "products.jsonl", want: "*pipeline.JSONWriter"},
		{format: "dual", file: "dual.csv", want: "*pipeline.DualWriter"},
		{format: "sqlite", file: "products.db", want: "*pipeline.SQLiteWriter"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			writer, err := createWriter(tt.format, filepath.Join(dir, tt.file))
			if err != nil {
				t.Fatalf("create %s writer: %v", tt.format, err)
			}
			defer writer.Close()

			var got string
			switch writer.(type) {
			case *pipeline.CSVWriter:
				got = "*pipeline.CSVWriter"
			case *pipeline.JSONWriter:
				got = "*pipeline.JSONWriter"
			case *pipeline.DualWriter:
				got = "*pipeline.DualWriter"
			case *pipeline.SQLiteWriter:
				got = "*pipeline.SQLiteWriter"
			}
			if got != tt.want {
				t.Fatalf("writer type = %s, want %s", got, tt.want)
			}
			if err := writer.Validate(); err != nil {
				t.Fatalf("fresh %s output should validate: %v", tt.format, err)
			}
		})
	}

	if _, err := createWriter("xml", filepath.Join(dir, "products.xml")); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestShowConfigLayersFlagsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crawler.yaml")
	content := `
start_urls:
  - https://www.ajio.com/men/c/1
listing_url_patterns:
  - '/c/[0-9]+$'
max_pages: 50
parallelism: 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", path, "--show-config", "--max-pages", "5"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got := out.String()
	for _, want := range []string{"max_pages: 5", "parallelism: 3", "- https://www.ajio.com/men/c/1"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunRejectsMissingStartURLs(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--output", filepath.Join(t.TempDir(), "products.csv")})

	if err := cmd.Execute(); !errors.Is(err, config.ErrNoStartURLs) {
		t.Fatalf("execute = %v, want ErrNoStartURLs", err)
	}
}

func TestRunWithZeroBudgetWritesEmptyOutput(t *testing.T) {
	output := filepath.Join(t.TempDir(), "products.csv")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"--max-pages", "0",
		"--listing-pattern", `/c/[0-9]+$`,
		"--output", output,
		"https://www.ajio.com/men/c/1",
	})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if strings.TrimSpace(string(data)) != "link,source_url,position,scraped_at" {
		t.Fatalf("output = %q, want header only", data)
	}
	for _, want := range []string{"Crawl complete", "(0 seeds, budget 0)"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("summary missing %q:\n%s", want, out.String())
		}
	}
}
