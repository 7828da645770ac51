package pdftext

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

// Page is one physical page of extracted text. Pages are created once by
// Extract and are read-only afterwards.
type Page struct {
	PageNum       int    `json:"page_num"`
	Text          string `json:"text"`
	TokenEstimate int    `json:"token_estimate"`
}

// Config controls extraction behavior.
type Config struct {
	// MinCharsPerPage is the trimmed-length threshold below which a page is
	// considered scanned/garbled and the fallback extractor is consulted.
	MinCharsPerPage int
	// MaxCharsPerPage truncates each page before token estimation.
	MaxCharsPerPage int
	// FallbackPdftotext enables the pdftotext exec fallback.
	FallbackPdftotext bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MinCharsPerPage:   40,
		MaxCharsPerPage:   12000,
		FallbackPdftotext: true,
	}
}

// Extractor produces per-page text from PDF bytes. It tries the Go library
// first and lazily falls back to pdftotext for the whole document when a
// page's primary text is near-empty.
type Extractor struct {
	cfg Config
	log *slog.Logger
}

func NewExtractor(cfg Config, log *slog.Logger) *Extractor {
	if cfg.MinCharsPerPage <= 0 {
		cfg.MinCharsPerPage = 40
	}
	if cfg.MaxCharsPerPage <= 0 {
		cfg.MaxCharsPerPage = 12000
	}
	return &Extractor{cfg: cfg, log: log}
}

// Extract returns one Page per physical page. Total extraction failure yields
// an empty slice, never an error: the caller treats zero pages as "no
// extractable text" and short-circuits.
func (e *Extractor) Extract(pdfBytes []byte) []Page {
	// ledongthuc/pdf requires a ReadSeeker+size, so we write to a temp file.
	tmp, err := os.CreateTemp("", "outliner-pdf-*.pdf")
	if err != nil {
		e.log.Error("create temp file", "error", err)
		return nil
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(pdfBytes); err != nil {
		tmp.Close()
		e.log.Error("write temp file", "error", err)
		return nil
	}
	tmp.Close()

	primary, err := extractPerPage(tmpPath)
	if err != nil {
		e.log.Warn("primary pdf extraction failed", "error", err)
		primary = nil
	}

	// Lazily computed whole-document fallback, shared across pages.
	var fallback []string
	fallbackLoaded := false
	loadFallback := func() []string {
		if fallbackLoaded {
			return fallback
		}
		fallbackLoaded = true
		if !e.cfg.FallbackPdftotext {
			return nil
		}
		pages, err := extractPdftotext(tmpPath)
		if err != nil {
			e.log.Warn("pdftotext fallback failed", "error", err)
			return nil
		}
		fallback = pages
		return fallback
	}

	if len(primary) == 0 {
		primary = make([]string, len(loadFallback()))
	}
	if len(primary) == 0 {
		return nil
	}

	pages := make([]Page, 0, len(primary))
	for i, text := range primary {
		if len(strings.TrimSpace(text)) < e.cfg.MinCharsPerPage {
			fb := loadFallback()
			if i < len(fb) && len(strings.TrimSpace(fb[i])) > len(strings.TrimSpace(text)) {
				text = fb[i]
			}
		}
		text = Truncate(text, e.cfg.MaxCharsPerPage)
		pages = append(pages, Page{
			PageNum:       i + 1,
			Text:          text,
			TokenEstimate: EstimateTokens(text),
		})
	}
	return pages
}

// Truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func extractPerPage(path string) ([]string, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages := make([]string, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages[i-1] = text
	}
	return pages, nil
}

func extractPdftotext(path string) ([]string, error) {
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	// pdftotext separates pages with form feeds.
	return strings.Split(string(out), "\f"), nil
}
