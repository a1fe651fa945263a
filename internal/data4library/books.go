package data4library

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"

	"github.com/bull/library-harvester/internal/catalog"
)

const (
	// libInfoSelector holds the API sample URL, which carries the API library code.
	libInfoSelector = ".right_linfo dl dd"
	// downloadSelector is the holdings CSV link; the path is in its url attribute.
	downloadSelector = ".download_link.text_type"
)

var libCodePattern = regexp.MustCompile(`libCode=(\d+)`)

// csvColumns is the fixed column count of the holdings export.
const csvColumns = 13

// Holdings resolves the API library code for a portal page and downloads its holdings.
// Resolution failures are returned as *ScrapeError wrapping ErrNoLibCode, ErrLibCodeFormat,
// ErrNoLink or ErrNoURL.
func (c *Client) Holdings(ctx context.Context, pageID string) (*catalog.Holdings, error) {
	libCode, csvURL, err := c.resolvePage(ctx, pageID)
	if err != nil {
		return nil, err
	}

	books, err := c.downloadBooks(ctx, csvURL)
	if err != nil {
		return nil, fmt.Errorf("library page %s: %w", pageID, err)
	}
	for i := range books {
		books[i].LibCode = libCode
	}

	c.logger.Debug("Fetched holdings", "page", pageID, "library", libCode, "books", len(books))
	return &catalog.Holdings{LibCode: libCode, Books: books}, nil
}

func (c *Client) resolvePage(ctx context.Context, pageID string) (libCode, csvURL string, err error) {
	resp, err := c.get(ctx, c.webBase+"/openDataV", url.Values{
		"libcode":  {pageID},
		"pageSize": {"1"},
	})
	if err != nil {
		return "", "", fmt.Errorf("library page %s: %w", pageID, err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("library page %s: parse html: %w", pageID, err)
	}

	libCode, path, err := extractPageLinks(doc)
	if err != nil {
		return "", "", &ScrapeError{PageID: pageID, Err: err}
	}

	resolved, err := c.resolveURL(path)
	if err != nil {
		return "", "", fmt.Errorf("library page %s: %w", pageID, err)
	}
	return libCode, resolved, nil
}

// extractPageLinks pulls the API library code and the CSV path out of a library page.
func extractPageLinks(doc *goquery.Document) (libCode, path string, err error) {
	info := doc.Find(libInfoSelector).First()
	if info.Length() == 0 {
		return "", "", ErrNoLibCode
	}
	m := libCodePattern.FindStringSubmatch(info.Text())
	if m == nil {
		return "", "", ErrLibCodeFormat
	}

	link := doc.Find(downloadSelector).First()
	if link.Length() == 0 {
		return "", "", ErrNoLink
	}
	path, ok := link.Attr("url")
	if !ok || strings.TrimSpace(path) == "" {
		return "", "", ErrNoURL
	}
	return m[1], strings.TrimSpace(path), nil
}

func (c *Client) resolveURL(path string) (string, error) {
	base, err := url.Parse(c.webBase + "/")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse download path %q: %w", path, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (c *Client) downloadBooks(ctx context.Context, csvURL string) ([]catalog.Book, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, csvURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	// An empty value makes net/http omit the header entirely.
	req.Header.Set("User-Agent", "")

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("download holdings: %w", err)
	}
	defer resp.Body.Close()

	return ParseHoldingsCSV(resp.Body, c.logger)
}

// ParseHoldingsCSV decodes an EUC-KR holdings export. Invalid byte sequences become U+FFFD.
// The header row is skipped; rows that are malformed or have no ISBN are dropped.
func ParseHoldingsCSV(r io.Reader, logger *slog.Logger) ([]catalog.Book, error) {
	if logger == nil {
		logger = slog.Default()
	}

	reader := csv.NewReader(transform.NewReader(r, korean.EUCKR.NewDecoder()))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var books []catalog.Book
	malformed, noISBN := 0, 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				malformed++
				continue
			}
			return nil, fmt.Errorf("read csv: %w", err)
		}

		book, err := parseBookRecord(record)
		if err != nil {
			malformed++
			logger.Debug("Skipping malformed holdings row", "error", err)
			continue
		}
		if !book.Valid() {
			noISBN++
			continue
		}
		books = append(books, book)
	}

	if malformed > 0 {
		logger.Warn("Dropped malformed holdings rows", "count", malformed)
	}
	logger.Debug("Parsed holdings", "books", len(books), "without_isbn", noISBN)
	return books, nil
}

// parseBookRecord maps one export row in column order:
// num, title, authors, publisher, year, isbn, set isbn, addition symbol, vol, kdc,
// copies, loans, registration date.
func parseBookRecord(record []string) (catalog.Book, error) {
	if len(record) < csvColumns {
		return catalog.Book{}, fmt.Errorf("record has %d columns, want %d", len(record), csvColumns)
	}
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}

	num, err := atoiOrZero(record[0])
	if err != nil {
		return catalog.Book{}, fmt.Errorf("num: %w", err)
	}
	bookCount, err := atoiOrZero(record[10])
	if err != nil {
		return catalog.Book{}, fmt.Errorf("book count: %w", err)
	}
	loanCount, err := atoiOrZero(record[11])
	if err != nil {
		return catalog.Book{}, fmt.Errorf("loan count: %w", err)
	}

	return catalog.Book{
		Num:             num,
		Title:           record[1],
		Authors:         record[2],
		Publisher:       record[3],
		PublicationYear: record[4],
		ISBN:            record[5],
		SetISBN:         record[6],
		AdditionSymbol:  record[7],
		Vol:             record[8],
		KDC:             record[9],
		BookCount:       bookCount,
		LoanCount:       loanCount,
		RegDate:         record[12],
	}, nil
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
