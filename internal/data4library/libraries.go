package data4library

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bull/library-harvester/internal/catalog"
)

// libSearchPageSize is large enough to return every library in one response.
const libSearchPageSize = "1000000"

// flexInt accepts a JSON number or a numeric string. Empty strings decode as zero.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	s := strings.Trim(string(data), `"`)
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %q as integer: %w", s, err)
	}
	*f = flexInt(n)
	return nil
}

// rawText keeps a JSON string or number as its literal text. null decodes as "".
type rawText string

func (r *rawText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = rawText(s)
		return nil
	}
	*r = rawText(data)
	return nil
}

type libSearchBody struct {
	Response struct {
		NumFound  flexInt `json:"numFound"`
		ResultNum flexInt `json:"resultNum"`
		Libs      []struct {
			Lib libRecord `json:"lib"`
		} `json:"libs"`
	} `json:"response"`
}

type libRecord struct {
	LibCode       string  `json:"libCode"`
	LibName       string  `json:"libName"`
	Address       string  `json:"address"`
	Tel           string  `json:"tel"`
	Fax           string  `json:"fax"`
	Latitude      string  `json:"latitude"`
	Longitude     string  `json:"longitude"`
	Homepage      string  `json:"homepage"`
	Closed        string  `json:"closed"`
	OperatingTime string  `json:"operatingTime"`
	BookCount     rawText `json:"BookCount"`
}

// Libraries fetches every library in a single request. The response must report as many
// results as it advertises; a mismatch means upstream paging is broken and the list
// cannot be trusted.
func (c *Client) Libraries(ctx context.Context) ([]catalog.Library, error) {
	resp, err := c.get(ctx, c.apiBase+"/api/libSrch", url.Values{
		"authKey":  {c.authKey},
		"pageSize": {libSearchPageSize},
		"format":   {"json"},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch libraries: %w", err)
	}
	defer resp.Body.Close()

	var body libSearchBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode libraries: %w", err)
	}

	r := body.Response
	if r.NumFound != r.ResultNum || int(r.ResultNum) != len(r.Libs) {
		return nil, fmt.Errorf("%w: numFound=%d resultNum=%d libs=%d",
			ErrCountMismatch, r.NumFound, r.ResultNum, len(r.Libs))
	}

	libs := make([]catalog.Library, 0, len(r.Libs))
	for _, entry := range r.Libs {
		rec := entry.Lib
		var bookCount int64
		if text := strings.TrimSpace(string(rec.BookCount)); text != "" {
			n, err := strconv.ParseInt(text, 10, 64)
			if err != nil {
				c.logger.Warn("Unparseable library book count, storing 0",
					"library", rec.LibCode, "value", text)
				n = 0
			}
			bookCount = n
		}
		libs = append(libs, catalog.Library{
			Code:          strings.TrimSpace(rec.LibCode),
			Name:          rec.LibName,
			Address:       rec.Address,
			Tel:           rec.Tel,
			Fax:           rec.Fax,
			Latitude:      rec.Latitude,
			Longitude:     rec.Longitude,
			Homepage:      rec.Homepage,
			OperatingTime: rec.OperatingTime,
			Closed:        rec.Closed,
			BookCount:     bookCount,
		})
	}

	c.logger.Info("Fetched libraries", "count", len(libs))
	return libs, nil
}

type srchLibsBody struct {
	Rows []struct {
		ID   flexInt  `json:"id"`
		Cell []string `json:"cell"`
	} `json:"rows"`
}

// PageIDs lists the portal page identifiers for the configured region, deduplicated in
// upstream order. These are not API library codes; Holdings resolves the code per page.
func (c *Client) PageIDs(ctx context.Context) ([]string, error) {
	form := url.Values{
		"region":     {c.region},
		"dtl_region": {c.detailRegion},
		"libType":    {""},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webBase+"/srchLibs",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch library pages: %w", err)
	}
	defer resp.Body.Close()

	var body srchLibsBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode library pages: %w", err)
	}

	seen := make(map[string]struct{}, len(body.Rows))
	ids := make([]string, 0, len(body.Rows))
	for _, row := range body.Rows {
		id := strconv.FormatInt(int64(row.ID), 10)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	c.logger.Info("Fetched library pages", "count", len(ids), "region", c.region)
	return ids, nil
}
