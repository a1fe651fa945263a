package search

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeEngine starts an IPv4 test server that answers like Elasticsearch.
func newFakeEngine(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)

	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	server.Listener = listener
	server.Start()
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL)
	require.NoError(t, err)
	return client
}

func TestPutIndexTemplate(t *testing.T) {
	var gotPath string
	var gotBody []byte
	client := newFakeEngine(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	})

	err := client.PutIndexTemplate(context.Background(), "library", []byte(`{"index_patterns":["library-*"]}`))
	require.NoError(t, err)
	assert.Equal(t, "/_index_template/library", gotPath)
	assert.JSONEq(t, `{"index_patterns":["library-*"]}`, string(gotBody))
}

func TestPutIndexTemplate_Rejected(t *testing.T) {
	client := newFakeEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"illegal_argument_exception"}}`))
	})

	err := client.PutIndexTemplate(context.Background(), "book", []byte(`{}`))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.False(t, IsTransient(err))
}

func TestCreateIndex_AlreadyExists(t *testing.T) {
	client := newFakeEngine(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"resource_already_exists_exception"},"status":400}`))
	})

	assert.NoError(t, client.CreateIndex(context.Background(), "book-2024-01-02"))
}

func TestCreateIndex_OtherBadRequest(t *testing.T) {
	client := newFakeEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_index_name_exception"},"status":400}`))
	})

	assert.Error(t, client.CreateIndex(context.Background(), "BAD"))
}

func TestCount(t *testing.T) {
	var gotQuery map[string]any
	client := newFakeEngine(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book-2024-01-02/_count", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&gotQuery)
		_, _ = w.Write([]byte(`{"count":42}`))
	})

	n, err := client.Count(context.Background(), "book-2024-01-02",
		map[string]any{"term": map[string]any{"libCode": "111001"}})
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.Contains(t, gotQuery, "query")
}

func TestCount_MissingIndex(t *testing.T) {
	client := newFakeEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"index_not_found_exception"},"status":404}`))
	})

	n, err := client.Count(context.Background(), "library-2024-01-02", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBulk(t *testing.T) {
	var lines []string
	var refresh string
	client := newFakeEngine(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/library-2024-01-02/_bulk", r.URL.Path)
		refresh = r.URL.Query().Get("refresh")
		scanner := bufio.NewScanner(r.Body)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		_, _ = w.Write([]byte(`{"took":3,"errors":true,"items":[
			{"index":{"_index":"library-2024-01-02","_id":"A","status":201}},
			{"index":{"_index":"library-2024-01-02","_id":"B","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad"}}}
		]}`))
	})

	docs := []Document{
		{ID: "A", Source: map[string]string{"libCode": "A"}},
		{ID: "B", Source: map[string]string{"libCode": "B"}},
	}
	res, err := client.Bulk(context.Background(), "library-2024-01-02", docs, RefreshWaitFor)
	require.NoError(t, err)

	assert.Equal(t, "wait_for", refresh)
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"index":{"_id":"A"}}`, lines[0])
	assert.JSONEq(t, `{"libCode":"A"}`, lines[1])

	assert.Equal(t, 1, res.AcceptedCount())
	rejected := res.Rejected()
	require.Len(t, rejected, 1)
	assert.Equal(t, "B", rejected[0].ID)
	assert.Equal(t, "bad", rejected[0].Error.Reason)
}

func TestBulk_ServerError(t *testing.T) {
	client := newFakeEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.Bulk(context.Background(), "book-2024-01-02",
		[]Document{{ID: "x", Source: map[string]int{"n": 1}}}, RefreshFalse)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestBulkItem_Result(t *testing.T) {
	raw := `[
		{"create":{"_index":"i","_id":"1","status":201}},
		{"delete":{"_index":"i","_id":"2","status":200}},
		{"index":{"_index":"i","_id":"3","status":200}},
		{"update":{"_index":"i","_id":"4","status":409}}
	]`
	var items []BulkItem
	require.NoError(t, json.Unmarshal([]byte(raw), &items))

	kinds := []string{"create", "delete", "index", "update"}
	for i, item := range items {
		assert.Equal(t, kinds[i], item.Kind())
		require.NotNil(t, item.Result())
		assert.Equal(t, "i", item.Result().Index)
	}
	assert.False(t, items[3].Result().Accepted())
	assert.Nil(t, BulkItem{}.Result())
}

func TestEncodeBulk(t *testing.T) {
	body, err := EncodeBulk([]Document{{ID: "111-978", Source: map[string]string{"isbn": "978"}}})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"index":{"_id":"111-978"}}`, lines[0])
	assert.True(t, bytes.HasSuffix(body, []byte("\n")))
}

func TestEncodeBulk_UnencodableSource(t *testing.T) {
	_, err := EncodeBulk([]Document{{ID: "1", Source: map[string]any{"bad": make(chan int)}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode bulk source 1")
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", errors.New("connection reset by peer"), true},
		{"canceled", context.Canceled, false},
		{"too many requests", &StatusError{StatusCode: 429}, true},
		{"bad gateway", &StatusError{StatusCode: 502}, true},
		{"bad request", &StatusError{StatusCode: 400}, false},
		{"conflict", &StatusError{StatusCode: 409}, true},
		{"unauthorized", &StatusError{StatusCode: 401}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestWaitHealthy(t *testing.T) {
	client := newFakeEngine(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusOK)
	})

	assert.NoError(t, client.WaitHealthy(context.Background()))
}

func TestWaitHealthy_PermanentFailure(t *testing.T) {
	client := newFakeEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := client.WaitHealthy(context.Background())
	assert.ErrorIs(t, err, ErrEngineUnreachable)
}
