package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"expensehub/internal/core"
	"expensehub/internal/log"
)

// fakeSheet serves the subset of the Sheets values API the client uses.
type fakeSheet struct {
	mu   sync.Mutex
	rows [][]any
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body struct {
		Values [][]any `json:"values"`
	}
	if r.Body != nil {
		b, _ := io.ReadAll(r.Body)
		if len(b) > 0 {
			_ = json.Unmarshal(b, &body)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet:
		col := make([][]any, 0, len(f.rows))
		for _, row := range f.rows {
			col = append(col, row[:1])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"range": "Expenses!A:A", "values": col})
	case r.Method == http.MethodPut:
		f.rows = append(body.Values, f.rows...)
		_ = json.NewEncoder(w).Encode(map[string]any{"updatedRange": "Expenses!A1:K1"})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
		f.rows = append(f.rows, body.Values...)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"updates": map[string]any{"updatedRange": "Expenses!A" + strconv.Itoa(len(f.rows)) + ":K" + strconv.Itoa(len(f.rows))},
		})
	default:
		http.Error(w, "unexpected request", http.StatusBadRequest)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeSheet) {
	fake := &fakeSheet{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	logger := log.New(log.Config{Output: io.Discard})
	return NewWithService(svc, "sheet-id", "Expenses", logger), fake
}

func TestAppendExportRowWritesHeaderOnce(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	ref, err := c.AppendExportRow(ctx, core.ExportRow{ID: 7, User: "ada", Amount: "12.50"})
	require.NoError(t, err)
	assert.Equal(t, "Expenses!A2:K2", ref)

	_, err = c.AppendExportRow(ctx, core.ExportRow{ID: 8, User: "ada", Amount: "1.00"})
	require.NoError(t, err)

	require.Len(t, fake.rows, 3)
	assert.Equal(t, "ID", fake.rows[0][0])
	assert.Equal(t, "7", fake.rows[1][0])
	assert.Equal(t, "12.50", fake.rows[1][8])
	assert.Equal(t, "8", fake.rows[2][0])
}

func TestAppendExportRowSkipsKnownID(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	_, err := c.AppendExportRow(ctx, core.ExportRow{ID: 7})
	require.NoError(t, err)
	ref, err := c.AppendExportRow(ctx, core.ExportRow{ID: 7})
	require.NoError(t, err)

	assert.Equal(t, "Expenses!A2", ref)
	assert.Len(t, fake.rows, 2)
}

func TestNewRequiresSpreadsheetAndCredentials(t *testing.T) {
	logger := log.New(log.Config{Output: io.Discard})

	_, err := New(context.Background(), Config{}, logger)
	assert.ErrorContains(t, err, "missing spreadsheet id")

	_, err = New(context.Background(), Config{SpreadsheetID: "x"}, logger)
	assert.ErrorContains(t, err, "missing service account credentials")

	_, err = New(context.Background(), Config{SpreadsheetID: "x", CredentialsFile: "/does/not/exist.json"}, logger)
	assert.ErrorContains(t, err, "read service account file")
}
