package cftc

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cot-sentiment-lab/internal/ingestion"
)

// buildArchive zips content under name.
func buildArchive(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestServer(t *testing.T, archives map[string][]byte, status map[string]int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if code, ok := status[r.URL.Path]; ok {
			w.WriteHeader(code)
			return
		}
		data, ok := archives[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Write(data)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClient_Fetch(t *testing.T) {
	content := sampleHeader + "\n" +
		`"GOLD - COMMODITY EXCHANGE INC.",2015-01-06,MET,400000,120000,250000,180000,60000,30000,20000` + "\n"
	server := newTestServer(t, map[string][]byte{
		"/fut_disagg_txt_2015.zip": buildArchive(t, "f_year.txt", content),
	}, nil)

	client := NewClient(WithURLTemplate(server.URL + "/fut_disagg_txt_%d.zip"))
	rows, err := client.Fetch(context.Background(), 2015)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "GOLD - COMMODITY EXCHANGE INC.", rows[0].Contract)
}

func TestClient_FetchErrors(t *testing.T) {
	server := newTestServer(t, map[string][]byte{
		"/fut_disagg_txt_2013.zip": buildArchive(t, "readme.md", "nothing here"),
		"/fut_disagg_txt_2012.zip": []byte("not a zip"),
		"/fut_disagg_txt_2011.zip": buildArchive(t, "f_year.txt", "Market_and_Exchange_Names\n"),
	}, map[string]int{
		"/fut_disagg_txt_2014.zip": http.StatusInternalServerError,
	})
	client := NewClient(WithURLTemplate(server.URL + "/fut_disagg_txt_%d.zip"))

	tests := []struct {
		name string
		year int
		want error
	}{
		{"not published", 2030, ingestion.ErrReportUnavailable},
		{"server error", 2014, ingestion.ErrRetrieval},
		{"no txt entry", 2013, ingestion.ErrRetrieval},
		{"corrupt archive", 2012, ingestion.ErrRetrieval},
		{"bad header", 2011, ingestion.ErrRetrieval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Fetch(context.Background(), tt.year)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_HeaderErrorIsReachable(t *testing.T) {
	server := newTestServer(t, map[string][]byte{
		"/r_2011.zip": buildArchive(t, "f_year.txt", "Market_and_Exchange_Names\n"),
	}, nil)

	_, err := NewClient(WithURLTemplate(server.URL+"/r_%d.zip")).Fetch(context.Background(), 2011)

	var headerErr *HeaderError
	assert.ErrorAs(t, err, &headerErr)
}
