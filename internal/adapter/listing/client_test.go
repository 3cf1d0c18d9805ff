package listing

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apacheIndex = `<!DOCTYPE HTML PUBLIC "-//W3C//DTD HTML 3.2 Final//EN">
<html><head><title>Index of /Lambert_2.3km/06</title></head>
<body>
<h1>Index of /Lambert_2.3km/06</h1>
<table>
<tr><th><a href="?C=N;O=D">Name</a></th><th><a href="?C=M;O=A">Last modified</a></th></tr>
<tr><td><a href="/meteorology/weather/nwp_aladin/Lambert_2.3km/">Parent Directory</a></td></tr>
<tr><td><a href="ALADLAMB4opendata_2025011406_MSLPRESSURE.grb.bz2">ALADLAMB4opendata_2025011406_MSLPRESSURE.grb.bz2</a></td></tr>
<tr><td><a href="ALADLAMB4opendata_2025011406_CLSWIND_SPEED.grb.bz2">ALADLAMB4opendata_2025011406_CLSWIND_SPEED.grb.bz2</a></td></tr>
<tr><td><a href="./ALADLAMB4opendata_2025011406_MSLPRESSURE.grb.bz2">dup</a></td></tr>
<tr><td><a name="anchor-without-href">x</a></td></tr>
</table>
</body></html>`

func testClient(baseURL string) *Client {
	return NewClient(baseURL, &http.Client{Timeout: 5 * time.Second}, 5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestParseHrefs(t *testing.T) {
	names, err := ParseHrefs(strings.NewReader(apacheIndex))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"ALADLAMB4opendata_2025011406_MSLPRESSURE.grb.bz2",
		"ALADLAMB4opendata_2025011406_CLSWIND_SPEED.grb.bz2",
	}, names)
}

func TestParseHrefs_Empty(t *testing.T) {
	names, err := ParseHrefs(strings.NewReader("<html><body>nothing here</body></html>"))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestClient_List(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Lambert_2.3km/06/", r.URL.Path)
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, apacheIndex)
	}))
	defer srv.Close()

	c := testClient(srv.URL + "/Lambert_2.3km/")
	names, err := c.List(context.Background(), "06")
	require.NoError(t, err)
	assert.Len(t, names, 2)
}

func TestClient_List_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).List(context.Background(), "12")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestClient_URLs(t *testing.T) {
	c := testClient("https://opendata.example/Lambert_2.3km/")
	assert.Equal(t, "https://opendata.example/Lambert_2.3km/18/", c.DirURL("18"))
	assert.Equal(t, "https://opendata.example/Lambert_2.3km/18/a_b.grb.bz2", c.FileURL("18", "a_b.grb.bz2"))
}
