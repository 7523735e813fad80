package tagdb

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newReleaseServer(t *testing.T, assetName string, wantAuth string) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantAuth != "" && r.Header.Get("Authorization") != wantAuth {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/releases/latest":
			fmt.Fprintf(w, `{"tag_name":"v6.1","assets":[{"name":"db.raw.json","browser_download_url":"%[1]s/raw"},{"name":"%[2]s","browser_download_url":"%[1]s/db"}]}`, server.URL, assetName)
		case "/db":
			w.Write([]byte(`{"data":[
				{"namespace":"rows","data":{"group":{"name":"Group"}}},
				{"namespace":"artist","data":{"someone":{"name":"Someone"}}},
				{"namespace":"group","data":{"circle":{"name":"Circle Name","intro":"x"}}}
			]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestLoad(t *testing.T) {
	server := newReleaseServer(t, AssetName, "")
	db, err := NewLoader(server.Client(), "", server.URL+"/releases/latest").Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if db.Version != "v6.1" || db.Len() != 1 {
		t.Errorf("db = %+v", db)
	}
	if got := db.TranslateGroup("circle"); got != "Circle Name" {
		t.Errorf("TranslateGroup(circle) = %q", got)
	}
	if got := db.TranslateGroup("someone"); got != "" {
		t.Errorf("artist leaked into groups: %q", got)
	}
}

func TestLoadWithToken(t *testing.T) {
	server := newReleaseServer(t, AssetName, "Bearer secret")
	db, err := NewLoader(server.Client(), "secret", server.URL+"/releases/latest").Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if db.TranslateGroup("circle") == "" {
		t.Errorf("translation missing")
	}
}

func TestLoadMissingAsset(t *testing.T) {
	server := newReleaseServer(t, "other.json", "")
	_, err := NewLoader(server.Client(), "", server.URL+"/releases/latest").Load(context.Background())
	if err == nil || !strings.Contains(err.Error(), AssetName) {
		t.Fatalf("expected missing asset error, got %v", err)
	}
}

func TestNilDB(t *testing.T) {
	var db *DB
	if db.TranslateGroup("circle") != "" || db.Len() != 0 {
		t.Errorf("nil DB should translate nothing")
	}
}
