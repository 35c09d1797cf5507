package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
)

func TestParseQueryInt(t *testing.T) {
	cases := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", 25, false},
		{"?limit=%20", 25, false},
		{"?limit=40", 40, false},
		{"?limit=0", 0, true},
		{"?limit=101", 0, true},
		{"?limit=ten", 0, true},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/notifications"+tc.query, nil)
		got, err := ParseQueryInt(req, "limit", 25, 1, 100)
		if tc.wantErr {
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("%q: expected validation error, got %v", tc.query, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %d err=%v", tc.query, got, err)
		}
	}
}

func TestParseQueryIntRangeDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/reconciliation?limit=500", nil)
	_, err := ParseQueryInt(req, "limit", 50, 1, 200)
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	if !ok || details["field"] != "limit" || details["max"] != 200 {
		t.Fatalf("unexpected details %#v", pkgerrors.As(err).Details())
	}
}

func TestParseQueryBool(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/notifications?unread=true", nil)
	if got, err := ParseQueryBool(req, "unread"); err != nil || !got {
		t.Fatalf("expected true, got %v err=%v", got, err)
	}
	req = httptest.NewRequest(http.MethodGet, "/notifications", nil)
	if got, err := ParseQueryBool(req, "unread"); err != nil || got {
		t.Fatalf("missing flag must be false, got %v err=%v", got, err)
	}
	req = httptest.NewRequest(http.MethodGet, "/notifications?unread=maybe", nil)
	if _, err := ParseQueryBool(req, "unread"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestQueryCursor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/notifications?cursor=abc123", nil)
	if got, err := QueryCursor(req); err != nil || got != "abc123" {
		t.Fatalf("got %q err=%v", got, err)
	}
	req = httptest.NewRequest(http.MethodGet, "/notifications?cursor="+strings.Repeat("a", maxCursorLength+1), nil)
	if _, err := QueryCursor(req); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected oversized cursor to be rejected, got %v", err)
	}
}

func TestParseQueryUUID(t *testing.T) {
	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/sessions?bidder_id="+id.String(), nil)
	if got, err := ParseQueryUUID(req, "bidder_id"); err != nil || got != id {
		t.Fatalf("got %v err=%v", got, err)
	}
	req = httptest.NewRequest(http.MethodGet, "/sessions", nil)
	if got, err := ParseQueryUUID(req, "bidder_id"); err != nil || got != uuid.Nil {
		t.Fatalf("missing filter should be nil, got %v err=%v", got, err)
	}
	req = httptest.NewRequest(http.MethodGet, "/sessions?bidder_id=42", nil)
	if _, err := ParseQueryUUID(req, "bidder_id"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
