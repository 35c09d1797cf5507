package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
)

type sampleBody struct {
	Name   string `json:"name" validate:"required"`
	Amount int64  `json:"amount_cents" validate:"min=1"`
}

func TestDecodeJSONBodyValidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"","amount_cents":0}`))
	var body sampleBody
	err := DecodeJSONBody(req, &body)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %T", pkgerrors.As(err).Details())
	}
	if details["name"] != "is required" || details["amount_cents"] != "must be at least 1" {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","amount_cents":5,"extra":true}`))
	var body sampleBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello world ", 5); got != "hello" {
		t.Fatalf("unexpected %q", got)
	}
}

type amountBody struct {
	Amount int64  `json:"amount_cents" validate:"cents"`
	Name   string `json:"name" validate:"notblank"`
}

func TestDecodeJSONBodyCentsBounds(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount_cents":100000001,"name":"  "}`))
	var body amountBody
	err := DecodeJSONBody(req, &body)
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %v", err)
	}
	if !strings.Contains(details["amount_cents"], "between 1 and") {
		t.Fatalf("unexpected amount detail %q", details["amount_cents"])
	}
	if details["name"] != "is required" {
		t.Fatalf("unexpected name detail %q", details["name"])
	}
}

func TestDecodeJSONBodyRejectsTrailingData(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","amount_cents":5}{"name":"y"}`))
	var body sampleBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyRejectsEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(" "))
	var body sampleBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSanitizeStringKeepsRunes(t *testing.T) {
	if got := SanitizeString("Zoë\x00 Ångström", 5); got != "Zoë Å" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestParseQueryBoolNumericTrue(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?unread=1", nil)
	got, err := ParseQueryBool(req, "unread")
	if err != nil || !got {
		t.Fatalf("expected true, got %v %v", got, err)
	}
	req = httptest.NewRequest(http.MethodGet, "/?unread=maybe", nil)
	if _, err := ParseQueryBool(req, "unread"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyReportsTypeMismatch(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","amount_cents":"ten"}`))
	var body sampleBody
	err := DecodeJSONBody(req, &body)
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	if !ok {
		t.Fatalf("expected decode details, got %v", err)
	}
	if details["field"] != "amount_cents" || details["expected"] != "int64" {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestDecodeJSONBodyRejectsStrayClosingBrace(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{\"name\":\"x\",\"amount_cents\":5}}\n"))
	var body sampleBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	ok := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{\"name\":\"x\",\"amount_cents\":5}\n\n"))
	if err := DecodeJSONBody(ok, &body); err != nil {
		t.Fatalf("trailing whitespace must be accepted, got %v", err)
	}
}
