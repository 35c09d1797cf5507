package db

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/biddart/biddart-backend/pkg/config"
	"github.com/biddart/biddart-backend/pkg/logger"
)

func dbConfig(driver string) config.DBConfig {
	return config.DBConfig{Driver: driver, DSN: "file::memory:"}
}

func newBufferedQueryLogger(t *testing.T) (*bytes.Buffer, gormlogger.Interface) {
	t.Helper()
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "db-test", Level: logger.ParseLevel("debug"), Output: buf})
	return buf, newQueryLogger(logg, 100*time.Millisecond)
}

func TestQueryLoggerSkipsFastQueries(t *testing.T) {
	buf, ql := newBufferedQueryLogger(t)
	ql.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)
	ql.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 0 }, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %s", buf.String())
	}
}

func TestQueryLoggerReportsSlowAndFailed(t *testing.T) {
	buf, ql := newBufferedQueryLogger(t)
	ql.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) { return "SELECT * FROM bids", 3 }, nil)
	if !bytes.Contains(buf.Bytes(), []byte("slow sql query")) {
		t.Fatalf("expected slow query entry, got %s", buf.String())
	}

	buf.Reset()
	ql.Trace(context.Background(), time.Now(), func() (string, int64) { return "INSERT INTO bids", 0 }, errors.New("duplicate key"))
	if !bytes.Contains(buf.Bytes(), []byte("sql query failed")) || !bytes.Contains(buf.Bytes(), []byte("INSERT INTO bids")) {
		t.Fatalf("expected failed query entry, got %s", buf.String())
	}

	buf.Reset()
	ql.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now(), func() (string, int64) { return "x", 0 }, errors.New("boom"))
	if buf.Len() != 0 {
		t.Fatalf("silent mode must not log")
	}
}

func TestDialectorFor(t *testing.T) {
	if _, err := dialectorFor(dbConfig("mysql")); err == nil {
		t.Fatal("expected unsupported driver error")
	}
	d, err := dialectorFor(dbConfig("sqlite"))
	if err != nil || d.Name() != "sqlite" {
		t.Fatalf("expected sqlite dialector, got %v %v", d, err)
	}
	d, err = dialectorFor(dbConfig(""))
	if err != nil || d.Name() != "postgres" {
		t.Fatalf("expected postgres default, got %v %v", d, err)
	}
}
