package db

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

func newCapturingQueryLogger(slow time.Duration) (*bytes.Buffer, gormlogger.Interface) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf, Format: logger.FormatJSON})
	return &buf, newQueryLogger(logg, slow)
}

func TestQueryLoggerReportsSlowAndFailedStatements(t *testing.T) {
	buf, ql := newCapturingQueryLogger(10 * time.Millisecond)
	sql := func() (string, int64) { return "SELECT 1", 1 }

	ql.Trace(context.Background(), time.Now(), sql, nil)
	if buf.Len() != 0 {
		t.Fatalf("fast query should not log, got %s", buf.String())
	}

	ql.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	if !strings.Contains(buf.String(), "slow query") || !strings.Contains(buf.String(), "SELECT 1") {
		t.Fatalf("expected slow query entry, got %s", buf.String())
	}

	buf.Reset()
	ql.Trace(context.Background(), time.Now(), sql, errors.New("syntax error"))
	if !strings.Contains(buf.String(), "query failed") {
		t.Fatalf("expected failure entry, got %s", buf.String())
	}
}

func TestQueryLoggerSkipsNotFoundAndSilent(t *testing.T) {
	buf, ql := newCapturingQueryLogger(0)
	sql := func() (string, int64) { return "SELECT * FROM carts", 0 }

	ql.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	ql.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now(), sql, errors.New("boom"))
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %s", buf.String())
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	if newQueryLogger(nil, time.Second) != gormlogger.Discard {
		t.Fatal("expected discard logger")
	}
}
