package database

import (
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

func TestOptionsDSN(t *testing.T) {
	dsn := Options{User: "app", Pass: "secret", Host: "db", Port: "3306", Name: "tickets"}.DSN()

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("expected parsable dsn, got %v", err)
	}
	if cfg.Addr != "db:3306" || cfg.DBName != "tickets" || cfg.User != "app" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !cfg.ParseTime || cfg.Loc != time.UTC {
		t.Fatalf("expected UTC time parsing, got parseTime=%v loc=%v", cfg.ParseTime, cfg.Loc)
	}
	if got := cfg.Params["time_zone"]; got != "'+00:00'" {
		t.Fatalf("expected pinned session time zone, got %q", got)
	}
}
