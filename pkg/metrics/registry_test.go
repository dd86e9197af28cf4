package metrics

import (
	"database/sql"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrentals-backend/pkg/db"
)

type brokenPool struct{}

func (brokenPool) SQLDB() (*sql.DB, error) { return nil, errors.New("no pool") }

func TestRegisterDBStatsExportsPoolSeries(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	reg := NewRegistry()
	if err := RegisterDBStats(reg, db.FromConn(conn), "eventrentals"); err != nil {
		t.Fatalf("register: %v", err)
	}

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `go_sql_max_open_connections{db_name="eventrentals"}`) {
		t.Fatalf("pool stats missing from exposition")
	}

	if err := RegisterDBStats(reg, brokenPool{}, "other"); err == nil {
		t.Fatalf("expected pool error to surface")
	}
}
