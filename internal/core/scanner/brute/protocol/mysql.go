package protocol

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"neohunter/internal/core/model"
	"neohunter/internal/core/scanner/brute"
)

// MySQLChecker MySQL 口令验证，成功后列出可见库
type MySQLChecker struct{}

func NewMySQLChecker() *MySQLChecker {
	return &MySQLChecker{}
}

func (c *MySQLChecker) Name() string {
	return "mysql"
}

func (c *MySQLChecker) Extras() []model.Credential {
	return nil
}

// Check 验证 MySQL 凭据
func (c *MySQLChecker) Check(ctx context.Context, host string, port int, cred model.Credential) (brute.Hit, error) {
	db, err := OpenMySQL(host, port, cred, "")
	if err != nil {
		return brute.Hit{}, c.handleError(err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return brute.Hit{}, c.handleError(err)
	}

	databases, err := ListDatabases(ctx, db)
	if err != nil {
		return brute.Hit{}, c.handleError(err)
	}
	return brute.Hit{OK: true, Extras: databases}, nil
}

// OpenMySQL 打开单连接数据库句柄 (窃取动作复用)
func OpenMySQL(host string, port int, cred model.Credential, database string) (*sql.DB, error) {
	cfg := mysql.NewConfig()
	cfg.User = cred.User
	cfg.Passwd = cred.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, fmt.Sprint(port))
	cfg.DBName = database
	cfg.Timeout = 5 * time.Second
	cfg.ReadTimeout = 10 * time.Second

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(time.Minute)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// ListDatabases SHOW DATABASES
func ListDatabases(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SHOW DATABASES")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// handleError 将底层错误转换为标准错误
func (c *MySQLChecker) handleError(err error) error {
	if err == nil {
		return nil
	}

	var driverErr *mysql.MySQLError
	if errors.As(err, &driverErr) {
		switch driverErr.Number {
		case 1045, 1044: // Access denied
			return brute.ErrAuthFailed
		}
	}

	msg := strings.ToLower(err.Error())

	if strings.Contains(msg, "access denied") {
		return brute.ErrAuthFailed
	}

	if strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no route to host") ||
		strings.Contains(msg, "network is unreachable") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "bad connection") ||
		strings.Contains(msg, "deadline exceeded") ||
		errors.Is(err, mysql.ErrInvalidConn) {
		return brute.ErrConnectionFailed
	}

	return brute.ErrProtocolError
}
