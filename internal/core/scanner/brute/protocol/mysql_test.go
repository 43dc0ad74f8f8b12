package protocol

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neohunter/internal/core/model"
	"neohunter/internal/core/scanner/brute"
)

func TestMySQLChecker_HandleError(t *testing.T) {
	c := NewMySQLChecker()

	tests := []struct {
		name     string
		errInput error
		want     error
	}{
		{
			name:     "Access Denied (Code 1045)",
			errInput: &mysql.MySQLError{Number: 1045, Message: "Access denied for user 'root'@'localhost'"},
			want:     brute.ErrAuthFailed,
		},
		{
			name:     "Timeout",
			errInput: errors.New("dial tcp 1.2.3.4:3306: i/o timeout"),
			want:     brute.ErrConnectionFailed,
		},
		{
			name:     "Connection Refused",
			errInput: errors.New("dial tcp 127.0.0.1:3306: connect: connection refused"),
			want:     brute.ErrConnectionFailed,
		},
		{
			name:     "Bad Connection",
			errInput: mysql.ErrInvalidConn,
			want:     brute.ErrConnectionFailed,
		},
		{
			name:     "Unknown Error",
			errInput: errors.New("some weird error"),
			want:     brute.ErrProtocolError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.handleError(tt.errInput))
		})
	}
}

func TestMySQLChecker_Check_NetworkError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hit, err := NewMySQLChecker().Check(ctx, "127.0.0.1", port, model.Credential{User: "root", Password: "123"})
	assert.False(t, hit.OK)
	assert.Equal(t, brute.ErrConnectionFailed, err)
}

func TestMySQLChecker_Check_ProtocolError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port

	go func() {
		conn, err := l.Accept()
		if err == nil {
			defer conn.Close()
			conn.Write([]byte("NOT MYSQL\n"))
			time.Sleep(100 * time.Millisecond)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hit, err := NewMySQLChecker().Check(ctx, "127.0.0.1", port, model.Credential{User: "root", Password: "123"})
	assert.False(t, hit.OK)
	assert.Error(t, err)
}
