package protocol

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"regexp"
	"time"

	"github.com/ziutek/telnet"

	"neohunter/internal/core/lib/network/dialer"
	"neohunter/internal/core/model"
	"neohunter/internal/core/scanner/brute"
)

// TelnetChecker Telnet 口令验证
//
// 交互流程: 用户名提示 -> 发送用户名 -> 密码提示 -> 发送密码 -> 结果判定
//   - 成功: 出现 Shell 提示符 (#, $, >, %)
//   - 失败: 出现失败关键词，或再次出现登录提示
type TelnetChecker struct {
	reLogin    *regexp.Regexp
	rePassword *regexp.Regexp
	reShell    *regexp.Regexp
	reFail     *regexp.Regexp

	stepTimeout time.Duration
}

func NewTelnetChecker() *TelnetChecker {
	return &TelnetChecker{
		reLogin:     regexp.MustCompile(`(?i)(login|user\s*name|username|user)[\s:]*$`),
		rePassword:  regexp.MustCompile(`(?i)(password|pass)[\s:]*$`),
		reShell:     regexp.MustCompile(`[#$>%]\s*$`),
		reFail:      regexp.MustCompile(`(?i)(incorrect|failed|denied|bad|invalid)`),
		stepTimeout: 3 * time.Second,
	}
}

func (c *TelnetChecker) Name() string {
	return "telnet"
}

func (c *TelnetChecker) Extras() []model.Credential {
	return nil
}

func (c *TelnetChecker) Check(ctx context.Context, host string, port int, cred model.Credential) (brute.Hit, error) {
	conn, err := c.login(ctx, host, port, cred)
	if err != nil {
		return brute.Hit{}, err
	}
	conn.Close()
	return brute.Hit{OK: true}, nil
}

// login 完成登录交互，成功时返回停在 Shell 提示符之后的连接
func (c *TelnetChecker) login(ctx context.Context, host string, port int, cred model.Credential) (*telnet.Conn, error) {
	addr := net.JoinHostPort(host, fmt.Sprint(port))

	raw, err := dialer.Get().DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, brute.ErrConnectionFailed
	}
	conn, err := telnet.NewConn(raw)
	if err != nil {
		raw.Close()
		return nil, brute.ErrConnectionFailed
	}

	fail := func(err error) (*telnet.Conn, error) {
		conn.Close()
		return nil, err
	}

	conn.SetReadDeadline(c.deadline(ctx))
	conn.SetWriteDeadline(c.deadline(ctx))

	// 1. 等待登录或密码提示 (部分设备只要密码)
	data, err := c.readUntilMatch(conn, c.reLogin, c.rePassword)
	if err != nil {
		return fail(brute.ErrConnectionFailed)
	}

	if !c.rePassword.Match(data) {
		if err := c.sendLine(conn, cred.User); err != nil {
			return fail(brute.ErrConnectionFailed)
		}

		// 2. 等待密码提示
		conn.SetReadDeadline(c.deadline(ctx))
		if _, err := c.readUntilMatch(conn, c.rePassword); err != nil {
			return fail(brute.ErrAuthFailed)
		}
	}

	// 3. 发送密码
	if err := c.sendLine(conn, cred.Password); err != nil {
		return fail(brute.ErrConnectionFailed)
	}

	// 4. 判定
	conn.SetReadDeadline(c.deadline(ctx))
	if !c.checkResult(conn) {
		return fail(brute.ErrAuthFailed)
	}
	return conn, nil
}

// deadline 单步超时，不超过 ctx 截止时间
func (c *TelnetChecker) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.stepTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(d) {
		return dl
	}
	return d
}

// readUntilMatch 读取数据直到匹配任意一个正则，或者超时
func (c *TelnetChecker) readUntilMatch(conn *telnet.Conn, regexps ...*regexp.Regexp) ([]byte, error) {
	var buf []byte
	b := make([]byte, 1)

	for {
		n, err := conn.Read(b)
		if n > 0 {
			buf = append(buf, b[0])
			for _, re := range regexps {
				if re.Match(buf) {
					return buf, nil
				}
			}
		}
		if err != nil {
			return buf, err
		}
	}
}

func (c *TelnetChecker) sendLine(conn *telnet.Conn, msg string) error {
	_, err := conn.Write([]byte(msg + "\r\n"))
	return err
}

// checkResult 读取后续输出，出现 Shell 提示符视为成功
func (c *TelnetChecker) checkResult(conn *telnet.Conn) bool {
	var buf []byte
	b := make([]byte, 256)

	for {
		n, err := conn.Read(b)
		if n > 0 {
			buf = append(buf, b[:n]...)
			if c.reFail.Match(buf) || c.reLogin.Match(buf) {
				return false
			}
			if c.reShell.Match(buf) {
				return true
			}
		}
		if err != nil {
			return false
		}
	}
}

// DefaultTelnetCommandTimeout 会话内单条命令的最长等待
const DefaultTelnetCommandTimeout = time.Minute

// 结束标记在回显中带引号，只有 Shell 执行 echo 后才会出现完整标记
const (
	telnetMarker       = "__NH_END_%d__"
	telnetMarkerEchoed = "__NH_''END_%d__"
)

// TelnetSession 登录后的交互式会话，命令串行执行
type TelnetSession struct {
	checker *TelnetChecker
	conn    *telnet.Conn
	seq     int

	CommandTimeout time.Duration
}

// DialTelnet 登录并返回会话，错误为 brute.ErrConnectionFailed 或 brute.ErrAuthFailed
func DialTelnet(ctx context.Context, host string, port int, cred model.Credential) (*TelnetSession, error) {
	c := NewTelnetChecker()
	conn, err := c.login(ctx, host, port, cred)
	if err != nil {
		return nil, err
	}
	s := &TelnetSession{checker: c, conn: conn, CommandTimeout: DefaultTelnetCommandTimeout}
	// 吃掉登录横幅之后残留的提示符
	s.drainPrompt(200 * time.Millisecond)
	return s, nil
}

// Run 执行命令并返回输出 (换行统一为 \n)
// 输出以结束标记截断，命令自身的退出码不影响结果
func (s *TelnetSession) Run(ctx context.Context, cmd string) ([]byte, error) {
	s.seq++
	marker := fmt.Sprintf(telnetMarker, s.seq)
	echoed := fmt.Sprintf(telnetMarkerEchoed, s.seq)

	deadline := time.Now().Add(s.CommandTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	s.conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { s.conn.SetDeadline(time.Now()) })
	defer stop()

	if err := s.checker.sendLine(s.conn, fmt.Sprintf("%s; echo %s", cmd, echoed)); err != nil {
		return nil, err
	}
	raw, err := readUntilSuffix(s.conn, []byte(marker))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	out := raw[:len(raw)-len(marker)]

	// 终端回显的命令行
	if i := bytes.LastIndex(out, []byte(echoed)); i >= 0 {
		out = out[i+len(echoed):]
		if nl := bytes.IndexByte(out, '\n'); nl >= 0 {
			out = out[nl+1:]
		} else {
			out = nil
		}
	}

	// 标记之后的提示符
	s.drainPrompt(s.checker.stepTimeout)

	return bytes.ReplaceAll(out, []byte("\r\n"), []byte("\n")), nil
}

// drainPrompt 按块读取并丢弃，直到出现 Shell 提示符或超时
func (s *TelnetSession) drainPrompt(timeout time.Duration) {
	s.conn.SetReadDeadline(time.Now().Add(timeout))
	var buf []byte
	b := make([]byte, 256)
	for {
		n, err := s.conn.Read(b)
		buf = append(buf, b[:n]...)
		if s.checker.reShell.Match(buf) || err != nil {
			return
		}
	}
}

// readUntilSuffix 读到 suffix 为止，返回值包含 suffix
func readUntilSuffix(conn *telnet.Conn, suffix []byte) ([]byte, error) {
	var buf []byte
	for {
		b, err := conn.ReadByte()
		if err != nil {
			return buf, err
		}
		buf = append(buf, b)
		if bytes.HasSuffix(buf, suffix) {
			return buf, nil
		}
	}
}

func (s *TelnetSession) Close() error {
	return s.conn.Close()
}
