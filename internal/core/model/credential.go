package model

import (
	"strconv"
	"strings"
)

// Credential 一组待尝试的用户名/密码
type Credential struct {
	User     string
	Password string
}

// CrossProduct 用户名 × 密码 组成完整的尝试空间
func CrossProduct(users, passwords []string) []Credential {
	out := make([]Credential, 0, len(users)*len(passwords))
	for _, u := range users {
		for _, p := range passwords {
			out = append(out, Credential{User: u, Password: p})
		}
	}
	return out
}

// CrackedRecord 一条已破解的凭据
// Extra 为协议附加列 (SMB 的 Share、SQL 的 Database)，没有则为空
type CrackedRecord struct {
	MAC      string
	IP       string
	Hostname string
	User     string
	Password string
	Port     int
	Extra    string
}

// Row 转为 CSV 行，hasExtra 决定是否带附加列
func (r CrackedRecord) Row(hasExtra bool) []string {
	row := []string{r.MAC, r.IP, r.Hostname, r.User, r.Password, strconv.Itoa(r.Port)}
	if hasExtra {
		row = append(row, r.Extra)
	}
	return row
}

// Key 去重键
func (r CrackedRecord) Key() string {
	return strings.Join(r.Row(true), "\x00")
}

// Observation 一次发现得到的主机信息
type Observation struct {
	MAC      string
	IP       string
	Hostname string
	Ports    []int
}
