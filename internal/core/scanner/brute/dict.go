package brute

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"neohunter/internal/core/model"
)

// DefaultTopUsers 内置 Top 用户名，字典文件缺失时使用
var DefaultTopUsers = []string{
	"root", "admin", "user", "test", "guest",
	"pi", "ftp", "mysql", "administrator",
}

// DefaultTopPasswords 内置 Top 弱口令
var DefaultTopPasswords = []string{
	"123456", "password", "12345678", "12345", "123",
	"root", "admin", "raspberry", "test", "111111",
	"%user%", "%user%123", "%user%@123",
}

// Dict 用户名/密码字典
type Dict struct {
	Users     []string
	Passwords []string
}

// LoadDict 从文件加载字典，文件不存在时回落到内置列表
func LoadDict(usersFile, passwordsFile string) (*Dict, error) {
	users, err := readWordList(usersFile, DefaultTopUsers)
	if err != nil {
		return nil, fmt.Errorf("load users dictionary: %w", err)
	}
	passwords, err := readWordList(passwordsFile, DefaultTopPasswords)
	if err != nil {
		return nil, fmt.Errorf("load passwords dictionary: %w", err)
	}
	return &Dict{Users: users, Passwords: passwords}, nil
}

// Generate 生成尝试空间: 用户名 × 密码，%user% 替换为当前用户名
func (d *Dict) Generate() []model.Credential {
	creds := model.CrossProduct(d.Users, d.Passwords)
	for i := range creds {
		creds[i].Password = strings.ReplaceAll(creds[i].Password, "%user%", creds[i].User)
	}
	return creds
}

// readWordList 每行一个词，忽略空行与 # 注释
func readWordList(path string, fallback []string) ([]string, error) {
	if path == "" {
		return fallback, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fallback, nil
		}
		return nil, err
	}
	defer f.Close()

	var words []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		w := strings.TrimSpace(sc.Text())
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		words = append(words, w)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return fallback, nil
	}
	return words, nil
}
