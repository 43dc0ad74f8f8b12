package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// EnvLoader 环境变量加载器
// @author: sun977
// @date: 2025.01.14
// @description: 在 viper 读取配置之前加载 .env，并提供带前缀的变量读写 (命令行参数覆盖配置走这里)
type EnvLoader struct {
	prefix   string   // 环境变量前缀
	envFiles []string // .env文件路径列表
	loaded   []string // 实际加载的文件
}

// NewEnvLoader 创建环境变量加载器，未指定文件时依次尝试 ./.env 和 ./configs/.env
func NewEnvLoader(prefix string, envFiles ...string) *EnvLoader {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	if len(envFiles) == 0 {
		envFiles = []string{".env", "configs/.env"}
	}
	return &EnvLoader{
		prefix:   prefix,
		envFiles: envFiles,
	}
}

// Load 加载 .env 文件，不覆盖已存在的进程环境变量
// 文件不存在不算错误
func (e *EnvLoader) Load() error {
	for _, envFile := range e.envFiles {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
		e.loaded = append(e.loaded, envFile)
	}
	return nil
}

// Loaded 已加载的 .env 文件
func (e *EnvLoader) Loaded() []string {
	return e.loaded
}

// Key 配置键对应的环境变量名，log.level -> NEOHUNTER_LOG_LEVEL
func (e *EnvLoader) Key(name string) string {
	name = strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(name))
	return e.prefix + "_" + name
}

// Lookup 读取带前缀的环境变量
func (e *EnvLoader) Lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(e.Key(name))
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Set 写入带前缀的环境变量，空值忽略
// 之后的 LoadConfig 与热重载都会读到该值
func (e *EnvLoader) Set(name, value string) error {
	if value == "" {
		return nil
	}
	return os.Setenv(e.Key(name), value)
}
