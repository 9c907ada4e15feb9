package config

import (
	"os"
	"strconv"
	"time"
)

// envReader は環境変数を読み取り、未設定の必須項目と解釈できなかった項目を記録する。
// 解釈できない値は既定値にフォールバックする。
type envReader struct {
	lookup  func(string) (string, bool)
	missing []string
	invalid []string
}

func newEnvReader() *envReader {
	return &envReader{lookup: os.LookupEnv}
}

func (e *envReader) raw(key string) string {
	v, _ := e.lookup(key)
	return v
}

func (e *envReader) required(key string) string {
	v := e.raw(key)
	if v == "" {
		e.missing = append(e.missing, key)
	}
	return v
}

func (e *envReader) getString(key, def string) string {
	if v := e.raw(key); v != "" {
		return v
	}
	return def
}

func (e *envReader) getInt(key string, def int) int {
	return parseEnv(e, key, def, strconv.Atoi)
}

func (e *envReader) getInt64(key string, def int64) int64 {
	return parseEnv(e, key, def, func(s string) (int64, error) {
		return strconv.ParseInt(s, 10, 64)
	})
}

func (e *envReader) getDuration(key string, def time.Duration) time.Duration {
	return parseEnv(e, key, def, time.ParseDuration)
}

func parseEnv[T any](e *envReader, key string, def T, parse func(string) (T, error)) T {
	v := e.raw(key)
	if v == "" {
		return def
	}
	parsed, err := parse(v)
	if err != nil {
		e.invalid = append(e.invalid, key)
		return def
	}
	return parsed
}
