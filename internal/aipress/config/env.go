package config

import (
	"os"
	"strconv"
)

// Exist сообщает, задана ли переменная окружения key.
func Exist(key string) bool {
	_, exist := os.LookupEnv(key)
	return exist
}

// GetEnv значение переменной окружения или пустая строка.
func GetEnv(key string) string {
	val, _ := os.LookupEnv(key)
	return val
}

// GetIntEnv числовое значение переменной. 0, если значение не число.
func GetIntEnv(key string) int {
	return parseEnv(key, strconv.Atoi)
}

// GetBoolEnv логическое значение переменной. false, если значение не разобрано.
func GetBoolEnv(key string) bool {
	return parseEnv(key, strconv.ParseBool)
}

func parseEnv[T any](key string, parse func(string) (T, error)) T {
	v, err := parse(GetEnv(key))
	if err != nil {
		var zero T
		return zero
	}
	return v
}
