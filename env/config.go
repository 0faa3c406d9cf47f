// Package env is an implementation of the env.Source interface from
// go-simpler.org, reading KEY=value pairs from a .env file.
package env

import (
	"os"
	"strings"

	"arbor.lol/chk"
)

// Env is a key/value map used to represent environment variables. This is
// implemented for go-simpler.org library.
type Env map[string]string

// GetEnv reads a file expected to represent a collection of KEY=value in
// standard shell environment variable format - ie, key usually in all upper
// case no spaces and words separated by underscore, value can have any
// separator, but usually comma, for an array of values.
//
// Blank lines and lines starting with # are skipped, and a value wrapped in
// matching single or double quotes is unwrapped.
func GetEnv(path string) (env Env, err error) {
	var s []byte
	if s, err = os.ReadFile(path); chk.T(err) {
		return
	}
	env = Parse(string(s))
	return
}

// Parse reads KEY=value lines from a string.
func Parse(s string) (env Env) {
	env = make(Env)
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		split := strings.SplitN(line, "=", 2)
		if len(split) != 2 {
			continue
		}
		key, value := strings.TrimSpace(split[0]), strings.TrimSpace(split[1])
		if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') &&
			value[len(value)-1] == value[0] {
			value = value[1 : len(value)-1]
		}
		env[key] = value
	}
	return
}

// LookupEnv returns the raw string value associated with a provided key name,
// used as a custom environment variable loader for go-simpler.org/env to enable
// .env file loading.
func (env Env) LookupEnv(key string) (value string, ok bool) {
	value, ok = env[key]
	return
}
