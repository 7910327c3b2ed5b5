package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadHeadersFile reads a headers file with one "Key: Value" pair per line.
// Blank lines and lines starting with '#' are ignored.
func LoadHeadersFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open headers file: %w", err)
	}
	defer f.Close()

	headers := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("headers file %s line %d: expected \"Key: Value\"", path, lineNo)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("headers file %s line %d: empty header name", path, lineNo)
		}
		headers[key] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read headers file: %w", err)
	}

	return headers, nil
}

// RequestHeaders merges the headers file with inline headers. Inline
// headers win on conflict.
func (c *Config) RequestHeaders() (map[string]string, error) {
	merged := make(map[string]string)
	if c.HeadersFile != "" {
		fromFile, err := LoadHeadersFile(c.HeadersFile)
		if err != nil {
			return nil, err
		}
		for k, v := range fromFile {
			merged[k] = v
		}
	}
	for k, v := range c.Headers {
		merged[k] = v
	}
	if _, ok := lookupHeader(merged, "User-Agent"); !ok && c.API.UserAgent != "" {
		merged["User-Agent"] = c.API.UserAgent
	}
	return merged, nil
}

// HasCookie reports whether a Cookie header is configured.
func HasCookie(headers map[string]string) bool {
	_, ok := lookupHeader(headers, "Cookie")
	return ok
}

func lookupHeader(headers map[string]string, name string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}
