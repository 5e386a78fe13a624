package mutate

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Dictionary is a de-duplicated list of tokens used by the dictionary mutations.
type Dictionary [][]byte

// LoadDictionary reads an AFL-style dictionary file.
func LoadDictionary(path string) (Dictionary, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dict file %s: %w", path, err)
	}
	dict, err := ParseDictionary(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse dict file %s: %w", path, err)
	}
	return dict, nil
}

// ParseDictionary accepts `name="value"`, `"value"` and bare token lines.
// Empty lines and comments are skipped, duplicates are dropped.
func ParseDictionary(content string) (Dictionary, error) {
	seen := make(map[string]struct{})
	var dict Dictionary

	for n, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		token := []byte(line)
		if first := strings.IndexByte(line, '"'); first >= 0 {
			last := strings.LastIndexByte(line, '"')
			if last == first {
				return nil, fmt.Errorf("line %d: unterminated token", n+1)
			}
			var err error
			token, err = unescapeToken(line[first+1 : last])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", n+1, err)
			}
		}
		if len(token) == 0 {
			continue
		}

		if _, ok := seen[string(token)]; ok {
			continue
		}
		seen[string(token)] = struct{}{}
		dict = append(dict, token)
	}
	return dict, nil
}

func unescapeToken(s string) ([]byte, error) {
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			buf.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			return nil, fmt.Errorf("dangling escape in %q", s)
		}
		i++
		switch s[i] {
		case '\\', '"':
			buf.WriteByte(s[i])
		case 'x':
			if i+2 >= len(s) {
				return nil, fmt.Errorf("short \\x escape in %q", s)
			}
			v, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				return nil, fmt.Errorf("bad \\x escape in %q: %w", s, err)
			}
			buf.WriteByte(byte(v))
			i += 2
		default:
			return nil, fmt.Errorf("unknown escape \\%c in %q", s[i], s)
		}
	}
	return buf.Bytes(), nil
}
