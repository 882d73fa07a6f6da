package credentials

import (
	"bufio"
	"os"
	"strings"
)

// ReadFallbackFile loads candidates from a file with one username:password
// pair per line. Blank lines and lines starting with # are skipped. A line
// without a colon is an error.
func ReadFallbackFile(path string) ([]Candidate, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Msg: "failed to open fallback credentials", Err: err}
	}
	defer file.Close()

	var candidates []Candidate
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		candidate, err := ParseCandidate(line)
		if err != nil {
			return nil, &ConfigError{Path: path, Line: lineNum, Msg: "invalid fallback credential", Err: err}
		}
		candidates = append(candidates, candidate)
	}

	if err := scanner.Err(); err != nil {
		return nil, &ConfigError{Path: path, Msg: "failed to read fallback credentials", Err: err}
	}
	return candidates, nil
}

// ParseFallbacks parses "username:password" flag values in order.
func ParseFallbacks(values []string) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(values))
	for _, v := range values {
		candidate, err := ParseCandidate(v)
		if err != nil {
			return nil, &ConfigError{Path: "--fallback", Msg: "invalid fallback credential", Err: err}
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}
