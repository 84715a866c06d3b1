package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoSymbols is returned when no symbols could be resolved from any source.
var ErrNoSymbols = errors.New("no symbols provided: use --symbols, --symbols-file, or configure symbols or symbols_file")

// NormalizeSymbols trims and upper-cases symbols, dropping empty entries.
// Order and duplicates are preserved.
func NormalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// LoadSymbolsFile reads one symbol per line. Blank lines and lines starting
// with '#' are skipped.
func LoadSymbolsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read symbols file: %w", err)
	}
	defer f.Close()

	var symbols []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		symbols = append(symbols, strings.ToUpper(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read symbols file: %w", err)
	}

	if len(symbols) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoSymbols)
	}
	return symbols, nil
}

// ResolveSymbols picks the symbol list for a run. Priority: symbols given on the
// command line, then the --symbols-file flag, then the configured symbols list,
// then the configured symbols file.
func ResolveSymbols(cli []string, file string, c *Config) ([]string, error) {
	if syms := NormalizeSymbols(cli); len(syms) > 0 {
		return syms, nil
	}

	if file != "" {
		return LoadSymbolsFile(file)
	}

	if c != nil {
		if syms := NormalizeSymbols(c.Symbols); len(syms) > 0 {
			return syms, nil
		}
		if c.SymbolsFile != "" {
			return LoadSymbolsFile(c.SymbolsFile)
		}
	}

	return nil, ErrNoSymbols
}
