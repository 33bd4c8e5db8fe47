package accountloader

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"networth_aggregator/internal/domain/entity"

	"github.com/sirupsen/logrus"
)

// LoadAccounts reads one 0x address per line. Blank lines and '#' comments are
// ignored; malformed or zero addresses are skipped. Duplicates are dropped.
func LoadAccounts(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open accounts file %s: %w", filePath, err)
	}
	defer file.Close()

	var accounts []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addr, ok := entity.ParseAddress(line)
		if !ok {
			logrus.Warnf("Skipping invalid account address at %s:%d: %q", filePath, lineNum, line)
			continue
		}
		hex := addr.Hex()
		if _, dup := seen[hex]; dup {
			continue
		}
		seen[hex] = struct{}{}
		accounts = append(accounts, hex)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning accounts file %s: %w", filePath, err)
	}
	return accounts, nil
}
