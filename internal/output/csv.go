package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/keanuharrell/catrole/internal/core"
)

const timestampLayout = "20060102150405"

var patternReplacer = strings.NewReplacer("*", "STAR", "?", "Q", "/", "_")

// RowsFileName returns the export file name for a role or policy scan.
func RowsFileName(entityType, account, name string, now time.Time) string {
	return fmt.Sprintf("iam-%s_%s_%s_%s.csv", entityType, account, strings.ReplaceAll(name, "/", "_"), now.Format(timestampLayout))
}

// SearchFileName returns the export file name for a search.
func SearchFileName(pattern string, now time.Time) string {
	return fmt.Sprintf("iam-search_%s_%s.csv", patternReplacer.Replace(pattern), now.Format(timestampLayout))
}

// WriteRowsCSV exports permission rows into dir and returns the file path.
func WriteRowsCSV(dir, entityType, account, name string, rows []core.PermissionRow, now time.Time) (string, error) {
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.Fields())
	}
	path := filepath.Join(dir, RowsFileName(entityType, account, name, now))
	if err := writeCSV(path, core.PermissionRowHeader, records); err != nil {
		return "", err
	}
	return path, nil
}

// SearchRecords flattens search results into export records, roles first
// and then policies.
func SearchRecords(results []core.AccountSearchResult) [][]string {
	var roles, policies [][]string
	for _, r := range results {
		for _, role := range r.Roles {
			roles = append(roles, []string{r.AccountName, r.AccountID, "Role", role.RoleName, strings.Join(role.AttachedPolicies, ", ")})
		}
		for _, policy := range r.Policies {
			policies = append(policies, []string{r.AccountName, r.AccountID, "Policy", policy.PolicyArn, ""})
		}
	}
	return append(roles, policies...)
}

// WriteSearchCSV exports search results into dir. It writes nothing and
// returns an empty path when there are no records.
func WriteSearchCSV(dir, pattern string, results []core.AccountSearchResult, now time.Time) (string, error) {
	records := SearchRecords(results)
	if len(records) == 0 {
		return "", nil
	}
	path := filepath.Join(dir, SearchFileName(pattern, now))
	if err := writeCSV(path, core.SearchExportHeader, records); err != nil {
		return "", err
	}
	return path, nil
}

func writeCSV(path string, header []string, records [][]string) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.WriteAll(records); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
