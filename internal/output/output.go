// Package output renders permission rows and search results as terminal
// tables, indented JSON and CSV exports.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/keanuharrell/catrole/internal/core"
)

// WarningGlyph prefixes per-account error lines.
const WarningGlyph = "⚠"

// Printer writes human-readable output to a single writer.
type Printer struct {
	w     io.Writer
	allow *color.Color
	deny  *color.Color
	warn  *color.Color
}

// NewPrinter creates a printer. With noColor set, Allow/Deny and warnings
// are written without ANSI escapes.
func NewPrinter(w io.Writer, noColor bool) *Printer {
	p := &Printer{
		w:     w,
		allow: color.New(color.FgGreen),
		deny:  color.New(color.FgRed),
		warn:  color.New(color.FgYellow),
	}
	if noColor {
		p.allow.DisableColor()
		p.deny.DisableColor()
		p.warn.DisableColor()
	} else {
		p.allow.EnableColor()
		p.deny.EnableColor()
		p.warn.EnableColor()
	}
	return p
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func (p *Printer) effect(effect string) string {
	switch effect {
	case "Allow":
		return p.allow.Sprint(effect)
	case "Deny":
		return p.deny.Sprint(effect)
	default:
		return effect
	}
}

// Permissions prints the rows of one role or policy scan. entityType is
// "role" or "policy".
func (p *Printer) Permissions(rows []core.PermissionRow, entityType, name, account string) {
	if len(rows) == 0 {
		fmt.Fprintf(p.w, "No permissions found for %s '%s' in account %s.\n", entityType, name, account)
		return
	}

	table := newTable(p.w, []string{"#", "Policy Name", "Type", "Sid", "Effect", "Action", "Resource", "Condition"})
	for i, row := range rows {
		table.Append([]string{
			strconv.Itoa(i + 1),
			row.PolicyName,
			string(row.PolicyType),
			row.Sid,
			p.effect(row.Effect),
			row.Action,
			row.Resource,
			row.Condition,
		})
	}
	table.Render()

	fmt.Fprintf(p.w, "\n%d permission entries found.\n", len(rows))
}

// Warnings prints one line per result that carries an error.
func (p *Printer) Warnings(results []core.AccountSearchResult) {
	for _, r := range results {
		if r.Error != "" {
			p.Warning(r.AccountName, r.AccountID, r.Error)
		}
	}
}

// Warning prints a single account error line.
func (p *Printer) Warning(accountName, accountID, msg string) {
	fmt.Fprintln(p.w, p.warn.Sprintf("%s %s (%s): %s", WarningGlyph, accountName, accountID, msg))
}

// SearchResults prints the roles and policies tables of a search.
func (p *Printer) SearchResults(results []core.AccountSearchResult, pattern string) {
	var roleRows, policyRows [][]string
	for _, r := range results {
		for _, role := range r.Roles {
			roleRows = append(roleRows, []string{
				strconv.Itoa(len(roleRows) + 1),
				r.AccountName,
				r.AccountID,
				role.RoleName,
				joinAttached(role.AttachedPolicies),
			})
		}
		for _, policy := range r.Policies {
			policyRows = append(policyRows, []string{
				strconv.Itoa(len(policyRows) + 1),
				r.AccountName,
				r.AccountID,
				policy.PolicyArn,
			})
		}
	}

	if len(roleRows) == 0 && len(policyRows) == 0 {
		fmt.Fprintf(p.w, "No roles or policies matching '%s' found across the organization.\n", pattern)
		return
	}

	if len(roleRows) > 0 {
		fmt.Fprintf(p.w, "\nRoles matching '%s' (%d)\n", pattern, len(roleRows))
		table := newTable(p.w, []string{"#", "Account Name", "Account ID", "Role Name", "Attached Policies"})
		table.AppendBulk(roleRows)
		table.Render()
	}

	if len(policyRows) > 0 {
		fmt.Fprintf(p.w, "\nPolicies matching '%s' (%d)\n", pattern, len(policyRows))
		table := newTable(p.w, []string{"#", "Account Name", "Account ID", "Policy ARN"})
		table.AppendBulk(policyRows)
		table.Render()
	}
}

func joinAttached(names []string) string {
	if len(names) == 0 {
		return core.Placeholder
	}
	return strings.Join(names, ", ")
}

// JSON writes v to w as indented JSON.
func JSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
