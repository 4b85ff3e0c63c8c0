// Package export writes matching candidates as XLSX workbooks.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/prlibrary/matching/internal/types"
)

// Sheet names
const (
	CandidatesSheet = "Candidates"
	VariantsSheet   = "Variants"
)

var candidateHeaders = []string{
	"Candidate ID",
	"Type",
	"Match Key",
	"Status",
	"Score",
	"Confidence",
	"Organizations",
	"Merged Name",
	"Merged Email",
	"Merged Phone",
	"Merge Source",
	"Reviewed By",
	"Updated At",
}

var variantHeaders = []string{
	"Candidate ID",
	"Organization ID",
	"Organization",
	"Source Record",
	"Name",
	"Email",
	"Phone",
	"Website",
	"Scanned At",
}

// WriteCandidates writes one row per candidate to the Candidates sheet and
// one row per variant to the Variants sheet.
func WriteCandidates(w io.Writer, candidates []*types.MatchingCandidate) error {
	f := excelize.NewFile()
	defer f.Close()

	// the default sheet becomes the candidates sheet
	if err := f.SetSheetName(f.GetSheetName(0), CandidatesSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(VariantsSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := writeRow(f, CandidatesSheet, 1, toAny(candidateHeaders)); err != nil {
		return err
	}
	if err := writeRow(f, VariantsSheet, 1, toAny(variantHeaders)); err != nil {
		return err
	}

	crow, vrow := 2, 2
	for _, c := range candidates {
		var name, email, phone string
		if c.Merged != nil {
			name, email, phone = c.Merged.Name(), c.Merged.PrimaryEmail(), c.Merged.PrimaryPhone()
		}
		err := writeRow(f, CandidatesSheet, crow, []any{
			c.ID,
			string(c.EntityType),
			c.MatchKey,
			string(c.Status),
			c.Score,
			string(c.Confidence),
			c.OrganizationCount,
			name,
			email,
			phone,
			string(c.MergeSource),
			c.ReviewedBy,
			formatTime(c.UpdatedAt),
		})
		if err != nil {
			return err
		}
		crow++

		for i := range c.Variants {
			v := &c.Variants[i]
			err := writeRow(f, VariantsSheet, vrow, []any{
				c.ID,
				v.OrganizationID,
				v.OrganizationName,
				v.SourceEntityID,
				v.Data.Name(),
				v.Data.PrimaryEmail(),
				v.Data.PrimaryPhone(),
				v.Data.Website,
				formatTime(v.ScannedAt),
			})
			if err != nil {
				return err
			}
			vrow++
		}
	}

	_ = f.SetColWidth(CandidatesSheet, "A", "A", 38)
	_ = f.SetColWidth(CandidatesSheet, "C", "C", 36)
	_ = f.SetColWidth(CandidatesSheet, "H", "I", 32)
	_ = f.SetColWidth(VariantsSheet, "A", "A", 38)
	_ = f.SetColWidth(VariantsSheet, "E", "F", 32)
	for _, sheet := range []string{CandidatesSheet, VariantsSheet} {
		if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
			return fmt.Errorf("freeze header of %s: %w", sheet, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
