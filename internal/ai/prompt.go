package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/prlibrary/matching/internal/types"
)

const systemPrompt = `You merge duplicate records of the same journalist, company or publication that different organizations keep in a shared media database.
Answer with a single JSON object and nothing else.`

// promptVariant is the part of a variant the model sees
type promptVariant struct {
	Organization string            `json:"organization"`
	Record       types.ContactData `json:"record"`
}

// buildMergePrompt renders the variants and the merge rules
func buildMergePrompt(variants []types.Variant) (string, error) {
	in := make([]promptVariant, 0, len(variants))
	for _, v := range variants {
		org := v.OrganizationName
		if org == "" {
			org = v.OrganizationID
		}
		in = append(in, promptVariant{Organization: org, Record: v.Data})
	}
	payload, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode variants: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The following %d records describe the same entity:\n\n", len(variants))
	b.Write(payload)
	b.WriteString(`

Merge them into one record using the same field names:
- Prefer the most complete and most specific value for each scalar field.
- Keep every distinct email address, phone number, beat, media type and social profile.
- Mark exactly one email and at most one phone as isPrimary.
- Never invent values that do not appear in any record.
- Omit fields that no record has.

Respond with the merged record as a JSON object.`)
	return b.String(), nil
}
