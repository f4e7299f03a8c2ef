package core

import "context"

// CategoryProcessor commits rows of category templates. Categories may be
// titled by either a title or a name column and can nest under a parent
// category given by slug.
type CategoryProcessor struct {
	baseProcessor
}

func (p *CategoryProcessor) TargetType() TargetType { return TargetCategory }

var categoryReserved = map[string]bool{
	"title":            true,
	"name":             true,
	"slug":             true,
	"parent_category":  true,
	"meta_title":       true,
	"meta_description": true,
}

// Process maps row to a category record and inserts it as a draft.
func (p *CategoryProcessor) Process(ctx context.Context, row RawRow, tmpl Template) ProcessResult {
	row = applyDefaults(row, tmpl)
	collection := TargetCategory.Collection()

	res := ProcessResult{Title: rowTitle(row)}
	if res.Title == "" {
		res.Errors = append(res.Errors, "name is empty")
		return res
	}

	slug, err := p.slugFor(ctx, row, res.Title, collection)
	if err != nil {
		return failResult(res, err)
	}
	res.Slug = slug

	refs := map[string]string{}
	if err := p.reference(ctx, row, "parent_category", collection, refs, &res.Warnings); err != nil {
		return failResult(res, err)
	}

	description := fieldString(row, "description")
	structured := map[string]any{
		"@context": "https://schema.org",
		"@type":    "CollectionPage",
		"name":     res.Title,
	}
	if description != "" {
		structured["description"] = description
	}

	rec := ContentRecord{
		Collection:     collection,
		Slug:           slug,
		Title:          res.Title,
		Fields:         extraFields(row, categoryReserved),
		References:     refs,
		SEO:            seoFor(res.Title, description, "/categories/"+slug, row),
		StructuredData: structured,
		SourceJobID:    JobIDFromContext(ctx),
		SourceRow:      row.RowNumber,
	}
	return p.persist(ctx, rec, res)
}
