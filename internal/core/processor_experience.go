package core

import (
	"context"
)

// ExperienceProcessor commits rows of experience templates.
//
// References: category -> categories, city -> cities, both by slug.
type ExperienceProcessor struct {
	baseProcessor
}

func (p *ExperienceProcessor) TargetType() TargetType { return TargetExperience }

// experienceReserved are columns mapped to dedicated record parts rather than
// copied into Fields.
var experienceReserved = map[string]bool{
	"title":            true,
	"slug":             true,
	"category":         true,
	"city":             true,
	"meta_title":       true,
	"meta_description": true,
}

// Process maps row to an experience record and inserts it as a draft.
func (p *ExperienceProcessor) Process(ctx context.Context, row RawRow, tmpl Template) ProcessResult {
	row = applyDefaults(row, tmpl)
	collection := TargetExperience.Collection()

	res := ProcessResult{Title: fieldString(row, "title")}
	if res.Title == "" {
		res.Errors = append(res.Errors, "title is empty")
		return res
	}

	slug, err := p.slugFor(ctx, row, res.Title, collection)
	if err != nil {
		return failResult(res, err)
	}
	res.Slug = slug

	refs := map[string]string{}
	if err := p.reference(ctx, row, "category", TargetCategory.Collection(), refs, &res.Warnings); err != nil {
		return failResult(res, err)
	}
	if err := p.reference(ctx, row, "city", "cities", refs, &res.Warnings); err != nil {
		return failResult(res, err)
	}

	fields := extraFields(row, experienceReserved)
	description := fieldString(row, "short_description")
	if description == "" {
		description = fieldString(row, "description")
	}

	rec := ContentRecord{
		Collection:     collection,
		Slug:           slug,
		Title:          res.Title,
		Fields:         fields,
		References:     refs,
		SEO:            seoFor(res.Title, description, "/experiences/"+slug, row),
		StructuredData: experienceStructuredData(res.Title, description, row),
		SourceJobID:    JobIDFromContext(ctx),
		SourceRow:      row.RowNumber,
	}
	return p.persist(ctx, rec, res)
}

// experienceStructuredData builds the schema.org TouristTrip document. An
// offer is only included when the row carries a price.
func experienceStructuredData(title, description string, row RawRow) map[string]any {
	doc := map[string]any{
		"@context": "https://schema.org",
		"@type":    "TouristTrip",
		"name":     title,
	}
	if description != "" {
		doc["description"] = description
	}
	if price, ok := fieldValue(row, "price").Num(); ok {
		offer := map[string]any{
			"@type": "Offer",
			"price": price,
		}
		if cur := fieldString(row, "currency"); cur != "" {
			offer["priceCurrency"] = cur
		}
		doc["offers"] = offer
	}
	if img := fieldString(row, "image_url"); img != "" {
		doc["image"] = img
	}
	return doc
}
