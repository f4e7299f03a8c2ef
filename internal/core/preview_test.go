package core_test

import (
	"errors"
	"testing"

	"github.com/JonMunkholm/bulkimport/internal/core"
)

func TestService_Preview(t *testing.T) {
	ctx := testContext(t)
	h := newHarness(t, nil, core.ServiceConfig{})
	h.content.Seed("experiences", "louvre-highlights", "Louvre Highlights")

	csv := "title,price_number,city,colour\n" +
		"Eiffel Tower Tour,29,paris,red\n" +
		"Louvre Highlights,45,paris,\n" +
		",15,,\n" +
		"Eiffel Tower Tour,31,,\n"

	got, err := h.svc.Preview(ctx, "experience-e2e", []byte(csv))
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}

	want := core.PreviewSummary{TotalRows: 4, NewRows: 1, RenamedRows: 1, ErrorRows: 2, DuplicateInFile: 1}
	if got.Summary != want {
		t.Errorf("Summary = %+v, want %+v", got.Summary, want)
	}
	if len(got.UnknownColumns) != 1 || got.UnknownColumns[0] != "colour" {
		t.Errorf("UnknownColumns = %v, want [colour]", got.UnknownColumns)
	}
	if len(got.MissingColumns) != 0 {
		t.Errorf("MissingColumns = %v, want none", got.MissingColumns)
	}
	if len(got.RowSamples) != 2 || !got.RowSamples[1].Renamed || got.RowSamples[0].Slug != "eiffel-tower-tour" {
		t.Errorf("RowSamples = %+v", got.RowSamples)
	}
	if len(got.DuplicateSamples) != 1 || got.DuplicateSamples[0].Slug != "eiffel-tower-tour" {
		t.Errorf("DuplicateSamples = %+v", got.DuplicateSamples)
	}
	if len(got.ErrorSamples) != 2 || got.ErrorSamples[0].RowNumber != 3 || got.ErrorSamples[1].RowNumber != 4 {
		t.Errorf("ErrorSamples = %+v", got.ErrorSamples)
	}

	// Nothing was written.
	if slugs := h.content.Slugs("experiences"); len(slugs) != 1 {
		t.Errorf("store slugs = %v, want only the seeded one", slugs)
	}
}

func TestService_PreviewMissingColumns(t *testing.T) {
	ctx := testContext(t)
	h := newHarness(t, nil, core.ServiceConfig{})

	got, err := h.svc.Preview(ctx, "experience-e2e", []byte("title\nSeine Cruise\n"))
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if len(got.MissingColumns) != 1 || got.MissingColumns[0] != "price_number" {
		t.Errorf("MissingColumns = %v, want [price_number]", got.MissingColumns)
	}
	if got.Summary.ErrorRows != 1 {
		t.Errorf("ErrorRows = %d, want 1", got.Summary.ErrorRows)
	}

	if _, err := h.svc.Preview(ctx, "experience-retired", []byte("title\nx\n")); !errors.Is(err, core.ErrTemplateInactive) {
		t.Errorf("Preview(inactive) error = %v, want ErrTemplateInactive", err)
	}
}
