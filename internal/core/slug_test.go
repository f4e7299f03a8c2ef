package core

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestDeriveSlug(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Eiffel Tower Tour", "eiffel-tower-tour"},
		{"  Eiffel -- Tower!! Tour  ", "eiffel-tower-tour"},
		{"Louvre: Skip-the-Line (2h)", "louvre-skip-the-line-2h"},
		{"Sacré-Cœur & Montmartre", "sacre-coeur-montmartre"},
		{"100% Paris", "100-paris"},
		{"---", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := DeriveSlug(tt.title); got != tt.want {
				t.Errorf("DeriveSlug(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestSlugResolver_Resolve(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		taken []string
		title string
		want  string
	}{
		{name: "free base", title: "Eiffel Tower Tour", want: "eiffel-tower-tour"},
		{name: "base taken", taken: []string{"eiffel-tower-tour"}, title: "Eiffel Tower Tour", want: "eiffel-tower-tour-1"},
		{
			name:  "first free suffix",
			taken: []string{"eiffel-tower-tour", "eiffel-tower-tour-1", "eiffel-tower-tour-2"},
			title: "Eiffel Tower Tour",
			want:  "eiffel-tower-tour-3",
		},
		{name: "no alphanumerics", title: "!!!", want: DefaultSlug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.seed("experiences", tt.taken...)
			store.seed("categories", tt.want)

			got, err := NewSlugResolver(store).Resolve(ctx, tt.title, "experiences")
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestSlugResolver_StoreError(t *testing.T) {
	store := newFakeStore()
	store.findErr = ErrStoreUnavailable

	_, err := NewSlugResolver(store).Resolve(context.Background(), "Eiffel Tower Tour", "experiences")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Resolve() error = %v, want ErrStoreUnavailable", err)
	}
}

func TestSlugResolver_GivesUp(t *testing.T) {
	old := MaxSlugAttempts
	MaxSlugAttempts = 3
	defer func() { MaxSlugAttempts = old }()

	store := newFakeStore()
	store.seed("experiences", "tour", "tour-1", "tour-2", "tour-3")

	_, err := NewSlugResolver(store).Resolve(context.Background(), "Tour", "experiences")
	if err == nil || !strings.Contains(err.Error(), "no free slug") {
		t.Errorf("Resolve() error = %v, want no free slug", err)
	}
	if store.finds != 3 {
		t.Errorf("FindBySlug calls = %d, want 3", store.finds)
	}
}
