package entries

import (
	"bookshelf/pkg/models"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

// Fields is the client-supplied part of an Entry. Every optional field is a
// pointer or nil-able slice so that "absent" is kept apart from a zero value.
type Fields struct {
	Title          string                `json:"title"`
	Author         string                `json:"author"`
	Recommended    *bool                 `json:"recommended"`
	Rating         *int                  `json:"rating" validate:"omitempty,min=0,max=5"`
	Format         *string               `json:"formato" validate:"omitempty,oneof=digital physical both"`
	PageNumber     *int                  `json:"pageNumber" validate:"omitempty,min=0"`
	StartDate      *string               `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate        *string               `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	FavCharacter   *string               `json:"favCharacter"`
	HatedCharacter *string               `json:"hatedCharacter"`
	RatingDetails  *models.RatingDetails `json:"ratingDetails"`
	Genre          *string               `json:"genre"`
	FavPhrases     []string              `json:"favPhrases"`
	Review         *string               `json:"review"`
}

// columnMapping pairs every wire name of an Entry with its stored column.
// It must stay total and one-to-one; the tests check both properties
// against the gorm schema.
var columnMapping = []struct {
	Wire   string
	Column string
}{
	{"id", "id"},
	{"userId", "user_id"},
	{"title", "title"},
	{"author", "author"},
	{"recommended", "recommended"},
	{"rating", "rating"},
	{"formato", "formato"},
	{"pageNumber", "page_number"},
	{"startDate", "start_date"},
	{"endDate", "end_date"},
	{"favCharacter", "fav_character"},
	{"hatedCharacter", "hated_character"},
	{"ratingDetails", "rating_details"},
	{"genre", "genre"},
	{"favPhrases", "fav_phrases"},
	{"review", "review"},
	{"createdAt", "created_at"},
}

// ColumnFor returns the stored column for a wire field name.
func ColumnFor(wire string) (string, bool) {
	for _, m := range columnMapping {
		if m.Wire == wire {
			return m.Column, true
		}
	}
	return "", false
}

// WireFor returns the wire field name for a stored column.
func WireFor(column string) (string, bool) {
	for _, m := range columnMapping {
		if m.Column == column {
			return m.Wire, true
		}
	}
	return "", false
}

// Columns returns every stored column, in mapping order. Inserts name all
// of them so absent optional fields are written as NULL.
func Columns() []string {
	cols := make([]string, len(columnMapping))
	for i, m := range columnMapping {
		cols[i] = m.Column
	}
	return cols
}

// normalize trims title and author and turns blank optional strings into
// nil, so that "" is stored as NULL and never reaches the validators.
func (f Fields) normalize() Fields {
	f.Title = strings.TrimSpace(f.Title)
	f.Author = strings.TrimSpace(f.Author)
	for _, s := range []**string{&f.Format, &f.StartDate, &f.EndDate, &f.FavCharacter, &f.HatedCharacter, &f.Genre, &f.Review} {
		*s = nullIfBlank(*s)
	}
	return f
}

// row builds the Entry to insert for ownerID from normalized fields.
func (f Fields) row(ownerID string) (*models.Entry, error) {
	details, err := encodeJSON(f.RatingDetails != nil, f.RatingDetails)
	if err != nil {
		return nil, fmt.Errorf("encode ratingDetails: %w", err)
	}
	phrases, err := encodeJSON(f.FavPhrases != nil, f.FavPhrases)
	if err != nil {
		return nil, fmt.Errorf("encode favPhrases: %w", err)
	}

	return &models.Entry{
		UserID:         ownerID,
		Title:          f.Title,
		Author:         f.Author,
		Recommended:    f.Recommended,
		Rating:         f.Rating,
		Format:         f.Format,
		PageNumber:     f.PageNumber,
		StartDate:      f.StartDate,
		EndDate:        f.EndDate,
		FavCharacter:   f.FavCharacter,
		HatedCharacter: f.HatedCharacter,
		RatingDetails:  details,
		Genre:          f.Genre,
		FavPhrases:     phrases,
		Review:         f.Review,
	}, nil
}

func encodeJSON(present bool, v any) (datatypes.JSON, error) {
	if !present {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func nullIfBlank(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
