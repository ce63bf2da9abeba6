// Package entries is the owner-scoped repository of read books.
//
// Every operation takes the caller's user id as its first argument and
// never touches rows owned by anyone else. The id comes from the session
// resolved by the HTTP layer, never from the request body.
package entries

import (
	"bookshelf/pkg/apperr"
	"bookshelf/pkg/models"
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository struct {
	db       *gorm.DB
	validate *validator.Validate
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, validate: newValidator()}
}

// List returns the entries of ownerID, narrowed to a single id when idFilter
// is set. No match is an empty slice, not an error.
func (r *Repository) List(ctx context.Context, ownerID, idFilter string) ([]models.Entry, error) {
	if ownerID == "" {
		return nil, apperr.ErrUnauthorized
	}

	rows := make([]models.Entry, 0)
	query := r.db.WithContext(ctx).Scopes(models.OwnedBy(ownerID))
	if idFilter != "" {
		// ids are UUIDs; anything else cannot match and would make postgres
		// reject the comparison.
		id, err := uuid.Parse(idFilter)
		if err != nil {
			return rows, nil
		}
		query = query.Where("id = ?", id.String())
	}
	if err := query.Order("created_at").Find(&rows).Error; err != nil {
		return nil, apperr.Store("select entries", err)
	}
	return rows, nil
}

// Create validates fields and inserts exactly one row owned by ownerID.
func (r *Repository) Create(ctx context.Context, ownerID string, fields Fields) (*models.Entry, error) {
	if ownerID == "" {
		return nil, apperr.ErrUnauthorized
	}
	fields = fields.normalize()
	if fields.Title == "" || fields.Author == "" {
		return nil, apperr.ErrTitleAuthorRequired
	}
	if err := r.validate.Struct(fields); err != nil {
		return nil, validationError(err)
	}

	row, err := fields.row(ownerID)
	if err != nil {
		return nil, apperr.Invalid("error.invalidBody", err.Error(), nil)
	}
	if err := r.db.WithContext(ctx).Select(Columns()).Create(row).Error; err != nil {
		return nil, apperr.Store("insert entry", err)
	}
	return row, nil
}

// Delete removes entryID if ownerID owns it. A missing or foreign id
// affects zero rows and still succeeds; the count is returned for logging.
func (r *Repository) Delete(ctx context.Context, ownerID, entryID string) (int64, error) {
	if ownerID == "" {
		return 0, apperr.ErrUnauthorized
	}
	if strings.TrimSpace(entryID) == "" {
		return 0, apperr.ErrIDRequired
	}
	id, err := uuid.Parse(entryID)
	if err != nil {
		return 0, nil
	}

	res := r.db.WithContext(ctx).
		Scopes(models.OwnedBy(ownerID)).
		Where("id = ?", id.String()).
		Delete(&models.Entry{})
	if res.Error != nil {
		return 0, apperr.Store("delete entry", res.Error)
	}
	return res.RowsAffected, nil
}
