// Package wishlist is the owner-scoped repository of books a user wants to
// read. It follows the same contract as package entries over a smaller
// record.
package wishlist

import (
	"bookshelf/pkg/apperr"
	"bookshelf/pkg/models"
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Fields struct {
	Title  string  `json:"title"`
	Author string  `json:"author"`
	Note   *string `json:"note"`
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context, ownerID, idFilter string) ([]models.WishlistItem, error) {
	if ownerID == "" {
		return nil, apperr.ErrUnauthorized
	}

	items := make([]models.WishlistItem, 0)
	query := r.db.WithContext(ctx).Scopes(models.OwnedBy(ownerID))
	if idFilter != "" {
		id, err := uuid.Parse(idFilter)
		if err != nil {
			return items, nil
		}
		query = query.Where("id = ?", id.String())
	}
	if err := query.Order("created_at").Find(&items).Error; err != nil {
		return nil, apperr.Store("select items", err)
	}
	return items, nil
}

func (r *Repository) Create(ctx context.Context, ownerID string, fields Fields) (*models.WishlistItem, error) {
	if ownerID == "" {
		return nil, apperr.ErrUnauthorized
	}
	title, author := strings.TrimSpace(fields.Title), strings.TrimSpace(fields.Author)
	if title == "" || author == "" {
		return nil, apperr.ErrTitleAuthorRequired
	}

	item := &models.WishlistItem{
		UserID: ownerID,
		Title:  title,
		Author: author,
	}
	if fields.Note != nil && strings.TrimSpace(*fields.Note) != "" {
		item.Note = fields.Note
	}
	if err := r.db.WithContext(ctx).Select("*").Create(item).Error; err != nil {
		return nil, apperr.Store("insert item", err)
	}
	return item, nil
}

// Delete removes itemID if ownerID owns it; zero rows affected is success.
func (r *Repository) Delete(ctx context.Context, ownerID, itemID string) (int64, error) {
	if ownerID == "" {
		return 0, apperr.ErrUnauthorized
	}
	if strings.TrimSpace(itemID) == "" {
		return 0, apperr.ErrIDRequired
	}
	id, err := uuid.Parse(itemID)
	if err != nil {
		return 0, nil
	}

	res := r.db.WithContext(ctx).
		Scopes(models.OwnedBy(ownerID)).
		Where("id = ?", id.String()).
		Delete(&models.WishlistItem{})
	if res.Error != nil {
		return 0, apperr.Store("delete item", res.Error)
	}
	return res.RowsAffected, nil
}
