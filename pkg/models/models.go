package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry is a book the user has already read. JSON tags are the wire names
// used by the API, gorm column tags are the stored names.
type Entry struct {
	ID             string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID         string         `gorm:"column:user_id;type:uuid;not null;index" json:"userId"`
	Title          string         `gorm:"column:title;not null" json:"title"`
	Author         string         `gorm:"column:author;not null" json:"author"`
	Recommended    *bool          `gorm:"column:recommended" json:"recommended"`
	Rating         *int           `gorm:"column:rating" json:"rating"`
	Format         *string        `gorm:"column:formato;size:20" json:"formato"`
	PageNumber     *int           `gorm:"column:page_number" json:"pageNumber"`
	StartDate      *string        `gorm:"column:start_date;size:10" json:"startDate"`
	EndDate        *string        `gorm:"column:end_date;size:10" json:"endDate"`
	FavCharacter   *string        `gorm:"column:fav_character" json:"favCharacter"`
	HatedCharacter *string        `gorm:"column:hated_character" json:"hatedCharacter"`
	RatingDetails  datatypes.JSON `gorm:"column:rating_details" json:"ratingDetails"`
	Genre          *string        `gorm:"column:genre" json:"genre"`
	FavPhrases     datatypes.JSON `gorm:"column:fav_phrases" json:"favPhrases"`
	Review         *string        `gorm:"column:review;type:text" json:"review"`
	CreatedAt      time.Time      `gorm:"column:created_at" json:"createdAt"`
}

func (Entry) TableName() string {
	return "entries"
}

// OwnedBy scopes a query to the rows of one user.
func OwnedBy(ownerID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", ownerID)
	}
}

func (e *Entry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// AfterFind turns JSON columns that were stored as NULL back into nil, so a
// row read from the store compares equal to the row that was inserted.
func (e *Entry) AfterFind(tx *gorm.DB) error {
	e.RatingDetails = nullJSON(e.RatingDetails)
	e.FavPhrases = nullJSON(e.FavPhrases)
	return nil
}

// RatingDetails holds the per-aspect scores of an entry, each 0 to 5.
type RatingDetails struct {
	Romance int `json:"romance" validate:"min=0,max=5"`
	Sadness int `json:"sadness" validate:"min=0,max=5"`
	Spicy   int `json:"spicy" validate:"min=0,max=5"`
	Final   int `json:"final" validate:"min=0,max=5"`
}

type WishlistItem struct {
	ID        string    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID    string    `gorm:"column:user_id;type:uuid;not null;index" json:"userId"`
	Title     string    `gorm:"column:title;not null" json:"title"`
	Author    string    `gorm:"column:author;not null" json:"author"`
	Note      *string   `gorm:"column:note;type:text" json:"note"`
	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
}

func (WishlistItem) TableName() string {
	return "items"
}

func (w *WishlistItem) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}

type User struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	Email        string `gorm:"size:255;not null;uniqueIndex"`
	Name         string `gorm:"size:100"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Session is a server-side session row. Its ID is embedded in the issued
// token, so deleting the row revokes the token.
type Session struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"type:uuid;not null;index"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
}

func nullJSON(j datatypes.JSON) datatypes.JSON {
	if len(j) == 0 || string(j) == "null" {
		return nil
	}
	return j
}
