package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Post is a community blog post.
type Post struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Title     string         `gorm:"type:varchar(255)" json:"title" validate:"required,min=1,max=255"`
	Content   string         `gorm:"type:text" json:"content" validate:"required"`
	Image     string         `gorm:"type:varchar(500);default:''" json:"image,omitempty" validate:"omitempty,url,max=500"`
	AuthorID  uint           `gorm:"index" json:"authorId"`
	Author    User           `gorm:"foreignKey:AuthorID" json:"author"`
	Likes     []Like         `gorm:"foreignKey:PostID" json:"likes"`
	Comments  []Comment      `gorm:"foreignKey:PostID" json:"comments"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *Post) Validate() error {
	return validator.New().Struct(p)
}

// IsAuthoredBy reports whether userID wrote the post.
func (p *Post) IsAuthoredBy(userID uint) bool {
	return p.AuthorID != 0 && p.AuthorID == userID
}
