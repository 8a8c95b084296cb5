package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index:ux_likes_post_user,unique,priority:2" json:"userId"`
	User      User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	PostID    uint      `gorm:"index:ux_likes_post_user,unique,priority:1" json:"postId"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// ToggleLike creates the like if it is missing and removes it otherwise.
// It reports whether the post is liked afterwards.
func ToggleLike(db *gorm.DB, userID, postID uint) (bool, error) {
	var like Like
	result := db.Where("user_id = ? AND post_id = ?", userID, postID).First(&like)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			newLike := Like{
				UserID: userID,
				PostID: postID,
			}
			return true, db.Create(&newLike).Error
		}
		return false, result.Error
	}

	return false, db.Delete(&like).Error
}
