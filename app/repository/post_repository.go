package repository

import (
	"github.com/withmywomen/backend/app/models"
	"gorm.io/gorm"
)

// postRepository implements the PostRepository interface
type postRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(post *models.Post) error {
	if err := r.db.Create(post).Error; err != nil {
		return err
	}
	return r.db.Preload("Author").First(post, post.ID).Error
}

// GetByID retrieves a post with author, likers and comments
func (r *postRepository) GetByID(id uint) (*models.Post, error) {
	var post models.Post
	err := r.withRelations(r.db).First(&post, id).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// List returns every post, newest first
func (r *postRepository) List() ([]models.Post, error) {
	var posts []models.Post
	err := r.withRelations(r.db).Order("created_at DESC").Find(&posts).Error
	return posts, err
}

func (r *postRepository) Update(post *models.Post) error {
	return r.db.Model(post).Select("title", "content", "image").Updates(post).Error
}

// Delete soft deletes a post together with its comments and likes
func (r *postRepository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Post{}, id).Error
	})
}

// ToggleLike likes or unlikes the post for userID and reports the new state.
func (r *postRepository) ToggleLike(postID, userID uint) (bool, error) {
	var liked bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var err error
		liked, err = models.ToggleLike(tx, userID, postID)
		return err
	})
	return liked, err
}

func (r *postRepository) withRelations(db *gorm.DB) *gorm.DB {
	return db.Preload("Author").
		Preload("Likes.User").
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Comments.Author")
}
