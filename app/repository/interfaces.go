package repository

import (
	"github.com/withmywomen/backend/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	EmailExists(email string) (bool, error)
}

// PostRepository defines the interface for blog post operations
type PostRepository interface {
	Create(post *models.Post) error
	GetByID(id uint) (*models.Post, error)
	List() ([]models.Post, error)
	Update(post *models.Post) error
	Delete(id uint) error
	ToggleLike(postID, userID uint) (bool, error)
}

// CommentRepository defines the interface for comment operations
type CommentRepository interface {
	Create(comment *models.Comment) error
	GetByID(id uint) (*models.Comment, error)
	Delete(id uint) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	User    UserRepository
	Post    PostRepository
	Comment CommentRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:    NewUserRepository(db),
		Post:    NewPostRepository(db),
		Comment: NewCommentRepository(db),
	}
}
