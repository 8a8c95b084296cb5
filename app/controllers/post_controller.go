package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/withmywomen/backend/app/models"
	"github.com/withmywomen/backend/app/repository"
	"github.com/withmywomen/backend/internal/pkg/usercontext"
)

// PostController serves the community blog.
type PostController struct {
	posts    repository.PostRepository
	comments repository.CommentRepository
	logger   *zap.Logger
}

func NewPostController(posts repository.PostRepository, comments repository.CommentRepository, logger *zap.Logger) *PostController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostController{posts: posts, comments: comments, logger: logger}
}

type postRequest struct {
	Title   string `json:"title" validate:"required,max=255"`
	Content string `json:"content" validate:"required"`
	Image   string `json:"image" validate:"omitempty,url,max=500"`
}

type commentRequest struct {
	Content string `json:"content" validate:"required,max=5000"`
}

type userRef struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type commentView struct {
	ID        uint      `json:"id"`
	PostID    uint      `json:"postId"`
	Author    userRef   `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type postView struct {
	ID        uint          `json:"id"`
	Title     string        `json:"title"`
	Content   string        `json:"content"`
	Image     string        `json:"image,omitempty"`
	Author    userRef       `json:"author"`
	Likes     []userRef     `json:"likes"`
	Comments  []commentView `json:"comments"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func toCommentView(cm models.Comment) commentView {
	return commentView{
		ID:        cm.ID,
		PostID:    cm.PostID,
		Author:    userRef{ID: cm.AuthorID, Name: cm.Author.Name},
		Content:   cm.Content,
		CreatedAt: cm.CreatedAt,
	}
}

func toPostView(p *models.Post) postView {
	v := postView{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		Image:     p.Image,
		Author:    userRef{ID: p.AuthorID, Name: p.Author.Name},
		Likes:     make([]userRef, 0, len(p.Likes)),
		Comments:  make([]commentView, 0, len(p.Comments)),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	for _, l := range p.Likes {
		v.Likes = append(v.Likes, userRef{ID: l.UserID, Name: l.User.Name})
	}
	for _, cm := range p.Comments {
		v.Comments = append(v.Comments, toCommentView(cm))
	}
	return v
}

func (pc *PostController) HandleList(c *fiber.Ctx) error {
	posts, err := pc.posts.List()
	if err != nil {
		return pc.handleError(c, err)
	}
	out := make([]postView, 0, len(posts))
	for i := range posts {
		out = append(out, toPostView(&posts[i]))
	}
	return c.JSON(out)
}

func (pc *PostController) HandleGet(c *fiber.Ctx) error {
	post, ok, err := pc.load(c)
	if !ok {
		return err
	}
	return c.JSON(toPostView(post))
}

func (pc *PostController) HandleCreate(c *fiber.Ctx) error {
	var req postRequest
	if ok, err := bindJSON(c, &req); !ok {
		return err
	}

	post := &models.Post{
		Title:    req.Title,
		Content:  req.Content,
		Image:    req.Image,
		AuthorID: usercontext.GetUserID(c),
	}
	if err := pc.posts.Create(post); err != nil {
		return pc.handleError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toPostView(post))
}

func (pc *PostController) HandleUpdate(c *fiber.Ctx) error {
	post, ok, err := pc.loadOwned(c)
	if !ok {
		return err
	}

	var req postRequest
	if ok, err := bindJSON(c, &req); !ok {
		return err
	}
	post.Title = req.Title
	post.Content = req.Content
	post.Image = req.Image
	if err := pc.posts.Update(post); err != nil {
		return pc.handleError(c, err)
	}
	return c.JSON(toPostView(post))
}

func (pc *PostController) HandleDelete(c *fiber.Ctx) error {
	post, ok, err := pc.loadOwned(c)
	if !ok {
		return err
	}
	if err := pc.posts.Delete(post.ID); err != nil {
		return pc.handleError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Blog removed"})
}

// HandleToggleLike likes the post, or unlikes it when already liked.
func (pc *PostController) HandleToggleLike(c *fiber.Ctx) error {
	post, ok, err := pc.load(c)
	if !ok {
		return err
	}
	if _, err := pc.posts.ToggleLike(post.ID, usercontext.GetUserID(c)); err != nil {
		return pc.handleError(c, err)
	}
	updated, err := pc.posts.GetByID(post.ID)
	if err != nil {
		return pc.handleError(c, err)
	}
	return c.JSON(toPostView(updated))
}

func (pc *PostController) HandleCreateComment(c *fiber.Ctx) error {
	post, ok, err := pc.load(c)
	if !ok {
		return err
	}

	var req commentRequest
	if ok, err := bindJSON(c, &req); !ok {
		return err
	}
	comment := &models.Comment{
		PostID:   post.ID,
		AuthorID: usercontext.GetUserID(c),
		Content:  req.Content,
	}
	if err := pc.comments.Create(comment); err != nil {
		return pc.handleError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toCommentView(*comment))
}

// HandleDeleteComment removes a comment. Only its author may do that.
func (pc *PostController) HandleDeleteComment(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Comment not found"})
	}
	comment, err := pc.comments.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Comment not found"})
		}
		return pc.handleError(c, err)
	}
	if comment.AuthorID != usercontext.GetUserID(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Not authorized"})
	}
	if err := pc.comments.Delete(comment.ID); err != nil {
		return pc.handleError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Comment deleted"})
}

// load resolves :id. When ok is false the response has been written.
func (pc *PostController) load(c *fiber.Ctx) (*models.Post, bool, error) {
	id, ok := idParam(c, "id")
	if !ok {
		return nil, false, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Blog not found"})
	}
	post, err := pc.posts.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Blog not found"})
		}
		return nil, false, pc.handleError(c, err)
	}
	return post, true, nil
}

func (pc *PostController) loadOwned(c *fiber.Ctx) (*models.Post, bool, error) {
	post, ok, err := pc.load(c)
	if !ok {
		return nil, false, err
	}
	if !post.IsAuthoredBy(usercontext.GetUserID(c)) {
		return nil, false, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Not authorized"})
	}
	return post, true, nil
}

func (pc *PostController) handleError(c *fiber.Ctx, err error) error {
	pc.logger.Error("blog request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Server error"})
}
