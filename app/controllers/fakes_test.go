package controllers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/withmywomen/backend/app/models"
	"github.com/withmywomen/backend/internal/pkg/billing"
	"github.com/withmywomen/backend/internal/pkg/usercontext"
)

// asUser marks the request as coming from a logged-in user; 0 stays anonymous.
func asUser(id uint) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id != 0 {
			usercontext.Set(c, usercontext.UserContext{UserID: id, IsLoggedIn: true})
		}
		return c.Next()
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

// memUsers implements repository.UserRepository and UserFinder.
type memUsers struct {
	mu     sync.Mutex
	nextID uint
	byID   map[uint]*models.User
}

func newMemUsers(users ...*models.User) *memUsers {
	m := &memUsers{byID: map[uint]*models.User{}}
	for _, u := range users {
		m.byID[u.ID] = u
		if u.ID > m.nextID {
			m.nextID = u.ID
		}
	}
	return m
}

func (m *memUsers) Create(user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = time.Now()
	cp := *user
	m.byID[user.ID] = &cp
	return nil
}

func (m *memUsers) GetByID(id uint) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == strings.ToLower(strings.TrimSpace(email)) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memUsers) EmailExists(email string) (bool, error) {
	_, err := m.GetByEmail(email)
	return err == nil, nil
}

func (m *memUsers) GetUser(_ context.Context, id uint) (*models.User, error) {
	u, err := m.GetByID(id)
	if err != nil {
		return nil, billing.ErrUserNotFound
	}
	return u, nil
}

// memPosts implements repository.PostRepository.
type memPosts struct {
	mu     sync.Mutex
	nextID uint
	posts  map[uint]*models.Post
	users  *memUsers
}

func newMemPosts(users *memUsers) *memPosts {
	return &memPosts{posts: map[uint]*models.Post{}, users: users}
}

func (m *memPosts) Create(post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	post.ID = m.nextID
	post.CreatedAt = time.Now()
	if u, err := m.users.GetByID(post.AuthorID); err == nil {
		post.Author = *u
	}
	cp := *post
	m.posts[post.ID] = &cp
	return nil
}

func (m *memPosts) GetByID(id uint) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	cp.Likes = append([]models.Like(nil), p.Likes...)
	return &cp, nil
}

func (m *memPosts) List() ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Post, 0, len(m.posts))
	for id := m.nextID; id > 0; id-- {
		if p, ok := m.posts[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memPosts) Update(post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *post
	m.posts[post.ID] = &cp
	return nil
}

func (m *memPosts) Delete(id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.posts, id)
	return nil
}

func (m *memPosts) ToggleLike(postID, userID uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.posts[postID]
	for i, l := range p.Likes {
		if l.UserID == userID {
			p.Likes = append(p.Likes[:i], p.Likes[i+1:]...)
			return false, nil
		}
	}
	like := models.Like{PostID: postID, UserID: userID}
	if u, ok := m.users.byID[userID]; ok {
		like.User = *u
	}
	p.Likes = append(p.Likes, like)
	return true, nil
}

// memComments implements repository.CommentRepository.
type memComments struct {
	mu       sync.Mutex
	nextID   uint
	comments map[uint]*models.Comment
}

func newMemComments() *memComments {
	return &memComments{comments: map[uint]*models.Comment{}}
}

func (m *memComments) Create(comment *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	comment.ID = m.nextID
	cp := *comment
	m.comments[comment.ID] = &cp
	return nil
}

func (m *memComments) GetByID(id uint) (*models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cm, ok := m.comments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *cm
	return &cp, nil
}

func (m *memComments) Delete(id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.comments, id)
	return nil
}

func doJSONWithHeaders(t *testing.T, app *fiber.App, path, body string, headers map[string]string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}
