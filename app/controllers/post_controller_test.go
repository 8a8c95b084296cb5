package controllers

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withmywomen/backend/app/models"
)

type blogFixture struct {
	users    *memUsers
	posts    *memPosts
	comments *memComments
}

func newBlogFixture() *blogFixture {
	users := newMemUsers(
		&models.User{ID: 1, Name: "Ada"},
		&models.User{ID: 2, Name: "Grace"},
	)
	return &blogFixture{users: users, posts: newMemPosts(users), comments: newMemComments()}
}

func (f *blogFixture) app(userID uint) *fiber.App {
	pc := NewPostController(f.posts, f.comments, nil)
	app := fiber.New()
	app.Use(asUser(userID))
	app.Get("/blogs", pc.HandleList)
	app.Get("/blogs/:id", pc.HandleGet)
	app.Post("/blogs", pc.HandleCreate)
	app.Put("/blogs/:id", pc.HandleUpdate)
	app.Delete("/blogs/:id", pc.HandleDelete)
	app.Put("/blogs/:id/like", pc.HandleToggleLike)
	app.Post("/blogs/:id/comments", pc.HandleCreateComment)
	app.Delete("/comments/:id", pc.HandleDeleteComment)
	return app
}

func decodePost(t *testing.T, body string) postView {
	t.Helper()
	var v postView
	require.NoError(t, json.Unmarshal([]byte(body), &v), body)
	return v
}

func TestCreateAndListBlogs(t *testing.T) {
	f := newBlogFixture()
	app := f.app(1)

	resp, body := doJSON(t, app, "POST", "/blogs", `{"title":"First","content":"Hello"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)
	first := decodePost(t, body)
	assert.Equal(t, "Ada", first.Author.Name)
	assert.Empty(t, first.Likes)

	resp, _ = doJSON(t, app, "POST", "/blogs", `{"title":"Second","content":"Again"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, body = doJSON(t, app, "GET", "/blogs", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var list []postView
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "Second", list[0].Title)

	resp, body = doJSON(t, app, "GET", fmt.Sprintf("/blogs/%d", first.ID), "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "First", decodePost(t, body).Title)
}

func TestBlogValidation(t *testing.T) {
	app := newBlogFixture().app(1)

	resp, _ := doJSON(t, app, "POST", "/blogs", `{"title":"","content":"x"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, "POST", "/blogs", `{"title":"t","content":"x","image":"not a url"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, body := doJSON(t, app, "GET", "/blogs/99", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Blog not found"}`, body)

	resp, _ = doJSON(t, app, "GET", "/blogs/abc", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestOnlyAuthorMayEditBlog(t *testing.T) {
	f := newBlogFixture()
	_, body := doJSON(t, f.app(1), "POST", "/blogs", `{"title":"Mine","content":"Hello"}`)
	id := decodePost(t, body).ID
	path := fmt.Sprintf("/blogs/%d", id)

	resp, body := doJSON(t, f.app(2), "PUT", path, `{"title":"Hijacked","content":"x"}`)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Not authorized"}`, body)

	resp, _ = doJSON(t, f.app(2), "DELETE", path, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, body = doJSON(t, f.app(1), "PUT", path, `{"title":"Edited","content":"Hello again"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Edited", decodePost(t, body).Title)

	resp, body = doJSON(t, f.app(1), "DELETE", path, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Blog removed"}`, body)

	resp, _ = doJSON(t, f.app(1), "GET", path, "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestToggleLike(t *testing.T) {
	f := newBlogFixture()
	_, body := doJSON(t, f.app(1), "POST", "/blogs", `{"title":"Like me","content":"x"}`)
	path := fmt.Sprintf("/blogs/%d/like", decodePost(t, body).ID)

	resp, body := doJSON(t, f.app(2), "PUT", path, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	post := decodePost(t, body)
	require.Len(t, post.Likes, 1)
	assert.Equal(t, userRef{ID: 2, Name: "Grace"}, post.Likes[0])

	_, body = doJSON(t, f.app(2), "PUT", path, "")
	assert.Empty(t, decodePost(t, body).Likes)

	resp, _ = doJSON(t, f.app(2), "PUT", "/blogs/42/like", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestComments(t *testing.T) {
	f := newBlogFixture()
	_, body := doJSON(t, f.app(1), "POST", "/blogs", `{"title":"Talk","content":"x"}`)
	postID := decodePost(t, body).ID

	resp, body := doJSON(t, f.app(2), "POST", fmt.Sprintf("/blogs/%d/comments", postID), `{"content":"Nice post"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)
	var cm commentView
	require.NoError(t, json.Unmarshal([]byte(body), &cm))
	assert.Equal(t, postID, cm.PostID)
	assert.Equal(t, uint(2), cm.Author.ID)

	resp, _ = doJSON(t, f.app(2), "POST", fmt.Sprintf("/blogs/%d/comments", postID), `{"content":""}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, f.app(2), "POST", "/blogs/77/comments", `{"content":"hi"}`)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	path := fmt.Sprintf("/comments/%d", cm.ID)
	resp, body = doJSON(t, f.app(1), "DELETE", path, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Not authorized"}`, body)

	resp, body = doJSON(t, f.app(2), "DELETE", path, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Comment deleted"}`, body)

	resp, body = doJSON(t, f.app(2), "DELETE", path, "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Comment not found"}`, body)
}
