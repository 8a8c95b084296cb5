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

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(userID uint, name, role string) (string, time.Time, error)
}

type AuthController struct {
	users        repository.UserRepository
	tokens       TokenIssuer
	secureCookie bool
	logger       *zap.Logger
	now          func() time.Time
}

func NewAuthController(users repository.UserRepository, tokens TokenIssuer, secureCookie bool, logger *zap.Logger) *AuthController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthController{
		users:        users,
		tokens:       tokens,
		secureCookie: secureCookie,
		logger:       logger,
		now:          time.Now,
	}
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=150"`
	Email    string `json:"email" validate:"required,email,max=200"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (ac *AuthController) HandleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if ok, err := bindJSON(c, &req); !ok {
		return err
	}

	exists, err := ac.users.EmailExists(req.Email)
	if err != nil {
		return ac.serverError(c, "email lookup failed", err)
	}
	if exists {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "User already exists"})
	}

	user, err := models.CreateUser(req.Name, req.Email, req.Password)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationMessage(err)})
	}
	if err := ac.users.Create(user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "User already exists"})
		}
		return ac.serverError(c, "create user failed", err)
	}

	return ac.respondWithToken(c, user)
}

func (ac *AuthController) HandleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if ok, err := bindJSON(c, &req); !ok {
		return err
	}

	// Unknown email and wrong password get the same answer.
	user, err := ac.users.GetByEmail(req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid credentials"})
		}
		return ac.serverError(c, "user lookup failed", err)
	}
	if !user.CheckPassword(req.Password) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid credentials"})
	}

	return ac.respondWithToken(c, user)
}

func (ac *AuthController) HandleMe(c *fiber.Ctx) error {
	user, err := ac.users.GetByID(usercontext.GetUserID(c))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return ac.serverError(c, "load user failed", err)
	}
	return c.JSON(userResponse(user, ac.now()))
}

// HandleLogout clears the auth cookie. Tokens are stateless, so clients
// sending the header must drop it themselves.
func (ac *AuthController) HandleLogout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     usercontext.KeyTokenCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   ac.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

func (ac *AuthController) respondWithToken(c *fiber.Ctx, user *models.User) error {
	token, expiresAt, err := ac.tokens.Issue(user.ID, user.Name, user.Role)
	if err != nil {
		return ac.serverError(c, "issue token failed", err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     usercontext.KeyTokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HTTPOnly: true,
		Secure:   ac.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return c.JSON(fiber.Map{
		"token": token,
		"user": fiber.Map{
			"id":        user.ID,
			"name":      user.Name,
			"email":     user.Email,
			"isPremium": user.IsPremium,
		},
	})
}

func (ac *AuthController) serverError(c *fiber.Ctx, msg string, err error) error {
	ac.logger.Error(msg, zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Server error"})
}
