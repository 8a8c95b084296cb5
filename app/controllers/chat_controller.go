package controllers

import (
	"math/rand"
	"strings"

	"github.com/gofiber/fiber/v2"
)

var chatReplies = []string{
	"I'm here to help! How can I support you today?",
	"That's a great question! Let's explore it together.",
	"Remember, your voice matters.",
	"Empowerment starts with a single step. What's on your mind?",
	"I'm always here to listen and provide guidance.",
	"Every story is important. Tell me more!",
	"Let's work through this together.",
	"You are not alone. Many people have similar questions.",
	"Would you like some resources or just to chat?",
	"Thank you for sharing. How can I assist further?",
}

// ChatController answers the members-only chat with canned replies.
type ChatController struct {
	pick func(n int) int
}

func NewChatController() *ChatController {
	return &ChatController{pick: rand.Intn}
}

type chatRequest struct {
	Message string `json:"message"`
}

func (cc *ChatController) HandleMessage(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Message is required."})
	}
	return c.JSON(fiber.Map{"reply": chatReplies[cc.pick(len(chatReplies))]})
}
