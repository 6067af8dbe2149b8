package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/parley/internal/middleware"
	"github.com/nfrund/parley/internal/websocket"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	authn := middleware.Auth(s.verifier)
	rateLimiter := middleware.RateLimiter()

	s.E.GET("/ws", websocket.Handler(s.Registry, s.verifier, s.Bus))

	s.E.GET("/user/:id/chats", s.chatHandler.ChatsGet, authn)
	s.E.GET("/chat/:id", s.chatHandler.ChatGet, authn)
	s.E.GET("/chatdata/:id", s.chatHandler.ChatDataGet, authn)
	s.E.GET("/chat/:id/lastmessage", s.chatHandler.LastMessageGet, authn)
	s.E.GET("/chat/user/:id", s.chatHandler.ChatWithUserGet, authn)

	s.E.POST("/chat/:id/message/send", s.chatHandler.MessageSendPost, authn, rateLimiter)
	s.E.POST("/message/send", s.chatHandler.NewChatPost, authn, rateLimiter)
	s.E.POST("/chat/:chatId/message/:msgId/delete", s.chatHandler.MessageDeletePost, authn)

	s.E.GET("/search/:query", s.chatHandler.SearchGet, authn)

	s.E.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
}
