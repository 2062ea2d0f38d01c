// Package router contains routing and server setup for the HTTP delivery.
package router

import (
	"huddle/config"
	"huddle/internal/delivery/api/middleware"
	"huddle/internal/delivery/api/router/handler"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

type RouterParams struct {
	fx.In

	MessageHandler  *handler.MessageHandler
	RequestHandler  *handler.RequestHandler
	ProposalHandler *handler.ProposalHandler
	GroupHandler    *handler.GroupHandler
	AdminHandler    *handler.AdminHandler
	TwilioSignature *middleware.TwilioSignatureMiddleware
	Config          *config.Config
}

// router holds all the handlers that need to be registered.
type router struct {
	messageHandler  *handler.MessageHandler
	requestHandler  *handler.RequestHandler
	proposalHandler *handler.ProposalHandler
	groupHandler    *handler.GroupHandler
	adminHandler    *handler.AdminHandler
	twilioSignature *middleware.TwilioSignatureMiddleware
	config          *config.Config
}

// NewRouter is the constructor for the Router.
// Fx will inject the required handlers here.
func NewRouter(params RouterParams) *router {
	return &router{
		messageHandler:  params.MessageHandler,
		requestHandler:  params.RequestHandler,
		proposalHandler: params.ProposalHandler,
		groupHandler:    params.GroupHandler,
		adminHandler:    params.AdminHandler,
		twilioSignature: params.TwilioSignature,
		config:          params.Config,
	}
}

// RegisterRoutes sets up all the API routes for the application.
func (r *router) RegisterRoutes(e *echo.Echo) {
	// Health check endpoint
	e.GET("/health", handler.HealthCheck)

	// Inbound SMS from Twilio
	e.POST("/webhook/sms", r.messageHandler.ReceiveSMS, r.twilioSignature.Verify)

	// Signed action links opened from messages
	e.GET("/a/:token", r.proposalHandler.RedeemAction)

	api := e.Group("/api")

	// Mock channel
	api.POST("/messages", r.messageHandler.PostMessage)

	api.GET("/requests/:id", r.requestHandler.GetRequest)

	usersGroup := api.Group("/users")
	{
		usersGroup.GET("/:userId/request", r.requestHandler.GetUserRequest)
		usersGroup.POST("/:userId/cancel", r.requestHandler.CancelUserRequest)
	}

	api.POST("/proposals/:id/respond", r.proposalHandler.Respond)

	groupsGroup := api.Group("/groups")
	{
		groupsGroup.GET("/:id", r.groupHandler.GetGroup)
		groupsGroup.POST("/:id/cancel", r.groupHandler.CancelGroup)
		groupsGroup.POST("/:id/complete", r.groupHandler.CompleteGroup)
		groupsGroup.POST("/:id/feedback", r.groupHandler.SubmitFeedback)
		groupsGroup.GET("/:id/payment-qr", r.groupHandler.GetPaymentQR)
	}

	adminGroup := api.Group("/admin")
	{
		adminGroup.POST("/sweep", r.adminHandler.RunSweep)
	}
}
