// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server adapts the tree manager to HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pdiddy/image-tree/internal/logging"
	"github.com/pdiddy/image-tree/pkg/types"
)

// Defaults applied when config leaves a field zero.
const (
	DefaultHost = "localhost"
	DefaultPort = 8080
)

// Trees is the tree manager as the HTTP layer sees it.
type Trees interface {
	CreateRoot(ctx context.Context, prompt string) (string, error)
	Generate(ctx context.Context, id string) (*types.TreeNode, error)
	Expand(ctx context.Context, id string) ([]string, error)
	GetNode(ctx context.Context, id string) (*types.TreeNode, error)
	GetTree(ctx context.Context, rootID string) (*types.Tree, error)
}

// Images reads accepted artifacts by reference.
type Images interface {
	Open(ref string) ([]byte, string, error)
}

// Server provides HTTP endpoints over a tree manager.
type Server struct {
	echo   *echo.Echo
	trees  Trees
	images Images
	logger *zap.Logger
	config types.ServerConfig
}

// New creates a Server. images may be nil, in which case image downloads
// are not served.
func New(trees Trees, images Images, logger *zap.Logger, cfg types.ServerConfig) (*Server, error) {
	if trees == nil {
		return nil, fmt.Errorf("tree manager cannot be nil")
	}
	logger = logging.OrNop(logger)
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:   e,
		trees:  trees,
		images: images,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/nodes", s.handleCreateRoot)
	v1.GET("/nodes/:id", s.handleGetNode)
	v1.POST("/nodes/:id/generate", s.handleGenerate)
	v1.POST("/nodes/:id/expand", s.handleExpand)
	v1.GET("/nodes/:id/image", s.handleImage)
	v1.GET("/trees/:id", s.handleGetTree)
}

// CreateRequest is the request body for POST /api/v1/nodes.
type CreateRequest struct {
	Prompt string `json:"prompt"`

	// Generate runs generation before responding.
	Generate bool `json:"generate"`
}

// ExpandResponse is the response body for POST /api/v1/nodes/:id/expand.
type ExpandResponse struct {
	ParentID string            `json:"parent_id"`
	Children []*types.TreeNode `json:"children"`
}

// ErrorResponse carries an error kind and message.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleCreateRoot(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "invalid request body"})
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "prompt field is required"})
	}

	ctx := c.Request().Context()
	id, err := s.trees.CreateRoot(ctx, req.Prompt)
	if err != nil {
		return s.fail(c, err)
	}

	var node *types.TreeNode
	if req.Generate {
		node, err = s.trees.Generate(ctx, id)
	} else {
		node, err = s.trees.GetNode(ctx, id)
	}
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, node)
}

func (s *Server) handleGetNode(c echo.Context) error {
	node, err := s.trees.GetNode(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, node)
}

func (s *Server) handleGenerate(c echo.Context) error {
	node, err := s.trees.Generate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, node)
}

func (s *Server) handleExpand(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ids, err := s.trees.Expand(ctx, id)
	if err != nil {
		return s.fail(c, err)
	}

	resp := ExpandResponse{ParentID: id, Children: make([]*types.TreeNode, 0, len(ids))}
	for _, cid := range ids {
		child, err := s.trees.GetNode(ctx, cid)
		if err != nil {
			return s.fail(c, err)
		}
		resp.Children = append(resp.Children, child)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleImage(c echo.Context) error {
	node, err := s.trees.GetNode(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	if node.ImageRef == "" {
		return s.fail(c, fmt.Errorf("%w: %s has no image", types.ErrNodeNotReady, node.ID))
	}
	if s.images == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "images are not served"})
	}
	data, contentType, err := s.images.Open(node.ImageRef)
	if err != nil {
		return s.fail(c, fmt.Errorf("%w: %v", types.ErrArtifactMissing, err))
	}
	return c.Blob(http.StatusOK, contentType, data)
}

func (s *Server) handleGetTree(c echo.Context) error {
	tree, err := s.trees.GetTree(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, tree)
}

// fail writes err as an ErrorResponse with a status derived from its kind.
func (s *Server) fail(c echo.Context, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("uri", c.Request().RequestURI), zap.Error(err))
	}
	return c.JSON(status, ErrorResponse{Error: types.Kind(err), Message: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNodeNotFound), errors.Is(err, types.ErrArtifactMissing):
		return http.StatusNotFound
	case errors.Is(err, types.ErrAlreadyExpanded),
		errors.Is(err, types.ErrAlreadyExpanding),
		errors.Is(err, types.ErrNodeNotReady),
		errors.Is(err, types.ErrGenerationInProgress),
		errors.Is(err, types.ErrAlreadyAccepted):
		return http.StatusConflict
	case errors.Is(err, types.ErrCancelled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
