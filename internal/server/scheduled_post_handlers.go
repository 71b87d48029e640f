package server

import (
	"strings"

	"murmur/internal/models"
	"murmur/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createScheduledPostRequest struct {
	Content         string `json:"content"`
	MediaURL        string `json:"mediaUrl"`
	CommentsEnabled *bool  `json:"commentsEnabled"`
	ScheduledAt     string `json:"scheduledAt"`
}

// updateScheduledPostRequest is a merge patch: absent fields stay unchanged.
type updateScheduledPostRequest struct {
	Content         *string `json:"content"`
	MediaURL        *string `json:"mediaUrl"`
	CommentsEnabled *bool   `json:"commentsEnabled"`
	ScheduledAt     *string `json:"scheduledAt"`
}

// CreateScheduledPost handles POST /api/scheduled-posts
// @Summary Schedule a post
// @Tags scheduled-posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{content=string,mediaUrl=string,commentsEnabled=bool,scheduledAt=string} true "Scheduled post"
// @Success 201 {object} models.ScheduledPost
// @Failure 400 {object} object{error=string}
// @Router /scheduled-posts [post]
func (s *Server) CreateScheduledPost(c *fiber.Ctx) error {
	var req createScheduledPostRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	scheduledAt, err := parseTimestamp(req.ScheduledAt)
	if err != nil {
		return respondServiceError(c, err)
	}

	sp, err := s.scheduledSvc.Create(c.UserContext(), service.CreateScheduledPostInput{
		UserID:          currentUserID(c),
		Content:         req.Content,
		MediaURL:        req.MediaURL,
		CommentsEnabled: req.CommentsEnabled,
		ScheduledAt:     scheduledAt,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(sp)
}

// ListScheduledPosts handles GET /api/scheduled-posts
// @Summary List the caller's scheduled posts
// @Tags scheduled-posts
// @Produce json
// @Security BearerAuth
// @Param status query string false "pending, posted or cancelled"
// @Param page query int false "Page number (1-based)"
// @Param limit query int false "Page size"
// @Success 200 {object} service.ScheduledPostPage
// @Router /scheduled-posts [get]
func (s *Server) ListScheduledPosts(c *fiber.Ctx) error {
	page, err := s.scheduledSvc.List(c.UserContext(), service.ListScheduledPostsInput{
		UserID: currentUserID(c),
		Status: strings.TrimSpace(c.Query("status")),
		Page:   c.QueryInt("page", 0),
		Limit:  c.QueryInt("limit", 0),
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(page)
}

// GetScheduledPost handles GET /api/scheduled-posts/:id
func (s *Server) GetScheduledPost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	sp, err := s.scheduledSvc.Get(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(sp)
}

// UpdateScheduledPost handles PUT /api/scheduled-posts/:id
func (s *Server) UpdateScheduledPost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req updateScheduledPostRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	in := service.UpdateScheduledPostInput{
		UserID:          currentUserID(c),
		ID:              id,
		Content:         req.Content,
		MediaURL:        req.MediaURL,
		CommentsEnabled: req.CommentsEnabled,
	}
	if req.ScheduledAt != nil {
		at, err := parseTimestamp(*req.ScheduledAt)
		if err != nil {
			return respondServiceError(c, err)
		}
		if at == nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("scheduledAt cannot be empty"))
		}
		in.ScheduledAt = at
	}

	sp, err := s.scheduledSvc.Update(c.UserContext(), in)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(sp)
}

// CancelScheduledPost handles DELETE /api/scheduled-posts/:id
func (s *Server) CancelScheduledPost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	sp, err := s.scheduledSvc.Cancel(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Scheduled post cancelled",
		"post":    sp,
	})
}

// PublishScheduledPost handles POST /api/scheduled-posts/:id/publish
// @Summary Publish a scheduled post immediately
// @Tags scheduled-posts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Scheduled post ID"
// @Success 200 {object} object{message=string,post=models.Post}
// @Failure 404 {object} object{error=string}
// @Failure 409 {object} object{error=string}
// @Router /scheduled-posts/{id}/publish [post]
func (s *Server) PublishScheduledPost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.scheduledSvc.PublishNow(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Scheduled post published",
		"post":    post,
	})
}
