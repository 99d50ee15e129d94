package handlers

import (
	"errors"
	"io"
	"mime/multipart"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"findme-api/domain/services"
	"findme-api/pkg/config"
	"findme-api/pkg/utils"
)

type SearchHandler struct {
	searchService services.SearchService
	validate      *validator.Validate
	cfg           config.FindMeConfig
}

func NewSearchHandler(searchService services.SearchService, cfg config.FindMeConfig) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
		validate:      validator.New(),
		cfg:           cfg,
	}
}

// RunSearchRequest is the non-file portion of the multipart run request
type RunSearchRequest struct {
	UseLocalAlbum bool   `form:"useLocalAlbum"`
	EventURL      string `form:"eventUrl" validate:"omitempty,url"`
}

// RunSearch runs a face-match session: a selfie plus either uploaded album
// photos or a shared album URL
// @Summary Run a face-match search
// @Tags FindMe
// @Accept multipart/form-data
// @Produce json
// @Param selfie formData file true "Selfie photo"
// @Param album formData file false "Album photos (when useLocalAlbum)"
// @Param useLocalAlbum formData bool false "Match against uploaded photos"
// @Param eventUrl formData string false "Shared album URL"
// @Success 200 {object} utils.Response
// @Router /api/v1/findme/search [post]
func (h *SearchHandler) RunSearch(c *fiber.Ctx) error {
	req := RunSearchRequest{
		UseLocalAlbum: c.FormValue("useLocalAlbum") == "true" || c.FormValue("useLocalAlbum") == "1",
		EventURL:      c.FormValue("eventUrl"),
	}
	if req.EventURL == "" {
		req.EventURL = c.Query("eventUrl")
	}
	if err := h.validate.Struct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request", err)
	}

	selfieFile, err := c.FormFile("selfie")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "A selfie photo is required", err)
	}
	selfie, err := h.readUpload(selfieFile)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	input := services.RunSessionInput{
		Selfie:        *selfie,
		UseLocalAlbum: req.UseLocalAlbum,
		EventURL:      req.EventURL,
	}

	if user, err := utils.GetUserFromContext(c); err == nil {
		input.UserID = &user.ID
	}

	if req.UseLocalAlbum {
		form, err := c.MultipartForm()
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid multipart form", err)
		}
		for _, file := range form.File["album"] {
			photo, err := h.readUpload(file)
			if err != nil {
				return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
			}
			input.AlbumPhotos = append(input.AlbumPhotos, *photo)
		}
	}

	result, err := h.searchService.RunSession(c.UserContext(), input)
	if err != nil {
		if services.IsValidationError(err) {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "The search could not be completed", err)
	}

	return utils.SuccessResponse(c, "Search completed", result)
}

// GetSession returns a persisted session with its ranked matches
// @Summary Get a search session
// @Tags FindMe
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} utils.Response
// @Router /api/v1/findme/sessions/{id} [get]
func (h *SearchHandler) GetSession(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid session ID", err)
	}

	detail, err := h.searchService.GetSession(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Session not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load session", err)
	}

	return utils.SuccessResponse(c, "Session retrieved", detail)
}

// readUpload validates one uploaded photo and reads it into memory
func (h *SearchHandler) readUpload(file *multipart.FileHeader) (*services.UploadedPhoto, error) {
	if file.Size > h.cfg.MaxUploadBytes {
		return nil, errors.New("file size exceeds the upload limit")
	}

	contentType := file.Header.Get("Content-Type")
	if !isValidImageType(contentType) {
		return nil, errors.New("invalid image type, allowed: jpeg, png, webp")
	}

	f, err := file.Open()
	if err != nil {
		return nil, errors.New("failed to read uploaded file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.New("failed to read uploaded file")
	}

	return &services.UploadedPhoto{
		Filename:    file.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

func isValidImageType(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/jpg", "image/png", "image/webp":
		return true
	}
	return false
}
