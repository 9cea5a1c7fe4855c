package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jo-hoe/sandmap/internal/core"
	"github.com/jo-hoe/sandmap/internal/geojson"
	"github.com/labstack/echo/v4"
)

type APIService struct {
	coreService *core.CoreService
	config      *core.ServiceConfig
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// submissionForm holds the non-file fields of a submission upload.
type submissionForm struct {
	Latitude  string `form:"latitude" validate:"required"`
	Longitude string `form:"longitude" validate:"required"`
}

// processForm mirrors the worker's callback. Empty percentile values mean the run did not resolve them.
type processForm struct {
	ID      string `form:"id" validate:"required"`
	Scale   string `form:"scale" validate:"required"`
	Size    string `form:"size" validate:"required"`
	D10     string `form:"D10"`
	D16     string `form:"D16"`
	D25     string `form:"D25"`
	D50     string `form:"D50"`
	D65     string `form:"D65"`
	D75     string `form:"D75"`
	D90     string `form:"D90" validate:"required"`
	D50Mean string `form:"D50mean" validate:"required"`
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService) *APIService {
	return &APIService{
		coreService: coreService,
		config:      config,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	// Set health check route
	e.GET("/probe", func(c echo.Context) error {
		if !s.coreService.Healthy() {
			return c.String(http.StatusServiceUnavailable, "database unavailable")
		}
		return c.String(http.StatusOK, "API Service is running")
	})

	e.POST("/api/submission", s.createSubmissionHandler)
	e.GET("/api/submission/all", s.listSubmissionsHandler)
	e.GET("/api/submission/:id", s.getSubmissionHandler)

	e.POST("/api/process", s.createProcessedHandler)
	e.GET("/api/process/:id", s.getProcessedHandler)

	e.GET("/data.geojson", s.geojsonHandler)

	e.GET("/api/maintenance/stale", s.staleSubmissionsHandler)
	e.POST("/api/maintenance/redispatch/:id", s.redispatchHandler)

	if s.config.Storage.Type == "local" {
		e.Static(s.config.Storage.Local.MountPath, s.config.Storage.Local.Directory)
	}
}

func (s *APIService) createSubmissionHandler(ctx echo.Context) error {
	var form submissionForm
	if err := bindAndValidate(ctx, &form); err != nil {
		return invalidInput(ctx, err.Error())
	}
	latitude, err := strconv.ParseFloat(form.Latitude, 64)
	if err != nil {
		return invalidInput(ctx, "latitude must be a number")
	}
	longitude, err := strconv.ParseFloat(form.Longitude, 64)
	if err != nil {
		return invalidInput(ctx, "longitude must be a number")
	}

	file, err := ctx.FormFile("image")
	if err != nil {
		return invalidInput(ctx, "image file is required")
	}
	src, err := file.Open()
	if err != nil {
		slog.Error("createSubmissionHandler: failed to open uploaded file", "error", err, "filename", file.Filename)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Kind: "Internal", Message: "failed to open uploaded file"})
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("createSubmissionHandler: failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()

	image, err := io.ReadAll(src)
	if err != nil {
		slog.Error("createSubmissionHandler: failed to read uploaded file", "error", err, "filename", file.Filename)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Kind: "Internal", Message: "failed to read uploaded file"})
	}

	submission, err := s.coreService.Submit(ctx.Request().Context(), core.SubmitRequest{
		Image:     image,
		MimeType:  file.Header.Get(echo.HeaderContentType),
		Latitude:  latitude,
		Longitude: longitude,
	})
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(http.StatusCreated, submission)
}

func (s *APIService) getSubmissionHandler(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return invalidInput(ctx, err.Error())
	}
	submission, err := s.coreService.GetSubmission(ctx.Request().Context(), id)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, submission)
}

func (s *APIService) listSubmissionsHandler(ctx echo.Context) error {
	submissions, err := s.coreService.ListSubmissions(ctx.Request().Context())
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, submissions)
}

func (s *APIService) createProcessedHandler(ctx echo.Context) error {
	var form processForm
	if err := bindAndValidate(ctx, &form); err != nil {
		return invalidInput(ctx, err.Error())
	}
	request, err := form.toRequest()
	if err != nil {
		return invalidInput(ctx, err.Error())
	}

	result, err := s.coreService.Correlate(ctx.Request().Context(), request)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, result)
}

func (s *APIService) getProcessedHandler(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return invalidInput(ctx, err.Error())
	}
	result, err := s.coreService.GetResult(ctx.Request().Context(), id)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, result)
}

func (s *APIService) geojsonHandler(ctx echo.Context) error {
	collection, err := s.coreService.ExportFeatures(ctx.Request().Context())
	if err != nil {
		return respondError(ctx, err)
	}
	data, err := json.Marshal(collection)
	if err != nil {
		slog.Error("geojsonHandler: failed to encode feature collection", "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Kind: "Internal", Message: "failed to encode features"})
	}
	return ctx.Blob(http.StatusOK, geojson.ContentType, data)
}

func (s *APIService) staleSubmissionsHandler(ctx echo.Context) error {
	olderThan := s.config.Maintenance.StaleAfter
	if raw := ctx.QueryParam("olderThan"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return invalidInput(ctx, fmt.Sprintf("olderThan must be a duration like 1h, got %q", raw))
		}
		olderThan = parsed
	}

	submissions, err := s.coreService.ListStale(ctx.Request().Context(), olderThan)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, submissions)
}

func (s *APIService) redispatchHandler(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return invalidInput(ctx, err.Error())
	}
	submission, err := s.coreService.Redispatch(ctx.Request().Context(), id)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(http.StatusAccepted, submission)
}

// bindAndValidate binds form fields and checks that required ones are present.
func bindAndValidate(ctx echo.Context, form any) error {
	if err := ctx.Bind(form); err != nil {
		return fmt.Errorf("malformed request form")
	}
	if err := ctx.Validate(form); err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return fmt.Errorf("%v", httpErr.Message)
		}
		return err
	}
	return nil
}

func (f processForm) toRequest() (core.CorrelateRequest, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(f.ID), 10, 64)
	if err != nil {
		return core.CorrelateRequest{}, fmt.Errorf("id must be an integer")
	}

	request := core.CorrelateRequest{SubmissionID: id, Scale: f.Scale}
	fields := []struct {
		name  string
		value string
		dst   **float64
	}{
		{"size", f.Size, &request.Size},
		{"D10", f.D10, &request.D10},
		{"D16", f.D16, &request.D16},
		{"D25", f.D25, &request.D25},
		{"D50", f.D50, &request.D50},
		{"D65", f.D65, &request.D65},
		{"D75", f.D75, &request.D75},
		{"D90", f.D90, &request.D90},
		{"D50mean", f.D50Mean, &request.D50Mean},
	}
	for _, field := range fields {
		value, err := optionalFloat(field.value)
		if err != nil {
			return core.CorrelateRequest{}, fmt.Errorf("%s must be a number", field.name)
		}
		*field.dst = value
	}
	return request, nil
}

// optionalFloat treats an empty value as absent.
func optionalFloat(value string) (*float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func idParam(ctx echo.Context) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id must be an integer, got %q", ctx.Param("id"))
	}
	return id, nil
}

func invalidInput(ctx echo.Context, message string) error {
	return ctx.JSON(http.StatusBadRequest, errorResponse{Kind: string(core.KindInvalidInput), Message: message})
}

func respondError(ctx echo.Context, err error) error {
	status := statusForKind(core.KindOf(err))
	response := errorResponse{Kind: string(core.KindOf(err)), Message: "internal error"}

	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		response.Message = coreErr.Message
	} else {
		response.Kind = "Internal"
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "route", ctx.Path(), "status", status, "error", err)
	} else {
		slog.Warn("request rejected", "route", ctx.Path(), "status", status, "error", err)
	}
	return ctx.JSON(status, response)
}

func statusForKind(kind core.Kind) int {
	switch kind {
	case core.KindInvalidInput:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	case core.KindUploadFailed:
		return http.StatusBadGateway
	case core.KindDispatchFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
