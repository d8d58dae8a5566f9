package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/smukkama/weather-archive/internal/apperr"
	"github.com/smukkama/weather-archive/internal/database"
	"github.com/smukkama/weather-archive/internal/observations"
	"github.com/smukkama/weather-archive/internal/registry"
)

var validate = validator.New()

// Server is the thin HTTP boundary: parse, validate, call, map errors.
type Server struct {
	app          *fiber.App
	db           *database.DB
	registry     *registry.Registry
	engine       *observations.Engine
	maxBatchRows int
}

// New creates the HTTP server and wires all routes.
func New(db *database.DB, reg *registry.Registry, engine *observations.Engine, maxBatchRows int) *Server {
	s := &Server{
		app:          fiber.New(fiber.Config{ErrorHandler: errorHandler}),
		db:           db,
		registry:     reg,
		engine:       engine,
		maxBatchRows: maxBatchRows,
	}
	s.routes()
	return s
}

// Listen blocks serving HTTP on the given port.
func (s *Server) Listen(port int) error {
	return s.app.Listen(fmt.Sprintf(":%d", port))
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) routes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})
	s.app.Get("/db-health", func(c *fiber.Ctx) error {
		if err := s.db.PingContext(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).
				JSON(fiber.Map{"database": "error", "details": err.Error()})
		}
		return c.JSON(fiber.Map{"database": "connected"})
	})

	v1 := s.app.Group("/api/v1")

	v1.Get("/locations/search", s.handleSearchLocations)
	v1.Post("/locations", s.handleCreateLocation)
	v1.Get("/locations/:id", s.handleGetLocation)
	v1.Patch("/locations/:id", s.handleUpdateLocation)

	v1.Get("/weather/range", s.handleQueryRange)
	v1.Delete("/weather/range", s.handleDeleteRange)
	v1.Post("/weather/observations", s.handleUpsertBatch)
	v1.Post("/weather/observation", s.handleUpsertOne)

	v1.Get("/weather/summary/daily", s.handleDailySummary)
}

// errorHandler maps taxonomy codes onto HTTP statuses and keeps the
// machine-readable code in the response envelope.
func errorHandler(c *fiber.Ctx, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return c.Status(statusForCode(appErr.Code)).JSON(fiber.Map{
			"error": fiber.Map{"code": appErr.Code, "message": appErr.Message},
		})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error": fiber.Map{"code": "BAD_REQUEST", "message": fiberErr.Message},
		})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": fiber.Map{"code": apperr.CodeStorageError, "message": "internal error"},
	})
}

func statusForCode(code apperr.Code) int {
	switch code {
	case apperr.CodeInvalidRange, apperr.CodeInvalidObservation, apperr.CodeMissingSelector:
		return fiber.StatusBadRequest
	case apperr.CodeLocationNotFound:
		return fiber.StatusNotFound
	case apperr.CodeAlreadyExists:
		return fiber.StatusConflict
	case apperr.CodeProviderError:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// locationResponse is the wire shape of a location record.
type locationResponse struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Country        *string   `json:"country"`
	Admin1         *string   `json:"admin1"`
	Latitude       *float64  `json:"latitude"`
	Longitude      *float64  `json:"longitude"`
	ExternalSource *string   `json:"external_source,omitempty"`
	ExternalID     *string   `json:"external_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toLocationResponse(loc database.Location) locationResponse {
	return locationResponse{
		ID:             loc.ID,
		Name:           loc.Name,
		Country:        loc.CountryCode,
		Admin1:         loc.Admin1,
		Latitude:       loc.Latitude,
		Longitude:      loc.Longitude,
		ExternalSource: loc.ExternalSource,
		ExternalID:     loc.ExternalID,
		CreatedAt:      loc.CreatedAt,
		UpdatedAt:      loc.UpdatedAt,
	}
}

// observationResponse is the wire shape of one stored observation.
// Timestamps cross the boundary as RFC3339 UTC.
type observationResponse struct {
	Timestamp  string  `json:"timestamp"`
	TempC      float64 `json:"temp_c"`
	Source     *string `json:"source,omitempty"`
	InsertedAt string  `json:"inserted_at"`
	UpdatedAt  string  `json:"updated_at"`
}

func toObservationResponse(obs database.Observation) observationResponse {
	return observationResponse{
		Timestamp:  obs.Ts.UTC().Format(time.RFC3339),
		TempC:      obs.TempC,
		Source:     obs.Source,
		InsertedAt: obs.InsertedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  obs.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleSearchLocations(c *fiber.Ctx) error {
	q := c.Query("q")
	if q == "" {
		return apperr.New(apperr.CodeMissingSelector, "query parameter q is required")
	}

	locations, err := s.registry.Search(c.Context(), q, c.Query("country"), c.Query("admin1"), c.QueryInt("limit"))
	if err != nil {
		return err
	}

	out := make([]locationResponse, len(locations))
	for i, loc := range locations {
		out[i] = toLocationResponse(loc)
	}
	return c.JSON(out)
}

type createLocationRequest struct {
	Name      string   `json:"name" validate:"required"`
	Country   *string  `json:"country"`
	Admin1    *string  `json:"admin1"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

func (s *Server) handleCreateLocation(c *fiber.Ctx) error {
	var req createLocationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	loc, err := s.registry.Create(c.Context(), registry.CreateParams{
		Name:        req.Name,
		CountryCode: req.Country,
		Admin1:      req.Admin1,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toLocationResponse(*loc))
}

func (s *Server) handleGetLocation(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "id must be a positive integer")
	}

	loc, err := s.registry.GetByID(c.Context(), int64(id))
	if err != nil {
		return err
	}
	return c.JSON(toLocationResponse(*loc))
}

type updateLocationRequest struct {
	Country   *string  `json:"country"`
	Admin1    *string  `json:"admin1"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

func (s *Server) handleUpdateLocation(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "id must be a positive integer")
	}

	var req updateLocationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	loc, err := s.registry.Update(c.Context(), int64(id), registry.UpdateParams{
		CountryCode: req.Country,
		Admin1:      req.Admin1,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	})
	if err != nil {
		return err
	}
	return c.JSON(toLocationResponse(*loc))
}

// parseRange reads start/end query parameters as RFC3339 with explicit
// offset. Unparseable bounds fail as INVALID_RANGE naming the input.
func parseRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Wrap(apperr.CodeInvalidRange, err,
			"unparseable start %q", c.Query("start"))
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Wrap(apperr.CodeInvalidRange, err,
			"unparseable end %q", c.Query("end"))
	}
	return start, end, nil
}

func (s *Server) handleQueryRange(c *fiber.Ctx) error {
	start, end, err := parseRange(c)
	if err != nil {
		return err
	}

	sel := registry.Selector{
		ID:   int64(c.QueryInt("location_id")),
		Name: c.Query("q"),
	}

	result, err := s.engine.QueryRange(c.Context(), sel, start, end)
	if err != nil {
		return err
	}

	out := make([]observationResponse, len(result.Observations))
	for i, obs := range result.Observations {
		out[i] = toObservationResponse(obs)
	}
	return c.JSON(fiber.Map{
		"location":     toLocationResponse(result.Location),
		"observations": out,
	})
}

func (s *Server) handleDeleteRange(c *fiber.Ctx) error {
	start, end, err := parseRange(c)
	if err != nil {
		return err
	}

	// Range deletes are id-only: no fuzzy selection on a destructive path.
	id := c.QueryInt("location_id")
	if id <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "location_id is required")
	}

	deleted, err := s.engine.DeleteRange(c.Context(), int64(id), start, end)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"deleted": deleted})
}

type upsertBatchRequest struct {
	LocationID   int64                `json:"location_id" validate:"required,gt=0"`
	Observations []observations.Input `json:"observations" validate:"required,min=1"`
}

func (s *Server) handleUpsertBatch(c *fiber.Ctx) error {
	var req upsertBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if s.maxBatchRows > 0 && len(req.Observations) > s.maxBatchRows {
		return fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("batch exceeds the %d-row limit", s.maxBatchRows))
	}

	count, err := s.engine.UpsertBatch(c.Context(), req.LocationID, req.Observations)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"count": count})
}

type upsertOneRequest struct {
	LocationID int64   `json:"location_id" validate:"required,gt=0"`
	Timestamp  string  `json:"timestamp" validate:"required"`
	TempC      float64 `json:"temp_c"`
	Source     string  `json:"source"`
}

// dailySummaryResponse is the wire shape of one daily summary row.
type dailySummaryResponse struct {
	Day     string  `json:"day"`
	MinTemp float64 `json:"min_temp"`
	MaxTemp float64 `json:"max_temp"`
	AvgTemp float64 `json:"avg_temp"`
	Samples int     `json:"samples"`
}

func (s *Server) handleDailySummary(c *fiber.Ctx) error {
	start, err := time.ParseInLocation("2006-01-02", c.Query("start"), time.UTC)
	if err != nil {
		return apperr.Wrap(apperr.CodeInvalidRange, err, "unparseable start day %q", c.Query("start"))
	}
	end, err := time.ParseInLocation("2006-01-02", c.Query("end"), time.UTC)
	if err != nil {
		return apperr.Wrap(apperr.CodeInvalidRange, err, "unparseable end day %q", c.Query("end"))
	}
	if start.After(end) {
		return apperr.New(apperr.CodeInvalidRange, "start day %s is after end day %s",
			c.Query("start"), c.Query("end"))
	}

	loc, err := s.registry.Resolve(c.Context(), registry.Selector{
		ID:   int64(c.QueryInt("location_id")),
		Name: c.Query("q"),
	})
	if err != nil {
		return err
	}

	summaries, err := s.db.QueryDailySummaries(c.Context(), loc.ID, start, end)
	if err != nil {
		return err
	}

	out := make([]dailySummaryResponse, len(summaries))
	for i, sum := range summaries {
		out[i] = dailySummaryResponse{
			Day:     sum.Day.UTC().Format("2006-01-02"),
			MinTemp: sum.MinTemp,
			MaxTemp: sum.MaxTemp,
			AvgTemp: sum.AvgTemp,
			Samples: sum.Samples,
		}
	}
	return c.JSON(fiber.Map{
		"location":  toLocationResponse(*loc),
		"summaries": out,
	})
}

func (s *Server) handleUpsertOne(c *fiber.Ctx) error {
	var req upsertOneRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	stored, err := s.engine.UpsertOne(c.Context(), req.LocationID, observations.Input{
		Timestamp: req.Timestamp,
		TempC:     req.TempC,
		Source:    req.Source,
	})
	if err != nil {
		return err
	}
	return c.JSON(toObservationResponse(*stored))
}
