package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/berfenger/powergroup2mqtt/internal/adapter/groupfile"
	"github.com/berfenger/powergroup2mqtt/internal/core/domain"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
}

type calibrateBody struct {
	Value decimal.Decimal `json:"value"`
}

type evictResponse struct {
	Evicted bool `json:"evicted"`
}

type entitiesChangedResponse struct {
	Changed []string `json:"changed_groups"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	api := e.Group("/api")
	api.GET("/groups", s.ListGroupsHandler)
	api.POST("/groups", s.CreateGroupHandler)
	api.GET("/groups/:id", s.GetGroupHandler)
	api.PUT("/groups/:id", s.PutGroupHandler)
	api.DELETE("/groups/:id", s.DeleteGroupHandler)
	api.GET("/groups/:id/members", s.GroupMembersHandler)
	api.GET("/groups/:id/state", s.GroupStateHandler)
	api.POST("/groups/:id/reset", s.ResetEnergyHandler)
	api.POST("/groups/:id/calibrate", s.CalibrateEnergyHandler)
	api.POST("/groups/:id/members/:member/evict", s.EvictBaselineHandler)

	api.GET("/entities", s.ListEntitiesHandler)
	api.POST("/entities", s.PutEntityHandler)
	api.DELETE("/entities/:id", s.DeleteEntityHandler)

	api.POST("/readings", s.ObserveReadingHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) ListGroupsHandler(c echo.Context) error {
	resp, err := request[domain.ListGroupsResponse](s, domain.ListGroupsRequest{})
	if err != nil {
		return s.fail(c, err)
	}
	groups := make([]groupfile.GroupConfig, 0, len(resp.Groups))
	for _, def := range resp.Groups {
		groups = append(groups, groupfile.FromDefinition(def))
	}
	return c.JSON(http.StatusOK, groups)
}

func (s *Server) GetGroupHandler(c echo.Context) error {
	resp, err := request[domain.ListGroupsResponse](s, domain.ListGroupsRequest{})
	if err != nil {
		return s.fail(c, err)
	}
	for _, def := range resp.Groups {
		if def.Id == c.Param("id") {
			return c.JSON(http.StatusOK, groupfile.FromDefinition(def))
		}
	}
	return s.fail(c, domain.ErrUnknownGroup)
}

func (s *Server) CreateGroupHandler(c echo.Context) error {
	var body groupfile.GroupConfig
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	if body.Id == "" {
		// group ids only allow letters, numbers and underscores
		body.Id = "group_" + uuid.New().String()[:8]
	}
	return s.putGroup(c, body, http.StatusCreated)
}

func (s *Server) PutGroupHandler(c echo.Context) error {
	var body groupfile.GroupConfig
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	body.Id = c.Param("id")
	return s.putGroup(c, body, http.StatusOK)
}

func (s *Server) putGroup(c echo.Context, body groupfile.GroupConfig, status int) error {
	def, err := body.ToDefinition()
	if err != nil {
		return s.fail(c, err)
	}
	resp, err := request[domain.GroupStateResponse](s, domain.PutGroupRequest{Group: def})
	if err != nil {
		// an unknown subgroup is a bad reference, not a missing resource
		if errors.Is(err, domain.ErrUnknownGroup) {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		return s.fail(c, err)
	}
	return c.JSON(status, resp.State)
}

func (s *Server) DeleteGroupHandler(c echo.Context) error {
	_, err := request[domain.DeleteGroupResponse](s, domain.DeleteGroupRequest{GroupId: c.Param("id")})
	if err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) GroupMembersHandler(c echo.Context) error {
	resp, err := request[domain.GetResolvedMembersResponse](s, domain.GetResolvedMembersRequest{GroupId: c.Param("id")})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, resp.Members)
}

func (s *Server) GroupStateHandler(c echo.Context) error {
	resp, err := request[domain.GroupStateResponse](s, domain.GetGroupStateRequest{GroupId: c.Param("id")})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, resp.State)
}

func (s *Server) ResetEnergyHandler(c echo.Context) error {
	resp, err := request[domain.GroupStateResponse](s, domain.ResetEnergyRequest{GroupId: c.Param("id")})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, resp.State)
}

func (s *Server) CalibrateEnergyHandler(c echo.Context) error {
	var body calibrateBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	resp, err := request[domain.GroupStateResponse](s, domain.CalibrateEnergyRequest{GroupId: c.Param("id"), Value: body.Value})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, resp.State)
}

func (s *Server) EvictBaselineHandler(c echo.Context) error {
	resp, err := request[domain.EvictBaselineResponse](s, domain.EvictBaselineRequest{
		GroupId:  c.Param("id"),
		MemberId: c.Param("member"),
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, evictResponse{Evicted: resp.Evicted})
}

func (s *Server) ListEntitiesHandler(c echo.Context) error {
	resp, err := request[domain.ListEntitiesResponse](s, domain.ListEntitiesRequest{})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, resp.Entities)
}

func (s *Server) PutEntityHandler(c echo.Context) error {
	var body domain.Entity
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	resp, err := request[domain.EntityResponse](s, domain.PutEntityRequest{Entity: body.Normalized()})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, entitiesChangedResponse{Changed: resp.Changed})
}

func (s *Server) DeleteEntityHandler(c echo.Context) error {
	resp, err := request[domain.EntityResponse](s, domain.DeleteEntityRequest{EntityId: c.Param("id")})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, entitiesChangedResponse{Changed: resp.Changed})
}

// ObserveReadingHandler accepts the same payloads as the MQTT input topics,
// with entity_id required.
func (s *Server) ObserveReadingHandler(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	reading, err := domain.ParseReadingPayload("", body, time.Now())
	if err != nil {
		return s.fail(c, err)
	}
	if _, err := request[domain.ObserveReadingResponse](s, domain.ObserveReadingRequest{Reading: reading}); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

// request asks the master and unwraps the typed response.
func request[T domain.ActorResponse](s *Server, req any) (T, error) {
	var zero T
	res, err := s.rootContext.RequestFuture(s.masterActor, req, s.requestTimeout).Result()
	if err != nil {
		return zero, err
	}
	resp, ok := res.(T)
	if !ok {
		return zero, errors.New("unexpected response")
	}
	if resp.HasResponseError() {
		return resp, resp.GetResponseError()
	}
	return resp, nil
}

func (s *Server) fail(c echo.Context, err error) error {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownGroup), errors.Is(err, domain.ErrUnknownEntity):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidGroup), errors.Is(err, domain.ErrCyclicGroup),
		errors.Is(err, domain.ErrInvalidValue), errors.Is(err, domain.ErrInvalidEntity),
		errors.Is(err, domain.ErrUnknownUnit), errors.Is(err, domain.ErrInvalidPayload):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
