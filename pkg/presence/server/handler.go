package server

import (
	"github.com/argus-labs/presence/pkg/presence"
	"github.com/argus-labs/presence/pkg/presence/attribute"
	"github.com/argus-labs/presence/pkg/presence/config"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type GetHealthResponse struct {
	IsServerRunning bool `json:"isServerRunning"`
	IsEngineRunning bool `json:"isEngineRunning"`
	IsRefreshing    bool `json:"isRefreshing"`
}

func (s *Server) getHealth(c *fiber.Ctx) error {
	return c.JSON(GetHealthResponse{
		IsServerRunning: true,
		IsEngineRunning: s.engine.Running(),
		IsRefreshing:    s.engine.Refreshing(),
	})
}

type GetStatsResponse struct {
	TotalDeaths int64 `json:"totalDeaths"`
}

func (s *Server) getStats(c *fiber.Ctx) error {
	return c.JSON(GetStatsResponse{TotalDeaths: s.engine.TotalDeaths()})
}

// getStatuses previews every status for the player named by ?viewer=, or for nobody.
func (s *Server) getStatuses(c *fiber.Ctx) error {
	viewer := uuid.Nil
	if raw := c.Query("viewer"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid viewer id: "+err.Error())
		}
		viewer = id
	}
	previews, err := s.engine.Statuses(c.UserContext(), viewer)
	if err != nil {
		return statusOf(err)
	}
	return c.JSON(previews)
}

func (s *Server) postReload(c *fiber.Ctx) error {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to load config: "+err.Error())
	}
	if err := s.engine.Reload(c.UserContext(), cfg); err != nil {
		return statusOf(err)
	}
	s.log.Info().Str("path", s.configPath).Msg("reloaded display config")
	return c.SendStatus(fiber.StatusNoContent)
}

// -------------------------------------------------------------------------------------------------
// Players
// -------------------------------------------------------------------------------------------------

type CountryResponse struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type GetPlayerResponse struct {
	ID      uuid.UUID        `json:"id"`
	Status  string           `json:"status"`
	Deaths  int64            `json:"deaths"`
	Country *CountryResponse `json:"country"`
}

func playerID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid player id: "+err.Error())
	}
	return id, nil
}

func (s *Server) getPlayer(c *fiber.Ctx) error {
	id, err := playerID(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	status, err := s.engine.GetStatus(ctx, id)
	if err != nil {
		return statusOf(err)
	}
	deaths, err := s.engine.GetDeaths(ctx, id)
	if err != nil {
		return statusOf(err)
	}
	country, err := s.engine.GetCountry(ctx, id)
	if err != nil {
		return statusOf(err)
	}
	return c.JSON(GetPlayerResponse{ID: id, Status: status, Deaths: deaths, Country: countryResponse(country)})
}

func countryResponse(c *attribute.Country) *CountryResponse {
	if c == nil {
		return nil
	}
	return &CountryResponse{Name: c.Name, Code: c.Code}
}

type PutStatusRequest struct {
	Key string `json:"key"`
}

type PutStatusResponse struct {
	Result string `json:"result"`
}

func (s *Server) putStatus(c *fiber.Ctx) error {
	id, err := playerID(c)
	if err != nil {
		return err
	}
	var req PutStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to parse request body: "+err.Error())
	}

	result, err := s.engine.SetStatus(c.UserContext(), id, req.Key)
	if err != nil {
		return statusOf(err)
	}
	switch result {
	case presence.StatusInvalidKey:
		return fiber.NewError(fiber.StatusBadRequest, "unknown status "+req.Key)
	case presence.StatusNoPermission:
		return fiber.NewError(fiber.StatusForbidden, "player lacks the permission for status "+req.Key)
	default:
		return c.JSON(PutStatusResponse{Result: result.String()})
	}
}

func (s *Server) deleteStatus(c *fiber.Ctx) error {
	id, err := playerID(c)
	if err != nil {
		return err
	}
	if err := s.engine.ClearStatus(c.UserContext(), id); err != nil {
		return statusOf(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type PostDeathsRequest struct {
	Mode   presence.DeathMode `json:"mode"`
	Amount int64              `json:"amount"`
}

type PostDeathsResponse struct {
	Deaths int64 `json:"deaths"`
}

func (s *Server) postDeaths(c *fiber.Ctx) error {
	id, err := playerID(c)
	if err != nil {
		return err
	}
	var req PostDeathsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to parse request body: "+err.Error())
	}

	deaths, err := s.engine.AdjustDeaths(c.UserContext(), id, req.Amount, req.Mode)
	if err != nil {
		return statusOf(err)
	}
	return c.JSON(PostDeathsResponse{Deaths: deaths})
}

// -------------------------------------------------------------------------------------------------
// Host events
// -------------------------------------------------------------------------------------------------

// postEvent decodes the same payload the NATS feed carries and hands it to apply.
func postEvent[T any](apply func(T) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var ev T
		if err := c.BodyParser(&ev); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "failed to parse event: "+err.Error())
		}
		if err := apply(ev); err != nil {
			return statusOf(err)
		}
		return c.SendStatus(fiber.StatusAccepted)
	}
}
