package portal

import (
	"encoding/json"
	"errors"

	portalsvc "franchisor-portal/internal/application/portal"
	"franchisor-portal/internal/domain"
	"franchisor-portal/internal/pkg/geo"
	"franchisor-portal/internal/pkg/response"
	"franchisor-portal/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *portalsvc.Service
	Live    LiveConfig
}

// fail maps a query layer error onto the status contract: not found 404,
// validation 400, anything from the backend 502.
func fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, portalsvc.ErrMarketNotFound),
		errors.Is(err, portalsvc.ErrPropertyNotFound),
		errors.Is(err, portalsvc.ErrUpdateNotFound):
		return response.NotFound(c, err.Error())
	case errors.Is(err, portalsvc.ErrInvalidUpdate):
		return response.BadRequest(c, err.Error())
	default:
		return response.BadGateway(c)
	}
}

func propertyFilter(c *fiber.Ctx) portalsvc.PropertyFilter {
	return portalsvc.PropertyFilter{Phase: c.Query("phase"), Search: c.Query("q")}
}

func marketFilter(c *fiber.Ctx) portalsvc.MarketFilter {
	return portalsvc.MarketFilter{Phase: c.Query("phase"), Search: c.Query("q")}
}

// GET /api/v1/markets?phase=&q=
func (h *Handlers) ListMarkets(c *fiber.Ctx) error {
	f := marketFilter(c)
	if f.IsZero() {
		markets, err := h.Service.ListMarkets(c.UserContext())
		if err != nil {
			return fail(c, err)
		}
		return response.Success(c, "Markets fetched successfully", markets, fiber.Map{"count": len(markets)})
	}

	// phase filtering needs each market's furthest phase
	details, err := h.Service.ListMarketsWithDetails(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	details = portalsvc.FilterMarkets(details, f)
	markets := make([]domain.Market, 0, len(details))
	for _, d := range details {
		markets = append(markets, d.Market)
	}
	return response.Success(c, "Markets fetched successfully", markets, fiber.Map{"count": len(markets)})
}

// GET /api/v1/markets/details?phase=&q=
func (h *Handlers) ListMarketsWithDetails(c *fiber.Ctx) error {
	details, err := h.Service.ListMarketsWithDetails(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	details = portalsvc.FilterMarkets(details, marketFilter(c))
	return response.Success(c, "Markets fetched successfully", details, fiber.Map{"count": len(details)})
}

// GET /api/v1/markets/:id
func (h *Handlers) GetMarket(c *fiber.Ctx) error {
	id, ok := validation.ParseID(c.Params("id"))
	if !ok {
		return response.BadRequest(c, "Invalid market id")
	}
	market, err := h.Service.GetMarket(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "Market fetched successfully", market, nil)
}

// GET /api/v1/markets/:id/properties?phase=&q=
func (h *Handlers) ListMarketProperties(c *fiber.Ctx) error {
	id, ok := validation.ParseID(c.Params("id"))
	if !ok {
		return response.BadRequest(c, "Invalid market id")
	}
	props, err := h.Service.ListPropertiesByMarket(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	props = portalsvc.FilterProperties(props, propertyFilter(c))
	return response.Success(c, "Properties fetched successfully", props, fiber.Map{"count": len(props)})
}

// GET /api/v1/markets/:id/franchisees
func (h *Handlers) ListMarketFranchisees(c *fiber.Ctx) error {
	id, ok := validation.ParseID(c.Params("id"))
	if !ok {
		return response.BadRequest(c, "Invalid market id")
	}
	users, err := h.Service.ListMarketFranchisees(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "Franchisees fetched successfully", users, fiber.Map{"count": len(users)})
}

// GET /api/v1/markets/:id/map?style=
func (h *Handlers) MarketMap(c *fiber.Ctx) error {
	id, ok := validation.ParseID(c.Params("id"))
	if !ok {
		return response.BadRequest(c, "Invalid market id")
	}
	view, err := h.Service.MapViewForMarket(c.UserContext(), id, geo.ParseStyle(c.Query("style")))
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "Map fetched successfully", view, nil)
}

// GET /api/v1/properties?phase=&q=
func (h *Handlers) ListProperties(c *fiber.Ctx) error {
	props, err := h.Service.ListProperties(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	props = portalsvc.FilterProperties(props, propertyFilter(c))
	return response.Success(c, "Properties fetched successfully", props, fiber.Map{"count": len(props)})
}

// GET /api/v1/properties/:id
func (h *Handlers) GetProperty(c *fiber.Ctx) error {
	id, ok := validation.ParseID(c.Params("id"))
	if !ok {
		return response.BadRequest(c, "Invalid property id")
	}
	prop, err := h.Service.GetProperty(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "Property fetched successfully", prop, nil)
}

// GET /api/v1/map?style=
func (h *Handlers) ClientMap(c *fiber.Ctx) error {
	view, err := h.Service.MapViewForClient(c.UserContext(), geo.ParseStyle(c.Query("style")))
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "Map fetched successfully", view, nil)
}

// GET /api/v1/dashboard/stats
func (h *Handlers) DashboardStats(c *fiber.Ctx) error {
	stats, err := h.Service.GetDashboardStats(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "Dashboard stats fetched successfully", stats, nil)
}

// GET /api/v1/market-updates?market_id=
func (h *Handlers) ListMarketUpdates(c *fiber.Ctx) error {
	var marketID *uuid.UUID
	if raw := c.Query("market_id"); raw != "" {
		id, ok := validation.ParseID(raw)
		if !ok {
			return response.BadRequest(c, "Invalid market id")
		}
		marketID = &id
	}
	updates, err := h.Service.ListMarketUpdates(c.UserContext(), marketID)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "Market updates fetched successfully", updates, fiber.Map{"count": len(updates)})
}

type createUpdateBody struct {
	MarketID string `json:"market_id"`
	Author   string `json:"author"`
	Message  string `json:"message"`
}

// POST /api/v1/market-updates
func (h *Handlers) CreateMarketUpdate(c *fiber.Ctx) error {
	var body createUpdateBody
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if f := validation.MissingField([][2]string{
		{"market_id", body.MarketID},
		{"author", body.Author},
		{"message", body.Message},
	}); f != "" {
		return response.BadRequest(c, "Missing required field: "+f)
	}
	marketID, ok := validation.ParseID(body.MarketID)
	if !ok {
		return response.BadRequest(c, "Invalid market id")
	}
	if !validation.IsValidMessage(body.Message) {
		return response.BadRequest(c, "Message is too long")
	}
	update, err := h.Service.CreateMarketUpdate(c.UserContext(), marketID, body.Author, body.Message)
	if err != nil {
		return fail(c, err)
	}
	return response.SuccessCreated(c, "Market update created successfully", update, nil)
}

type editUpdateBody struct {
	Message string `json:"message"`
}

// PUT /api/v1/market-updates/:id
func (h *Handlers) UpdateMarketUpdate(c *fiber.Ctx) error {
	id, ok := validation.ParseID(c.Params("id"))
	if !ok {
		return response.BadRequest(c, "Invalid market update id")
	}
	var body editUpdateBody
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if f := validation.MissingField([][2]string{{"message", body.Message}}); f != "" {
		return response.BadRequest(c, "Missing required field: "+f)
	}
	if !validation.IsValidMessage(body.Message) {
		return response.BadRequest(c, "Message is too long")
	}
	update, err := h.Service.UpdateMarketUpdate(c.UserContext(), id, body.Message)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "Market update saved successfully", update, nil)
}

// DELETE /api/v1/market-updates/:id
func (h *Handlers) DeleteMarketUpdate(c *fiber.Ctx) error {
	id, ok := validation.ParseID(c.Params("id"))
	if !ok {
		return response.BadRequest(c, "Invalid market update id")
	}
	deleted, err := h.Service.DeleteMarketUpdate(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "Market update deleted successfully", fiber.Map{"deleted": deleted}, nil)
}
