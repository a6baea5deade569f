package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	itemService     *services.WorkflowItems
	resourceService *services.Resources
	cycleService    *services.Cycles
	validator       *validator.Validate
	payloads        *PayloadValidator
}

func NewAPIHandlers(
	itemService *services.WorkflowItems,
	resourceService *services.Resources,
	cycleService *services.Cycles,
	validator *validator.Validate,
	payloads *PayloadValidator,
) *APIHandlers {
	return &APIHandlers{
		itemService:     itemService,
		resourceService: resourceService,
		cycleService:    cycleService,
		validator:       validator,
		payloads:        payloads,
	}
}

// Register mounts the API routes on router.
func (h *APIHandlers) Register(router fiber.Router) {
	items := router.Group("/workflow-items")
	items.Get("/", h.GetWorkflowItems)
	items.Post("/", h.CreateWorkflowItem)
	items.Get("/:id", h.GetWorkflowItem)
	items.Post("/:id/approve", h.ApproveWorkflowItem)
	items.Post("/:id/reject", h.RejectWorkflowItem)
	items.Post("/:id/deliver", h.DeliverWorkflowItem)

	router.Post("/domains/:domain/force-cycle", h.ForceCycle)
	router.Get("/resources/:kind", h.GetResources)
	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.itemService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Wardflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Wardflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflowItems(c fiber.Ctx) error {
	req := services.ListItemsRequest{
		Kind:       c.Query("kind"),
		Status:     c.Query("status"),
		Department: c.Query("department"),
		Subject:    c.Query("subject"),
	}

	if active := c.Query("active"); active != "" {
		activeOnly, err := strconv.ParseBool(active)
		if err != nil {
			return badRequest(c, "Invalid query parameters: active must be a boolean")
		}

		req.ActiveOnly = activeOnly
	}

	items, err := h.itemService.List(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"items":       items,
		"total_count": len(items),
	})
}

func (h *APIHandlers) GetWorkflowItem(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow item ID is required")
	}

	item, err := h.itemService.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(item)
}

func (h *APIHandlers) CreateWorkflowItem(c fiber.Ctx) error {
	var req CreateWorkflowItemRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	kind := models.ItemKind(req.Kind)

	if err := h.payloads.Validate(kind, req.Payload); err != nil {
		return badRequest(c, err.Error())
	}

	var payload models.Payload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return badRequest(c, "Invalid payload: "+err.Error())
	}

	item := &models.WorkflowItem{
		Kind:         kind,
		Priority:     models.Priority(req.Priority),
		DepartmentID: req.DepartmentID,
		Reason:       req.Reason,
		ExpiresAt:    req.ExpiresAt,
		Payload:      payload,
	}

	created, err := h.itemService.Create(c.Context(), item)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) ApproveWorkflowItem(c fiber.Ctx) error {
	var req ApproveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	item, err := h.itemService.Approve(c.Context(), c.Params("id"), services.ApproveRequest{
		Actor:        req.Actor,
		SelectionRef: req.SelectionRef,
		Reason:       req.Reason,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(item)
}

func (h *APIHandlers) RejectWorkflowItem(c fiber.Ctx) error {
	var req RejectRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	item, err := h.itemService.Reject(c.Context(), c.Params("id"), req.Actor, req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(item)
}

func (h *APIHandlers) DeliverWorkflowItem(c fiber.Ctx) error {
	var req DeliverRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	item, err := h.itemService.Deliver(c.Context(), c.Params("id"), req.Actor)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(item)
}

func (h *APIHandlers) ForceCycle(c fiber.Ctx) error {
	var req ForceCycleRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		if err := h.validator.Struct(req); err != nil {
			return badRequest(c, err.Error())
		}
	}

	domain := c.Params("domain")

	scheduled, err := h.cycleService.Force(c.Context(), domain, req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	status := ForceCycleScheduled
	if !scheduled {
		status = ForceCycleSkipped
	}

	return c.Status(fiber.StatusAccepted).JSON(ForceCycleResponse{Domain: domain, Status: status})
}

func (h *APIHandlers) GetResources(c fiber.Ctx) error {
	kind := c.Params("kind")

	units, err := h.resourceService.Snapshot(c.Context(), kind)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"kind":  kind,
		"units": units,
	})
}
