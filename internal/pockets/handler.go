package pockets

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/pockets/internal/amount"
	"github.com/congo-pay/pockets/internal/ledger"
	"github.com/congo-pay/pockets/internal/middleware"
	"github.com/congo-pay/pockets/internal/settlement"
)

// Handler exposes pocket HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a pockets handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List returns every pocket with the summary figures.
func (h *Handler) List(c *fiber.Ctx) error {
	o, err := h.service.Overview(c.UserContext(), middleware.Owner(c))
	if err != nil {
		return respondError(c, err, 0)
	}
	return c.Status(http.StatusOK).JSON(toOverview(o))
}

// Get returns one pocket.
func (h *Handler) Get(c *fiber.Ctx) error {
	name, err := pocketParam(c)
	if err != nil {
		return err
	}
	p, err := h.service.Pocket(c.UserContext(), middleware.Owner(c), name)
	if err != nil {
		return respondError(c, err, 0)
	}
	return c.Status(http.StatusOK).JSON(toPocket(p))
}

// Create adds an empty pocket.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	op := ledger.Create(req.Name).WithRequestID(requestID(c, req.RequestID))
	return h.submit(c, op, http.StatusCreated)
}

// Delete removes an empty pocket.
func (h *Handler) Delete(c *fiber.Ctx) error {
	name, err := pocketParam(c)
	if err != nil {
		return err
	}
	op := ledger.Delete(name).WithRequestID(requestID(c, ""))
	return h.submit(c, op, http.StatusOK)
}

// Deposit credits external funds to a pocket.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	name, err := pocketParam(c)
	if err != nil {
		return err
	}
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amt, err := resolveAmount(req.Amount, req.AmountSTX)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	op := ledger.Deposit(name, amt).WithRequestID(requestID(c, req.RequestID))
	return h.submit(c, op, http.StatusOK)
}

// Move transfers funds between two pockets.
func (h *Handler) Move(c *fiber.Ctx) error {
	name, err := pocketParam(c)
	if err != nil {
		return err
	}
	var req moveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amt, err := resolveAmount(req.Amount, req.AmountSTX)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	op := ledger.Move(name, req.To, amt).WithRequestID(requestID(c, req.RequestID))
	return h.submit(c, op, http.StatusOK)
}

// Spend sends funds from a pocket to an external destination.
func (h *Handler) Spend(c *fiber.Ctx) error {
	name, err := pocketParam(c)
	if err != nil {
		return err
	}
	var req spendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amt, err := resolveAmount(req.Amount, req.AmountSTX)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	op := ledger.Spend(name, amt, req.Destination).WithRequestID(requestID(c, req.RequestID))
	return h.submit(c, op, http.StatusOK)
}

// Log returns the owner's audit log.
func (h *Handler) Log(c *fiber.Ctx) error {
	entries, err := h.service.Log(c.UserContext(), middleware.Owner(c))
	if err != nil {
		return respondError(c, err, 0)
	}
	out := make([]logEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toLogEntry(e))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"entries": out})
}

// Confirm records the settlement layer's verdict on a committed entry.
func (h *Handler) Confirm(c *fiber.Ctx) error {
	seq, err := strconv.ParseUint(c.Params("seq"), 10, 64)
	if err != nil || seq == 0 {
		return fiber.NewError(http.StatusBadRequest, "invalid sequence number")
	}
	var req confirmRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	out, err := h.service.Confirm(c.UserContext(), middleware.Owner(c), settlement.Confirmation{
		Seq:       seq,
		Settled:   req.Settled,
		Reference: req.Reference,
	})
	if err != nil {
		return respondError(c, err, seq)
	}
	resp := confirmResponse{Seq: out.Seq, Status: out.Status, Reference: out.Reference}
	if out.Compensation != nil {
		r := toResult(*out.Compensation, nil)
		resp.Compensation = &r
	}
	return c.Status(http.StatusOK).JSON(resp)
}

// Replay rebuilds the caller's ledger from its log.
func (h *Handler) Replay(c *fiber.Ctx) error {
	rep, err := h.service.Replay(c.UserContext(), middleware.Owner(c))
	if err != nil {
		return respondError(c, err, 0)
	}
	dangling := rep.Dangling
	if dangling == nil {
		dangling = []uint64{}
	}
	return c.Status(http.StatusOK).JSON(replayResponse{
		Replayed: rep.Replayed,
		Dangling: dangling,
		Repaired: rep.Repaired,
		Pockets:  toPockets(rep.Ledger.Pockets),
		Total:    money(rep.Ledger.Total),
	})
}

func (h *Handler) submit(c *fiber.Ctx, op ledger.Operation, okStatus int) error {
	out, err := h.service.Submit(c.UserContext(), middleware.Owner(c), op)
	if err != nil {
		return respondError(c, err, out.Seq)
	}
	return c.Status(okStatus).JSON(toResult(out.Result, out.Settlement))
}

func pocketParam(c *fiber.Ctx) (string, error) {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil {
		return "", fiber.NewError(http.StatusBadRequest, "invalid pocket name encoding")
	}
	return name, nil
}

// requestID prefers the body field and falls back to the Idempotency-Key header.
func requestID(c *fiber.Ctx, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return middleware.IdempotencyKey(c)
}

func respondError(c *fiber.Ctx, err error, seq uint64) error {
	return c.Status(statusFor(err)).JSON(errorResponse{Error: err.Error(), Reason: reasonFor(err), Seq: seq})
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, settlement.ErrCompensationRejected):
		return "compensation_rejected"
	case errors.Is(err, settlement.ErrNotSettleable):
		return "not_settleable"
	case errors.Is(err, ledger.ErrUnknownEntry):
		return "unknown_entry"
	default:
		return ledger.Reason(err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvariantViolation):
		return http.StatusInternalServerError
	case errors.Is(err, ledger.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, settlement.ErrCompensationRejected),
		errors.Is(err, settlement.ErrNotSettleable),
		errors.Is(err, ledger.ErrDuplicateName),
		errors.Is(err, ledger.ErrNonZeroBalance):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, ledger.ErrUnknownEntry):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrSameSource),
		errors.Is(err, ledger.ErrOverflow),
		errors.Is(err, ledger.ErrUnderflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrInvalidOwner):
		return http.StatusUnauthorized
	case errors.Is(err, ledger.ErrInvalidName),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidDestination),
		errors.Is(err, ledger.ErrUnknownOperation),
		errors.Is(err, amount.ErrNegative),
		errors.Is(err, amount.ErrFractional),
		errors.Is(err, amount.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
