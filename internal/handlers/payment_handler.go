package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"khqrgw/internal/domain"
	"khqrgw/pkg/khqr"
)

// Merchant carries the configured account the QRs are issued for.
type Merchant struct {
	AccountID     string
	Name          string
	City          string
	AcquiringBank string
	MCC           string
}

// StatusChecker runs one settlement lookup and applies it to the ledger.
// Implemented by the reconciler so the on-demand route and the background
// sweep share one code path.
type StatusChecker interface {
	Check(ctx context.Context, p domain.Payment) (domain.Payment, error)
}

type PaymentHandler struct {
	ledger     domain.Ledger
	client     domain.SettlementClient
	checker    StatusChecker
	merchant   Merchant
	adminToken string
	log        *zap.Logger
}

func NewPaymentHandler(ledger domain.Ledger, client domain.SettlementClient, checker StatusChecker, merchant Merchant, adminToken string, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		ledger:     ledger,
		client:     client,
		checker:    checker,
		merchant:   merchant,
		adminToken: adminToken,
		log:        log,
	}
}

func (h *PaymentHandler) Register(app *fiber.App) {
	api := app.Group("/api")
	api.Post("/qr", h.CreateQR)
	api.Get("/qr/:md5", h.GetPayment)
	api.Post("/qr/:md5/deeplink", h.CreateDeeplink)
	api.Get("/qr/:md5/status", h.CheckStatus)
	api.Get("/payments", h.ListPayments)
	api.Post("/purge", h.Purge)
	app.Get("/healthz", h.Health)
}

type CreateQRRequest struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	BillNumber  string  `json:"billNumber"`
	Description string  `json:"description"`
	Deeplink    bool    `json:"deeplink"`
}

func (h *PaymentHandler) CreateQR(c *fiber.Ctx) error {
	var req CreateQRRequest
	if err := c.BodyParser(&req); err != nil {
		return failWith(c, fmt.Errorf("%w: malformed request body", domain.ErrInvalidRequest))
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Amount <= 0 {
		return failWith(c, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidRequest))
	}
	if req.Currency != khqr.CurrencyKHR && req.Currency != khqr.CurrencyUSD {
		return failWith(c, fmt.Errorf("%w: currency must be KHR or USD", domain.ErrInvalidRequest))
	}
	if req.BillNumber == "" {
		req.BillNumber = "INV-" + strings.ToUpper(uuid.NewString()[:8])
	}

	qr, err := khqr.Build(khqr.Options{
		AccountID:     h.merchant.AccountID,
		MerchantName:  h.merchant.Name,
		MerchantCity:  h.merchant.City,
		AcquiringBank: h.merchant.AcquiringBank,
		MCC:           h.merchant.MCC,
		Currency:      req.Currency,
		Amount:        req.Amount,
		BillNumber:    req.BillNumber,
	})
	if err != nil {
		return failWith(c, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
	}

	p := domain.Payment{
		BillNumber:  req.BillNumber,
		Amount:      req.Amount,
		Currency:    req.Currency,
		QRString:    qr.String(),
		MD5:         qr.MD5(),
		ShortHash:   qr.ShortHash(),
		Description: req.Description,
		Status:      domain.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	if req.Deeplink {
		// Best effort: the QR itself is payable without a deeplink.
		url, err := h.client.GenerateDeeplink(c.UserContext(), p.QRString)
		if err != nil {
			h.log.Warn("deeplink generation failed at QR creation",
				zap.String("md5", p.MD5), zap.Error(err))
		} else {
			p.DeeplinkURL = url
		}
	}

	if err := h.ledger.Save(c.UserContext(), p); err != nil {
		if !errors.Is(err, domain.ErrDuplicateBill) {
			h.log.Error("failed to save payment", zap.Error(err))
		}
		return failWith(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(p)
}

func (h *PaymentHandler) GetPayment(c *fiber.Ctx) error {
	p, err := h.ledger.Get(c.UserContext(), c.Params("md5"))
	if errors.Is(err, domain.ErrNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "payment not found")
	}
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "ledger unavailable")
	}
	return c.JSON(p)
}

func (h *PaymentHandler) CreateDeeplink(c *fiber.Ctx) error {
	ctx := c.UserContext()
	p, err := h.ledger.Get(ctx, c.Params("md5"))
	if errors.Is(err, domain.ErrNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "payment not found")
	}
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "ledger unavailable")
	}

	url, err := h.client.GenerateDeeplink(ctx, p.QRString)
	if err != nil {
		h.log.Warn("deeplink generation failed", zap.String("md5", p.MD5), zap.Error(err))
		return errorJSON(c, fiber.StatusBadGateway, "deeplink provider unavailable")
	}
	if err := h.ledger.SetDeeplink(ctx, p.MD5, url); err != nil && !errors.Is(err, domain.ErrTerminalStatus) {
		return errorJSON(c, fiber.StatusInternalServerError, "ledger unavailable")
	}
	p.DeeplinkURL = url
	return c.JSON(p)
}

func (h *PaymentHandler) CheckStatus(c *fiber.Ctx) error {
	ctx := c.UserContext()
	p, err := h.ledger.Get(ctx, c.Params("md5"))
	if errors.Is(err, domain.ErrNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "payment not found")
	}
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "ledger unavailable")
	}
	if p.Status.Terminal() {
		return c.JSON(p)
	}

	checked, err := h.checker.Check(ctx, p)
	if err != nil {
		// The record is now in "error"; the reconciler retries it.
		return c.Status(fiber.StatusBadGateway).JSON(checked)
	}
	return c.JSON(checked)
}

func (h *PaymentHandler) ListPayments(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	payments, err := h.ledger.List(c.UserContext(), limit)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "ledger unavailable")
	}
	if payments == nil {
		payments = []domain.Payment{}
	}
	return c.JSON(payments)
}

func (h *PaymentHandler) Purge(c *fiber.Ctx) error {
	if h.adminToken != "" && c.Get("X-Admin-Token") != h.adminToken {
		return errorJSON(c, fiber.StatusUnauthorized, "invalid admin token")
	}
	if err := h.ledger.Purge(c.UserContext()); err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "ledger unavailable")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *PaymentHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "ledger": h.ledger.Name()})
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// failWith maps the domain sentinels to HTTP statuses.
func failWith(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return errorJSON(c, fiber.StatusNotFound, "payment not found")
	case errors.Is(err, domain.ErrDuplicateBill):
		return errorJSON(c, fiber.StatusConflict, "a payment for this QR already exists")
	case errors.Is(err, domain.ErrProviderUnavailable):
		return errorJSON(c, fiber.StatusBadGateway, "settlement provider unavailable")
	default:
		return errorJSON(c, fiber.StatusInternalServerError, "internal error")
	}
}
