// Package server exposes the engine over HTTP/JSON and serves gRPC health
// checks for orchestration.
package server

import (
	"errors"
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"

	"SynthLedger/internal/engine"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/observability"
)

// Handler serves the ledger API. Amounts cross the wire as decimal strings
// at 1e18 precision; big.Int values do not fit JSON numbers.
type Handler struct {
	engine *engine.Engine
	health *observability.HealthChecker
}

func NewHandler(eng *engine.Engine, health *observability.HealthChecker) *Handler {
	return &Handler{engine: eng, health: health}
}

// Router builds the gin engine with all routes registered.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", gin.WrapF(h.health.LivenessHandler))
	r.GET("/readyz", gin.WrapF(h.health.ReadinessHandler))

	v1 := r.Group("/v1")
	{
		v1.POST("/collateral/deposit", h.Deposit)
		v1.POST("/collateral/redeem", h.Redeem)
		v1.POST("/debt/mint", h.Mint)
		v1.POST("/debt/burn", h.Burn)
		v1.POST("/positions/open", h.DepositAndMint)
		v1.POST("/positions/close", h.RedeemAndBurn)
		v1.POST("/liquidations", h.Liquidate)

		v1.GET("/accounts/:user", h.AccountInformation)
		v1.GET("/accounts/:user/health", h.HealthFactor)
		v1.GET("/accounts/:user/collateral/:asset", h.CollateralBalance)
		v1.GET("/assets", h.Assets)
		v1.GET("/params", h.Params)
	}

	return r
}

func parseAmount(s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(s, 10)
	return v, ok
}

// writeOperationError maps engine errors onto HTTP statuses. Rejections
// are client errors; only oracle failures surface as 503.
func writeOperationError(c *gin.Context, err error) {
	var broken *engine.HealthFactorBrokenError
	var healthy *engine.HealthFactorOKError

	switch {
	case errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrAssetNotAllowed):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrInsufficientBalance):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &broken):
		c.JSON(http.StatusConflict, gin.H{
			"error":         err.Error(),
			"health_factor": broken.Ratio.String(),
		})
	case errors.As(err, &healthy):
		c.JSON(http.StatusConflict, gin.H{
			"error":         err.Error(),
			"health_factor": healthy.Ratio.String(),
		})
	case errors.Is(err, engine.ErrHealthFactorNotImproved):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrTransferFailed),
		errors.Is(err, engine.ErrMintFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.Is(err, oracle.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type DepositReq struct {
	User   string `json:"user" binding:"required"`
	Asset  string `json:"asset" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

func (h *Handler) Deposit(c *gin.Context) {
	var req DepositReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal integer string"})
		return
	}

	if err := h.engine.DepositCollateral(ledger.Account(req.User), ledger.Asset(req.Asset), amount); err != nil {
		writeOperationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sequence": h.engine.Sequence()})
}

type RedeemReq struct {
	User      string `json:"user" binding:"required"`
	Asset     string `json:"asset" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	Recipient string `json:"recipient"`
}

func (h *Handler) Redeem(c *gin.Context) {
	var req RedeemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal integer string"})
		return
	}
	recipient := req.Recipient
	if recipient == "" {
		recipient = req.User
	}

	if err := h.engine.RedeemCollateral(ledger.Account(req.User), ledger.Asset(req.Asset), amount, ledger.Account(recipient)); err != nil {
		writeOperationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sequence": h.engine.Sequence()})
}

type MintReq struct {
	User   string `json:"user" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

func (h *Handler) Mint(c *gin.Context) {
	var req MintReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal integer string"})
		return
	}

	if err := h.engine.MintDebt(ledger.Account(req.User), amount); err != nil {
		writeOperationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sequence": h.engine.Sequence()})
}

type BurnReq struct {
	DebtOwner string `json:"debt_owner" binding:"required"`
	Payer     string `json:"payer"`
	Amount    string `json:"amount" binding:"required"`
}

func (h *Handler) Burn(c *gin.Context) {
	var req BurnReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal integer string"})
		return
	}
	payer := req.Payer
	if payer == "" {
		payer = req.DebtOwner
	}

	if err := h.engine.BurnDebt(amount, ledger.Account(req.DebtOwner), ledger.Account(payer)); err != nil {
		writeOperationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sequence": h.engine.Sequence()})
}

type OpenPositionReq struct {
	User             string `json:"user" binding:"required"`
	Asset            string `json:"asset" binding:"required"`
	CollateralAmount string `json:"collateral_amount" binding:"required"`
	DebtAmount       string `json:"debt_amount" binding:"required"`
}

func (h *Handler) DepositAndMint(c *gin.Context) {
	var req OpenPositionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	collateral, ok1 := parseAmount(req.CollateralAmount)
	debt, ok2 := parseAmount(req.DebtAmount)
	if !ok1 || !ok2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amounts must be decimal integer strings"})
		return
	}

	if err := h.engine.DepositAndMint(ledger.Account(req.User), ledger.Asset(req.Asset), collateral, debt); err != nil {
		writeOperationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sequence": h.engine.Sequence()})
}

func (h *Handler) RedeemAndBurn(c *gin.Context) {
	var req OpenPositionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	collateral, ok1 := parseAmount(req.CollateralAmount)
	debt, ok2 := parseAmount(req.DebtAmount)
	if !ok1 || !ok2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amounts must be decimal integer strings"})
		return
	}

	if err := h.engine.RedeemAndBurn(ledger.Account(req.User), ledger.Asset(req.Asset), collateral, debt); err != nil {
		writeOperationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sequence": h.engine.Sequence()})
}

type LiquidateReq struct {
	Liquidator  string `json:"liquidator" binding:"required"`
	Violator    string `json:"violator" binding:"required"`
	Asset       string `json:"asset" binding:"required"`
	DebtToCover string `json:"debt_to_cover" binding:"required"`
}

func (h *Handler) Liquidate(c *gin.Context) {
	var req LiquidateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	debtToCover, ok := parseAmount(req.DebtToCover)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "debt_to_cover must be a decimal integer string"})
		return
	}

	if err := h.engine.Liquidate(ledger.Account(req.Liquidator), ledger.Account(req.Violator), ledger.Asset(req.Asset), debtToCover); err != nil {
		writeOperationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sequence": h.engine.Sequence()})
}

func (h *Handler) AccountInformation(c *gin.Context) {
	user := ledger.Account(c.Param("user"))

	info, err := h.engine.AccountInformation(user)
	if err != nil {
		writeOperationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":             string(user),
		"debt":             info.Debt.String(),
		"collateral_value": info.CollateralValueUsd.String(),
		"health_factor":    info.HealthFactor.String(),
	})
}

func (h *Handler) HealthFactor(c *gin.Context) {
	user := ledger.Account(c.Param("user"))

	hf, err := h.engine.HealthFactor(user)
	if err != nil {
		writeOperationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":          string(user),
		"health_factor": hf.String(),
	})
}

func (h *Handler) CollateralBalance(c *gin.Context) {
	user := ledger.Account(c.Param("user"))
	asset := ledger.Asset(c.Param("asset"))

	bal := h.engine.CollateralBalance(user, asset)
	c.JSON(http.StatusOK, gin.H{
		"user":    string(user),
		"asset":   string(asset),
		"balance": bal.String(),
	})
}

func (h *Handler) Assets(c *gin.Context) {
	assets := h.engine.Assets()
	out := make([]string, 0, len(assets))
	for _, a := range assets {
		out = append(out, string(a))
	}
	c.JSON(http.StatusOK, gin.H{"assets": out})
}

func (h *Handler) Params(c *gin.Context) {
	p := h.engine.Params()
	c.JSON(http.StatusOK, gin.H{
		"liquidation_threshold": p.LiquidationThreshold.String(),
		"liquidation_bonus":     p.LiquidationBonus.String(),
		"liquidation_precision": p.LiquidationPrecision.String(),
		"min_health_factor":     p.MinHealthFactor.String(),
	})
}
