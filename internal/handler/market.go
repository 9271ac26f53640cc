// Package handler exposes the settlement engine over HTTP: read accessors
// for the observable ledger state and the mutating entry points.
package handler

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	imarket "github.com/kaifufi/imarket-go"
	"github.com/kaifufi/imarket-go/chain"
	"github.com/kaifufi/imarket-go/internal/journal"
)

// Handler serves the market API.
type Handler struct {
	market  *imarket.Market
	journal *journal.Store
	log     *zap.Logger
}

// New creates a handler. The journal is optional.
func New(market *imarket.Market, store *journal.Store, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{market: market, journal: store, log: log}
}

// Register attaches all routes under /api/v1/market.
func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/api/v1/market")

	g.GET("/fee-rate", h.getFeeRate)
	g.GET("/mint-fees", h.getMintFees)
	g.GET("/paused", h.getPaused)
	g.GET("/balance/:address", h.getBalance)
	g.GET("/fees/:currency", h.getPlatformFees)
	g.GET("/partner-fees/:partner/:currency", h.getPartnerFees)
	g.GET("/partner-rate/:partner", h.getPartnerRate)
	g.GET("/whitelist/:address", h.getWhitelisted)
	g.GET("/events", h.getEvents)

	g.POST("/deposit", h.postDeposit)
	g.POST("/withdraw", h.postWithdraw)
	g.POST("/fulfill", h.postFulfill)
	g.POST("/mint", h.postMint)
	g.POST("/withdraw-fees", h.postWithdrawFees)
	g.POST("/withdraw-partner-fees", h.postWithdrawPartnerFees)

	admin := g.Group("/admin")
	admin.POST("/fee-rate", h.postFeeRate)
	admin.POST("/mint-fees", h.postMintFees)
	admin.POST("/partner-rate", h.postPartnerRate)
	admin.POST("/discount-minter", h.postDiscountMinter)
	admin.POST("/pause", h.postPause)
	admin.POST("/unpause", h.postUnpause)
	admin.POST("/transfer", h.postTransferAdmin)
	admin.POST("/whitelist/remove", h.postRemoveAssetContract)
}

func (h *Handler) getFeeRate(c *gin.Context) {
	Ok(c, gin.H{"fee_rate_bps": h.market.FeeRate()})
}

func (h *Handler) getMintFees(c *gin.Context) {
	mintFee, discountMintFee := h.market.MintFees()
	Ok(c, gin.H{
		"mint_fee":          mintFee.String(),
		"discount_mint_fee": discountMintFee.String(),
	})
}

func (h *Handler) getPaused(c *gin.Context) {
	Ok(c, gin.H{"paused": h.market.Paused()})
}

func (h *Handler) getBalance(c *gin.Context) {
	addr, err := parseAddress(c.Param("address"))
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	Ok(c, gin.H{"balance": h.market.BalanceOf(addr).String()})
}

func (h *Handler) getPlatformFees(c *gin.Context) {
	currency, err := parseAddress(c.Param("currency"))
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	Ok(c, gin.H{"balance": h.market.PlatformFeeBalance(currency).String()})
}

func (h *Handler) getPartnerFees(c *gin.Context) {
	partner, err := parseAddress(c.Param("partner"))
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	currency, err := parseAddress(c.Param("currency"))
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	Ok(c, gin.H{"balance": h.market.PartnerFeeBalance(partner, currency).String()})
}

func (h *Handler) getPartnerRate(c *gin.Context) {
	partner, err := parseAddress(c.Param("partner"))
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	Ok(c, gin.H{"rate_bps": h.market.PartnerRate(partner)})
}

func (h *Handler) getWhitelisted(c *gin.Context) {
	addr, err := parseAddress(c.Param("address"))
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	Ok(c, gin.H{"whitelisted": h.market.IsWhitelisted(addr)})
}

func (h *Handler) getEvents(c *gin.Context) {
	if h.journal == nil {
		Error(c, http.StatusNotFound, "journal disabled")
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			Error(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	events, err := h.journal.Recent(limit)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	Ok(c, gin.H{"events": events})
}

type balanceRequest struct {
	Caller string `json:"caller" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

func (h *Handler) postDeposit(c *gin.Context) {
	var req balanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	call, amount, err := parseCall(req.Caller, req.Amount)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	call.Value = amount

	ev, err := h.market.Deposit(call)
	if err != nil {
		Error(c, statusFor(err), err.Error())
		return
	}
	Ok(c, ev)
}

func (h *Handler) postWithdraw(c *gin.Context) {
	var req balanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	call, amount, err := parseCall(req.Caller, req.Amount)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}

	ev, err := h.market.Withdraw(call, amount)
	if err != nil {
		Error(c, statusFor(err), err.Error())
		return
	}
	Ok(c, ev)
}

type callerRequest struct {
	Caller string `json:"caller" binding:"required"`
}

type feeRateRequest struct {
	Caller  string `json:"caller" binding:"required"`
	RateBps uint64 `json:"rate_bps"`
}

type mintFeesRequest struct {
	Caller          string `json:"caller" binding:"required"`
	MintFee         string `json:"mint_fee" binding:"required"`
	DiscountMintFee string `json:"discount_mint_fee" binding:"required"`
}

type partnerRateRequest struct {
	Caller  string `json:"caller" binding:"required"`
	Partner string `json:"partner" binding:"required"`
	RateBps uint64 `json:"rate_bps"`
}

type addressRequest struct {
	Caller  string `json:"caller" binding:"required"`
	Address string `json:"address" binding:"required"`
}

type currencyRequest struct {
	Caller   string `json:"caller" binding:"required"`
	Currency string `json:"currency" binding:"required"`
}

type mintRequest struct {
	Caller    string `json:"caller" binding:"required"`
	To        string `json:"to" binding:"required"`
	Creator   string `json:"creator"`
	SealedKey string `json:"sealed_key"`
}

func (h *Handler) postMint(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	var sealedKey []byte
	if req.SealedKey != "" {
		if sealedKey, err = hexutil.Decode(req.SealedKey); err != nil {
			Error(c, http.StatusBadRequest, fmt.Sprintf("invalid sealed_key: %v", err))
			return
		}
	}

	tokenID, ev, err := h.market.MintAsset(c.Request.Context(), imarket.Call{Caller: caller}, to, common.HexToAddress(req.Creator), sealedKey)
	if err != nil {
		Error(c, statusFor(err), err.Error())
		return
	}
	Ok(c, gin.H{"token_id": tokenID.String(), "event": ev})
}

func (h *Handler) postWithdrawFees(c *gin.Context) {
	var req currencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	caller, currency, err := parseAddressPair(req.Caller, req.Currency)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}

	ev, err := h.market.WithdrawFees(c.Request.Context(), imarket.Call{Caller: caller}, currency)
	if err != nil {
		Error(c, statusFor(err), err.Error())
		return
	}
	Ok(c, ev)
}

func (h *Handler) postWithdrawPartnerFees(c *gin.Context) {
	var req currencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	caller, currency, err := parseAddressPair(req.Caller, req.Currency)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}

	ev, err := h.market.WithdrawPartnerFees(c.Request.Context(), imarket.Call{Caller: caller}, currency)
	if err != nil {
		Error(c, statusFor(err), err.Error())
		return
	}
	Ok(c, ev)
}

func (h *Handler) postFeeRate(c *gin.Context) {
	var req feeRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}

	ev, err := h.market.SetFeeRate(imarket.Call{Caller: caller}, req.RateBps)
	if err != nil {
		Error(c, statusFor(err), err.Error())
		return
	}
	Ok(c, ev)
}

func (h *Handler) postMintFees(c *gin.Context) {
	var req mintFeesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	mintFee, err := parseBig(req.MintFee)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	discountMintFee, err := parseBig(req.DiscountMintFee)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}

	ev, err := h.market.SetMintFees(imarket.Call{Caller: caller}, mintFee, discountMintFee)
	if err != nil {
		Error(c, statusFor(err), err.Error())
		return
	}
	Ok(c, ev)
}

func (h *Handler) postPartnerRate(c *gin.Context) {
	var req partnerRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	caller, partner, err := parseAddressPair(req.Caller, req.Partner)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}

	ev, err := h.market.SetPartnerRate(imarket.Call{Caller: caller}, partner, req.RateBps)
	if err != nil {
		Error(c, statusFor(err), err.Error())
		return
	}
	Ok(c, ev)
}

func (h *Handler) postDiscountMinter(c *gin.Context) {
	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	caller, account, err := parseAddressPair(req.Caller, req.Address)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.market.GrantDiscountMinter(imarket.Call{Caller: caller}, account); err != nil {
		Error(c, statusFor(err), err.Error())
		return
	}
	Ok(c, nil)
}

func (h *Handler) postPause(c *gin.Context) {
	h.togglePause(c, true)
}

func (h *Handler) postUnpause(c *gin.Context) {
	h.togglePause(c, false)
}

func (h *Handler) togglePause(c *gin.Context, pause bool) {
	var req callerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}

	var ev imarket.Event
	if pause {
		ev, err = h.market.Pause(imarket.Call{Caller: caller})
	} else {
		ev, err = h.market.Unpause(imarket.Call{Caller: caller})
	}
	if err != nil {
		Error(c, statusFor(err), err.Error())
		return
	}
	Ok(c, ev)
}

func (h *Handler) postTransferAdmin(c *gin.Context) {
	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	caller, newAdmin, err := parseAddressPair(req.Caller, req.Address)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}

	ev, err := h.market.TransferAdmin(imarket.Call{Caller: caller}, newAdmin)
	if err != nil {
		Error(c, statusFor(err), err.Error())
		return
	}
	Ok(c, ev)
}

// Whitelist additions and registry repointing bind a live AssetRegistry
// implementation, so only removal is served over HTTP.
func (h *Handler) postRemoveAssetContract(c *gin.Context) {
	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	caller, addr, err := parseAddressPair(req.Caller, req.Address)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}

	ev, err := h.market.RemoveAssetContract(imarket.Call{Caller: caller}, addr)
	if err != nil {
		Error(c, statusFor(err), err.Error())
		return
	}
	Ok(c, ev)
}

type orderRequest struct {
	TokenID       string `json:"token_id" binding:"required"`
	MinPrice      string `json:"min_price"`
	Currency      string `json:"currency"`
	ExpireTime    uint64 `json:"expire_time"`
	Nonce         string `json:"nonce" binding:"required"`
	Receiver      string `json:"receiver"`
	AssetContract string `json:"asset_contract"`
	Scheme        int    `json:"scheme"`
	Signature     string `json:"signature" binding:"required"`
}

type offerRequest struct {
	TokenID       string `json:"token_id" binding:"required"`
	Price         string `json:"price"`
	ExpireTime    uint64 `json:"expire_time"`
	NeedProof     bool   `json:"need_proof"`
	Nonce         string `json:"nonce" binding:"required"`
	AssetContract string `json:"asset_contract"`
	Scheme        int    `json:"scheme"`
	Signature     string `json:"signature" binding:"required"`
}

type fulfillRequest struct {
	Caller string       `json:"caller" binding:"required"`
	Value  string       `json:"value"`
	Order  orderRequest `json:"order" binding:"required"`
	Offer  offerRequest `json:"offer" binding:"required"`
	Proofs []string     `json:"proofs"`
}

func (h *Handler) postFulfill(c *gin.Context) {
	var req fulfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}

	caller, err := parseAddress(req.Caller)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	call := imarket.Call{Caller: caller}
	if req.Value != "" {
		value, err := parseBig(req.Value)
		if err != nil {
			Error(c, http.StatusBadRequest, err.Error())
			return
		}
		call.Value = value
	}

	order, err := req.Order.toOrder()
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	offer, err := req.Offer.toOffer()
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}

	proofs := make([][]byte, 0, len(req.Proofs))
	for _, raw := range req.Proofs {
		proof, err := hexutil.Decode(raw)
		if err != nil {
			Error(c, http.StatusBadRequest, fmt.Sprintf("invalid proof: %v", err))
			return
		}
		proofs = append(proofs, proof)
	}

	ev, err := h.market.FulfillOrder(c.Request.Context(), call, order, offer, proofs)
	if err != nil {
		h.log.Warn("fulfillment rejected", zap.Error(err))
		Error(c, statusFor(err), err.Error())
		return
	}
	Ok(c, ev)
}

func (r orderRequest) toOrder() (*chain.Order, error) {
	tokenID, err := parseBig(r.TokenID)
	if err != nil {
		return nil, fmt.Errorf("invalid token_id: %w", err)
	}
	minPrice := big.NewInt(0)
	if r.MinPrice != "" {
		if minPrice, err = parseBig(r.MinPrice); err != nil {
			return nil, fmt.Errorf("invalid min_price: %w", err)
		}
	}
	nonce, err := parseHash(r.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce: %w", err)
	}
	signature, err := hexutil.Decode(r.Signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}

	return &chain.Order{
		TokenID:       tokenID,
		MinPrice:      minPrice,
		Currency:      common.HexToAddress(r.Currency),
		ExpireTime:    r.ExpireTime,
		Nonce:         nonce,
		Receiver:      common.HexToAddress(r.Receiver),
		AssetContract: common.HexToAddress(r.AssetContract),
		Scheme:        chain.SignScheme(r.Scheme),
		Signature:     signature,
	}, nil
}

func (r offerRequest) toOffer() (*chain.Offer, error) {
	tokenID, err := parseBig(r.TokenID)
	if err != nil {
		return nil, fmt.Errorf("invalid token_id: %w", err)
	}
	price := big.NewInt(0)
	if r.Price != "" {
		if price, err = parseBig(r.Price); err != nil {
			return nil, fmt.Errorf("invalid price: %w", err)
		}
	}
	nonce, err := parseHash(r.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce: %w", err)
	}
	signature, err := hexutil.Decode(r.Signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}

	return &chain.Offer{
		TokenID:       tokenID,
		Price:         price,
		ExpireTime:    r.ExpireTime,
		NeedProof:     r.NeedProof,
		Nonce:         nonce,
		AssetContract: common.HexToAddress(r.AssetContract),
		Scheme:        chain.SignScheme(r.Scheme),
		Signature:     signature,
	}, nil
}

func parseCall(caller, amount string) (imarket.Call, *big.Int, error) {
	addr, err := parseAddress(caller)
	if err != nil {
		return imarket.Call{}, nil, err
	}
	value, err := parseBig(amount)
	if err != nil {
		return imarket.Call{}, nil, err
	}
	return imarket.Call{Caller: addr}, value, nil
}

func parseAddressPair(a, b string) (common.Address, common.Address, error) {
	first, err := parseAddress(a)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	second, err := parseAddress(b)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return first, second, nil
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid address: %q", raw)
	}
	return common.HexToAddress(raw), nil
}

func parseBig(raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %q", raw)
	}
	return value, nil
}

func parseHash(raw string) (common.Hash, error) {
	decoded, err := hexutil.Decode(raw)
	if err != nil {
		return common.Hash{}, err
	}
	if len(decoded) != common.HashLength {
		return common.Hash{}, fmt.Errorf("expected 32 bytes, got %d", len(decoded))
	}
	return common.BytesToHash(decoded), nil
}

// statusFor maps engine failures to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, imarket.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, imarket.ErrPaused),
		errors.Is(err, imarket.ErrReentrantCall):
		return http.StatusServiceUnavailable
	case errors.Is(err, imarket.ErrOrderAlreadyUsed),
		errors.Is(err, imarket.ErrOfferAlreadyUsed):
		return http.StatusConflict
	case errors.Is(err, imarket.ErrInsufficientBalance),
		errors.Is(err, imarket.ErrNothingToWithdraw):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}
