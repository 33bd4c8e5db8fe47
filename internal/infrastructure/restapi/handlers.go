package restapi

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"networth_aggregator/internal/app/port"
	"networth_aggregator/internal/app/service"
	"networth_aggregator/internal/domain/entity"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errBadRequest = errors.New("bad request")

// Handler serves the aggregation API.
type Handler struct {
	portfolio port.PortfolioService
	balances  *service.BalanceService
	escrows   *service.EscrowService
	prices    *service.PriceService
	tracker   *service.Tracker
	registry  port.ChainRegistry
	logger    *zap.Logger
}

// NewHandler creates a new Handler. tracker may be nil when background tracking is disabled.
func NewHandler(
	portfolio port.PortfolioService,
	balances *service.BalanceService,
	escrows *service.EscrowService,
	prices *service.PriceService,
	tracker *service.Tracker,
	registry port.ChainRegistry,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		portfolio: portfolio,
		balances:  balances,
		escrows:   escrows,
		prices:    prices,
		tracker:   tracker,
		registry:  registry,
		logger:    logger.Named("RestAPI"),
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrUnknownChain), errors.Is(err, entity.ErrUnknownAddress):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusFor(err), Response{Status: StatusError, Error: err.Error()})
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Data: data, Status: StatusOK})
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseChainIDs(raw string) ([]uint64, error) {
	var ids []uint64
	for _, part := range splitList(raw) {
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id %q: %w", part, errBadRequest)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseSelection(c *gin.Context) (port.Selection, error) {
	chains, err := parseChainIDs(c.Query("chains"))
	if err != nil {
		return port.Selection{}, err
	}
	return port.Selection{Accounts: splitList(c.Query("accounts")), ChainIDs: chains}, nil
}

func (h *Handler) chainParam(c *gin.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("chainId"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chain id %q: %w", c.Param("chainId"), errBadRequest)
	}
	if _, known := h.registry.Chain(id); !known {
		return 0, fmt.Errorf("chain %d: %w", id, entity.ErrUnknownChain)
	}
	return id, nil
}

// resolveToken maps an alias to its address; anything else is passed through.
func (h *Handler) resolveToken(chainID uint64, token string) string {
	if meta, ok := h.registry.Lookup(chainID, token); ok {
		return meta.Address
	}
	return token
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": StatusOK})
}

// Chains lists the configured chains.
func (h *Handler) Chains(c *gin.Context) {
	ok(c, h.registry.Chains())
}

// NetWorth values the wallet holdings of a selection.
func (h *Handler) NetWorth(c *gin.Context) {
	sel, err := parseSelection(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	val, err := h.portfolio.NetWorth(c.Request.Context(), sel)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, valuationResponse(val))
}

// VestingNetWorth values the escrowed holdings of a selection.
func (h *Handler) VestingNetWorth(c *gin.Context) {
	sel, err := parseSelection(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	val, err := h.portfolio.VestingNetWorth(c.Request.Context(), sel)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, valuationResponse(val))
}

// TVL values every staking pool and vault.
func (h *Handler) TVL(c *gin.Context) {
	chains, err := parseChainIDs(c.Query("chains"))
	if err != nil {
		h.fail(c, err)
		return
	}
	val, err := h.portfolio.TVL(c.Request.Context(), chains)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, valuationResponse(val))
}

type balanceDTO struct {
	Token   string `json:"token"`
	Balance Amount `json:"balance"`
	Error   string `json:"error,omitempty"`
}

// Balances reads the balances of one account. Without a tokens parameter every
// registered token of the chain is read.
func (h *Handler) Balances(c *gin.Context) {
	chainID, err := h.chainParam(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	tokens := splitList(c.Query("tokens"))
	if len(tokens) == 0 {
		chain, _ := h.registry.Chain(chainID)
		for alias, meta := range chain.NamedAddresses {
			if meta.EffectiveCategory() != entity.CategoryEscrow {
				tokens = append(tokens, alias)
			}
		}
		sort.Strings(tokens)
	}

	addrs := make([]string, len(tokens))
	for i, t := range tokens {
		addrs[i] = h.resolveToken(chainID, t)
	}
	results, err := h.balances.FetchBalances(c.Request.Context(), c.Query("account"), chainID, addrs)
	if err != nil {
		h.fail(c, err)
		return
	}

	status := StatusOK
	out := make([]balanceDTO, len(results))
	for i, r := range results {
		out[i] = balanceDTO{Token: tokens[i], Balance: newAmount(r.Record.Value, r.Record.Decimals)}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
			status = StatusPartial
		}
	}
	c.JSON(http.StatusOK, Response{Data: out, Status: status})
}

// Allowance reads allowance(owner, spender) of a token.
func (h *Handler) Allowance(c *gin.Context) {
	chainID, err := h.chainParam(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	token := h.resolveToken(chainID, c.Query("token"))
	rec, err := h.balances.FetchAllowance(c.Request.Context(), token, c.Query("owner"), c.Query("spender"), chainID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, newAmount(rec.Value, rec.Decimals))
}

// TotalSupply reads totalSupply() of a token.
func (h *Handler) TotalSupply(c *gin.Context) {
	chainID, err := h.chainParam(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	token := h.resolveToken(chainID, c.Param("token"))
	rec, err := h.balances.FetchTotalSupply(c.Request.Context(), token, chainID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, newAmount(rec.Value, rec.Decimals))
}

type priceDTO struct {
	Alias    string `json:"alias"`
	Address  string `json:"address"`
	Resolver string `json:"resolver,omitempty"`
	PriceUSD Amount `json:"priceUsd"`
}

// Price resolves the USD price of a token given by alias or address.
func (h *Handler) Price(c *gin.Context) {
	chainID, err := h.chainParam(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	quote, meta, err := h.prices.Quote(c.Request.Context(), chainID, c.Param("token"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, priceDTO{
		Alias:    meta.Alias,
		Address:  meta.Address,
		Resolver: meta.PriceResolver,
		PriceUSD: newAmount(quote.Value, quote.Decimals),
	})
}

type escrowDTO struct {
	Claimable Amount                `json:"claimable"`
	Vesting   Amount                `json:"vesting"`
	Records   []entity.EscrowRecord `json:"records"`
}

// Escrow reads the escrow entries of an account. The escrow may be given by alias.
func (h *Handler) Escrow(c *gin.Context) {
	chainID, err := h.chainParam(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	escrow := c.Query("escrow")
	decimals := entity.DefaultDecimals
	if meta, found := h.registry.Lookup(chainID, escrow); found {
		escrow = meta.Address
		if token, ok := h.registry.Lookup(chainID, meta.Token); ok {
			decimals = token.EffectiveDecimals()
		}
	}
	res, err := h.escrows.GetEscrowBalances(c.Request.Context(), escrow, c.Query("account"), chainID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, escrowDTO{
		Claimable: newAmount(res.Claimable, decimals),
		Vesting:   newAmount(res.Vesting, decimals),
		Records:   res.Records,
	})
}

type trackerDTO struct {
	Selection port.Selection `json:"selection"`
	ValuationDTO
}

func (h *Handler) trackerEnabled(c *gin.Context) bool {
	if h.tracker == nil {
		c.JSON(http.StatusNotFound, Response{Status: StatusError, Error: "tracker is disabled"})
		return false
	}
	return true
}

// Tracker returns the current state of the tracked selection.
func (h *Handler) Tracker(c *gin.Context) {
	if !h.trackerEnabled(c) {
		return
	}
	sel, snap, holdings := h.tracker.Snapshot()
	status := StatusOK
	if !snap.Complete {
		status = StatusPartial
	}
	c.JSON(http.StatusOK, Response{
		Data:   trackerDTO{Selection: sel, ValuationDTO: toValuation(snap, holdings)},
		Status: status,
	})
}

// SelectTracked replaces the tracked selection.
func (h *Handler) SelectTracked(c *gin.Context) {
	if !h.trackerEnabled(c) {
		return
	}
	var sel port.Selection
	if err := c.ShouldBindJSON(&sel); err != nil {
		h.fail(c, fmt.Errorf("invalid selection: %v: %w", err, errBadRequest))
		return
	}
	epoch, err := h.tracker.Select(sel)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info("Tracked selection replaced", zap.Uint64("epoch", epoch), zap.Strings("accounts", sel.Accounts))
	ok(c, gin.H{"epoch": epoch})
}
