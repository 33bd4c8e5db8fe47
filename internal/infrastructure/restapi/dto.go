package restapi

import (
	"math/big"

	"networth_aggregator/internal/app/port"
	"networth_aggregator/internal/domain/aggregate"
	"networth_aggregator/internal/domain/entity"
	"networth_aggregator/internal/pkg/utils"
)

// Response statuses.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusError   = "error"
)

// Response is the envelope of every API payload.
type Response struct {
	Data   interface{}               `json:"data,omitempty"`
	Status string                    `json:"status"`
	Errors []entity.ContributorError `json:"errors,omitempty"`
	Error  string                    `json:"error,omitempty"`
}

// Amount renders a raw integer next to its human-readable form.
type Amount struct {
	Raw       string `json:"raw"`
	Formatted string `json:"formatted"`
	Decimals  uint8  `json:"decimals"`
}

func newAmount(v *big.Int, decimals uint8) Amount {
	if v == nil {
		v = new(big.Int)
	}
	return Amount{Raw: v.String(), Formatted: utils.FormatBigInt(v, decimals), Decimals: decimals}
}

// HoldingDTO is one valued contributor.
type HoldingDTO struct {
	Key        string  `json:"key"`
	ChainID    uint64  `json:"chainId"`
	TokenAlias string  `json:"tokenAlias"`
	Account    string  `json:"account,omitempty"`
	Balance    Amount  `json:"balance"`
	PriceUSD   *Amount `json:"priceUsd,omitempty"`
	ValueUSD   *Amount `json:"valueUsd,omitempty"`
	Status     string  `json:"status"`
	Error      string  `json:"error,omitempty"`
}

// SumDTO is an aggregate snapshot.
type SumDTO struct {
	Name          string            `json:"name"`
	Epoch         uint64            `json:"epoch"`
	TotalUSD      string            `json:"totalUsd"`
	Total         Amount            `json:"total"`
	Expected      int               `json:"expected"`
	Reported      int               `json:"reported"`
	Complete      bool              `json:"complete"`
	Pending       []string          `json:"pending,omitempty"`
	Contributions map[string]string `json:"contributions,omitempty"`
}

// ValuationDTO is a settled valuation.
type ValuationDTO struct {
	Sum      SumDTO       `json:"sum"`
	Holdings []HoldingDTO `json:"holdings"`
}

func toHolding(h entity.ValuedHolding) HoldingDTO {
	dto := HoldingDTO{
		Key:        h.Key,
		ChainID:    h.ChainID,
		TokenAlias: h.TokenAlias,
		Account:    h.Account,
		Balance:    newAmount(h.Balance.Value, h.Balance.Decimals),
		Status:     h.Status.String(),
		Error:      h.Error,
	}
	if h.Price.Value != nil {
		p := newAmount(h.Price.Value, h.Price.Decimals)
		dto.PriceUSD = &p
	}
	if h.USDValue != nil {
		v := newAmount(h.USDValue, aggregate.CanonicalDecimals)
		dto.ValueUSD = &v
	}
	return dto
}

func toSum(s aggregate.Snapshot) SumDTO {
	dto := SumDTO{
		Name:     s.Name,
		Epoch:    s.Epoch,
		TotalUSD: utils.FormatUSD(s.Total),
		Total:    newAmount(s.Total, aggregate.CanonicalDecimals),
		Expected: s.Expected,
		Reported: s.Reported,
		Complete: s.Complete,
		Pending:  s.Pending,
	}
	if len(s.Contributions) > 0 {
		dto.Contributions = make(map[string]string, len(s.Contributions))
		for k, c := range s.Contributions {
			dto.Contributions[k] = utils.FormatUSD(c.Value)
		}
	}
	return dto
}

func toValuation(snap aggregate.Snapshot, holdings []entity.ValuedHolding) ValuationDTO {
	out := ValuationDTO{Sum: toSum(snap), Holdings: make([]HoldingDTO, 0, len(holdings))}
	for _, h := range holdings {
		out.Holdings = append(out.Holdings, toHolding(h))
	}
	return out
}

func valuationResponse(v port.Valuation) Response {
	status := StatusOK
	if len(v.Errors) > 0 || !v.Snapshot.Complete {
		status = StatusPartial
	}
	return Response{Data: toValuation(v.Snapshot, v.Holdings), Status: status, Errors: v.Errors}
}
