package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"networth_aggregator/internal/app/port"
	"networth_aggregator/internal/app/refresh"
	"networth_aggregator/internal/domain/entity"
	"networth_aggregator/internal/infrastructure/network/contracts"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// EscrowService folds an account's vesting entries held by an escrow contract.
type EscrowService struct {
	clients port.ClientProvider
	coord   *refresh.Coordinator
	logger  *zap.Logger
}

// NewEscrowService creates a new EscrowService.
func NewEscrowService(clients port.ClientProvider, coord *refresh.Coordinator, logger *zap.Logger) *EscrowService {
	return &EscrowService{clients: clients, coord: coord, logger: logger.Named("EscrowService")}
}

// GetEscrowBalances returns the claimable and still-vesting totals of account in escrow.
// Either every record is decoded or the whole read fails; partial results are never returned.
func (s *EscrowService) GetEscrowBalances(ctx context.Context, escrow, account string, chainID uint64) (entity.EscrowBalances, error) {
	escrowAddr, ok := entity.ParseAddress(escrow)
	if !ok {
		return entity.ZeroEscrowBalances(), nil
	}
	accountAddr, ok := entity.ParseAddress(account)
	if !ok {
		return entity.ZeroEscrowBalances(), nil
	}

	key := refresh.Key{Source: refresh.SourceEscrow, ChainID: chainID, Address: escrowAddr.Hex(), Account: accountAddr.Hex()}
	res, err := refresh.Fetch(ctx, s.coord, key, func(ctx context.Context) (entity.EscrowBalances, error) {
		return s.read(ctx, chainID, escrowAddr, accountAddr)
	})
	if err != nil {
		s.logger.Warn("Escrow read failed",
			zap.Uint64("chain_id", chainID),
			zap.String("escrow", escrowAddr.Hex()),
			zap.String("account", accountAddr.Hex()),
			zap.Error(err))
		return entity.EscrowBalances{}, fmt.Errorf("escrow %s for %s on chain %d: %w", escrowAddr.Hex(), accountAddr.Hex(), chainID, err)
	}
	return res, nil
}

func (s *EscrowService) read(ctx context.Context, chainID uint64, escrow, account common.Address) (entity.EscrowBalances, error) {
	caller, err := s.clients.GetClient(ctx, chainID)
	if err != nil {
		return entity.EscrowBalances{}, err
	}

	out, err := caller.Call(ctx, escrow, contracts.Escrow.MustPack("getEscrowIds", account))
	if err != nil {
		return entity.EscrowBalances{}, err
	}
	ids, err := contracts.UnpackEscrowIDs(out)
	if err != nil {
		return entity.EscrowBalances{}, err
	}
	if len(ids) == 0 {
		return entity.ZeroEscrowBalances(), nil
	}

	out, err = caller.Call(ctx, escrow, contracts.Escrow.MustPack("getEscrows", ids))
	if err != nil {
		return entity.EscrowBalances{}, err
	}
	tuples, err := contracts.UnpackEscrows(out)
	if err != nil {
		return entity.EscrowBalances{}, err
	}
	if len(tuples) != len(ids) {
		return entity.EscrowBalances{}, fmt.Errorf("getEscrows returned %d records for %d ids: %w", len(tuples), len(ids), entity.ErrMalformedResponse)
	}

	res := entity.EscrowBalances{
		Claimable: new(big.Int),
		Vesting:   new(big.Int),
		Records:   make([]entity.EscrowRecord, 0, len(ids)),
	}
	for i, t := range tuples {
		if t.InitialBalance == nil || t.CurrentBalance == nil || t.Claimable == nil {
			return entity.EscrowBalances{}, fmt.Errorf("escrow record %s is incomplete: %w", ids[i], entity.ErrMalformedResponse)
		}
		res.Records = append(res.Records, entity.EscrowRecord{
			ID:             ids[i],
			Start:          time.Unix(int64(t.Start), 0).UTC(),
			End:            time.Unix(int64(t.End), 0).UTC(),
			InitialBalance: t.InitialBalance,
			CurrentBalance: t.CurrentBalance,
			Claimable:      t.Claimable,
		})
		res.Claimable.Add(res.Claimable, t.Claimable)
		res.Vesting.Add(res.Vesting, t.CurrentBalance)
	}
	return res, nil
}
