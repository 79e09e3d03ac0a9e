package keyholder

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github/chapool/pairwallet/internal/util"
	"github/chapool/pairwallet/internal/walleterr"
)

const eip1559FeeMultiplier = 2

type service struct {
	account *Account
	backend Backend
	config  Config

	// sendMu serializes nonce assignment and broadcast; confirmation waits run unlocked.
	sendMu sync.Mutex
}

// NewService creates a key holder for account connected to backend
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(account *Account, backend Backend, cfg Config) (Service, error) {
	if account == nil {
		return nil, errors.New("account is required")
	}
	if backend == nil {
		return nil, errors.New("backend is required")
	}

	return &service{
		account: account,
		backend: backend,
		config:  cfg.normalize(),
	}, nil
}

func (s *service) Identity() Identity {
	return s.account.identity
}

// SignMessage signs an EIP-191 personal message
func (s *service) SignMessage(_ context.Context, msg []byte) ([]byte, error) {
	sig, err := s.account.signer.SignMessage(msg)
	if err != nil {
		return nil, walleterr.Signing(err, "")
	}

	return sig, nil
}

// SignTransaction fills missing fields from the node and signs without broadcasting
func (s *service) SignTransaction(ctx context.Context, intent *TransactionIntent) ([]byte, error) {
	tx, err := s.populate(ctx, intent)
	if err != nil {
		return nil, err
	}

	signed, err := s.account.signer.SignTransaction(tx, big.NewInt(s.account.identity.ChainID))
	if err != nil {
		return nil, walleterr.Signing(err, "")
	}

	return signed.RawTransaction, nil
}

// SendTransaction signs, broadcasts and waits for one confirmation.
// Failures after the broadcast carry the transaction hash and are never retried.
func (s *service) SendTransaction(ctx context.Context, intent *TransactionIntent) (common.Hash, error) {
	log := util.LogFromContext(ctx)

	txHash, err := s.broadcast(ctx, intent)
	if err != nil {
		return common.Hash{}, err
	}

	log.Info().
		Str("tx_hash", txHash.Hex()).
		Msg("Transaction broadcast, waiting for confirmation")

	receipt, err := s.waitForReceipt(ctx, txHash)
	if err != nil {
		log.Warn().Err(err).Str("tx_hash", txHash.Hex()).Msg("Transaction outcome unknown")
		return txHash, walleterr.WithTxHash(
			walleterr.Network(err, "transaction %s broadcast but not confirmed: %s", txHash.Hex(), errors.Cause(err).Error()),
			txHash.Hex(),
		)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return txHash, walleterr.Network(nil, "transaction %s reverted", txHash.Hex())
	}

	log.Info().
		Str("tx_hash", txHash.Hex()).
		Uint64("block_number", receipt.BlockNumber.Uint64()).
		Msg("Transaction confirmed")

	return txHash, nil
}

// RelayRequest forwards the call to the node unchanged
func (s *service) RelayRequest(ctx context.Context, method string, params []json.RawMessage) (json.RawMessage, error) {
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = p
	}

	var result json.RawMessage
	if err := s.backend.CallContext(ctx, &result, method, args...); err != nil {
		return nil, walleterr.Network(err, "")
	}

	return result, nil
}

func (s *service) broadcast(ctx context.Context, intent *TransactionIntent) (common.Hash, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	tx, err := s.populate(ctx, intent)
	if err != nil {
		return common.Hash{}, err
	}

	signed, err := s.account.signer.SignTransaction(tx, big.NewInt(s.account.identity.ChainID))
	if err != nil {
		return common.Hash{}, walleterr.Signing(err, "")
	}

	if err := s.backend.SendTransaction(ctx, signed.Transaction); err != nil {
		netErr := walleterr.Network(err, "")
		if ctx.Err() != nil {
			// the node may have accepted it before the context ended
			return common.Hash{}, walleterr.WithTxHash(netErr, signed.TxHash.Hex())
		}
		return common.Hash{}, netErr
	}

	return signed.TxHash, nil
}

// populate builds a transaction from intent, asking the node only for fields the peer left out.
func (s *service) populate(ctx context.Context, intent *TransactionIntent) (*types.Transaction, error) {
	if intent == nil {
		return nil, walleterr.Protocol("transaction is required")
	}

	identity := s.account.identity
	if intent.From != identity.Address {
		return nil, walleterr.Signing(nil, "from address %s does not match %s", intent.From.Hex(), identity.Address.Hex())
	}
	if intent.ChainID != 0 && intent.ChainID != identity.ChainID {
		return nil, walleterr.Signing(nil, "chain id %d does not match %d", intent.ChainID, identity.ChainID)
	}

	value := intent.Value
	if value == nil {
		value = new(big.Int)
	}

	var nonce uint64
	if intent.Nonce != nil {
		nonce = *intent.Nonce
	} else {
		pending, err := s.backend.PendingNonceAt(ctx, identity.Address)
		if err != nil {
			return nil, walleterr.Network(err, "")
		}
		nonce = pending
	}

	fees, err := s.fees(ctx, intent)
	if err != nil {
		return nil, err
	}

	var gas uint64
	if intent.GasLimit != nil {
		gas = *intent.GasLimit
	} else {
		estimated, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:      identity.Address,
			To:        intent.To,
			Value:     value,
			Data:      intent.Data,
			GasPrice:  fees.gasPrice,
			GasFeeCap: fees.feeCap,
			GasTipCap: fees.tipCap,
		})
		if err != nil {
			return nil, walleterr.Network(err, "")
		}
		gas = estimated
	}

	if fees.gasPrice != nil {
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: fees.gasPrice,
			Gas:      gas,
			To:       intent.To,
			Value:    value,
			Data:     intent.Data,
		}), nil
	}

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(identity.ChainID),
		Nonce:     nonce,
		GasTipCap: fees.tipCap,
		GasFeeCap: fees.feeCap,
		Gas:       gas,
		To:        intent.To,
		Value:     value,
		Data:      intent.Data,
	}), nil
}

type feeParams struct {
	gasPrice *big.Int
	tipCap   *big.Int
	feeCap   *big.Int
}

// fees picks legacy pricing when the peer asked for it or the chain has no base fee,
// EIP-1559 otherwise with MaxFee = BaseFee * 2 + TipCap.
func (s *service) fees(ctx context.Context, intent *TransactionIntent) (feeParams, error) {
	if intent.GasPrice != nil {
		return feeParams{gasPrice: intent.GasPrice}, nil
	}

	if intent.MaxFeePerGas != nil && intent.MaxPriorityFeePerGas != nil {
		return feeParams{tipCap: intent.MaxPriorityFeePerGas, feeCap: intent.MaxFeePerGas}, nil
	}

	header, err := s.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return feeParams{}, walleterr.Network(err, "")
	}

	if header.BaseFee == nil {
		price, err := s.backend.SuggestGasPrice(ctx)
		if err != nil {
			return feeParams{}, walleterr.Network(err, "")
		}
		return feeParams{gasPrice: price}, nil
	}

	tipCap := intent.MaxPriorityFeePerGas
	if tipCap == nil {
		tipCap, err = s.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return feeParams{}, walleterr.Network(err, "")
		}
	}

	feeCap := intent.MaxFeePerGas
	if feeCap == nil {
		feeCap = new(big.Int).Add(new(big.Int).Mul(header.BaseFee, big.NewInt(eip1559FeeMultiplier)), tipCap)
	}
	if feeCap.Cmp(tipCap) < 0 {
		tipCap = feeCap
	}

	return feeParams{tipCap: tipCap, feeCap: feeCap}, nil
}
