package dispatch

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github/chapool/pairwallet/internal/session"
	"github/chapool/pairwallet/internal/walleterr"
)

type handlerFunc func(ctx context.Context, frame session.RequestFrame) (any, error)

func (s *service) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		MethodSendTransaction:    s.sendTransaction,
		MethodSign:               s.sign,
		MethodPersonalSign:       s.personalSign,
		MethodSignTransaction:    s.signTransaction,
		MethodSendRawTransaction: s.sendRawTransaction,
		MethodAccounts:           s.accounts,
		MethodChainID:            s.chainID,
	}
}

// sendTransaction signs, broadcasts and waits for one confirmation. Result is the transaction hash.
func (s *service) sendTransaction(ctx context.Context, frame session.RequestFrame) (any, error) {
	intent, err := transactionParam(frame, 0)
	if err != nil {
		return nil, err
	}

	hash, err := s.holder.SendTransaction(ctx, intent)
	if err != nil {
		return nil, err
	}

	return hash.Hex(), nil
}

// sign handles eth_sign: [address, message]. The message string is signed as given.
func (s *service) sign(ctx context.Context, frame session.RequestFrame) (any, error) {
	addr, err := addressParam(frame, 0)
	if err != nil {
		return nil, err
	}
	msg, err := textParam(frame, 1)
	if err != nil {
		return nil, err
	}

	return s.signMessage(ctx, addr, msg)
}

// personalSign handles personal_sign: [message, address]. Hex messages are decoded first.
func (s *service) personalSign(ctx context.Context, frame session.RequestFrame) (any, error) {
	msg, err := messageParam(frame, 0)
	if err != nil {
		return nil, err
	}
	addr, err := addressParam(frame, 1)
	if err != nil {
		return nil, err
	}

	return s.signMessage(ctx, addr, msg)
}

func (s *service) signMessage(ctx context.Context, addr common.Address, msg []byte) (any, error) {
	if identity := s.holder.Identity(); addr != identity.Address {
		return nil, walleterr.Signing(nil, "address %s is not held by this wallet", addr.Hex())
	}

	sig, err := s.holder.SignMessage(ctx, msg)
	if err != nil {
		return nil, err
	}

	return hexutil.Encode(sig), nil
}

func (s *service) signTransaction(ctx context.Context, frame session.RequestFrame) (any, error) {
	intent, err := transactionParam(frame, 0)
	if err != nil {
		return nil, err
	}

	raw, err := s.holder.SignTransaction(ctx, intent)
	if err != nil {
		return nil, err
	}

	return hexutil.Encode(raw), nil
}

// sendRawTransaction relays the frame to the node as is.
func (s *service) sendRawTransaction(ctx context.Context, frame session.RequestFrame) (any, error) {
	if err := rawTransactionParam(frame, 0); err != nil {
		return nil, err
	}

	result, err := s.holder.RelayRequest(ctx, frame.Method, frame.Params)
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *service) accounts(_ context.Context, _ session.RequestFrame) (any, error) {
	return []string{s.holder.Identity().Address.Hex()}, nil
}

func (s *service) chainID(_ context.Context, _ session.RequestFrame) (any, error) {
	return hexutil.EncodeUint64(uint64(s.holder.Identity().ChainID)), nil //nolint:gosec // chain ids are positive
}
