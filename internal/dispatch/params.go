package dispatch

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github/chapool/pairwallet/internal/session"
	"github/chapool/pairwallet/internal/wallet/keyholder"
	"github/chapool/pairwallet/internal/walleterr"
)

// quantity accepts hex strings, decimal strings and JSON numbers.
type quantity struct {
	big.Int
}

func (q *quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty quantity")
	}

	raw := string(data)
	if data[0] == '"' {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return errors.Wrap(err, "invalid quantity")
		}
		raw = strings.TrimSpace(unquoted)
	}

	base := 10
	if has0x(raw) {
		raw, base = raw[2:], 16
	}
	if raw == "" {
		return errors.New("empty quantity")
	}

	if _, ok := q.SetString(raw, base); !ok {
		return errors.Errorf("invalid quantity %q", string(data))
	}
	if q.Sign() < 0 {
		return errors.Errorf("negative quantity %q", string(data))
	}

	return nil
}

func (q *quantity) bigInt() *big.Int {
	if q == nil {
		return nil
	}
	return new(big.Int).Set(&q.Int)
}

func (q *quantity) toUint64(field string) (*uint64, error) {
	if q == nil {
		return nil, nil //nolint:nilnil // absent field
	}
	if !q.IsUint64() {
		return nil, walleterr.Protocol("%s out of range", field)
	}
	v := q.Uint64()
	return &v, nil
}

// transactionParams is the transaction object of eth_sendTransaction and eth_signTransaction.
type transactionParams struct {
	From                 *common.Address `json:"from"`
	To                   *common.Address `json:"to"`
	Data                 *hexutil.Bytes  `json:"data"`
	Input                *hexutil.Bytes  `json:"input"`
	Value                *quantity       `json:"value"`
	Gas                  *quantity       `json:"gas"`
	GasLimit             *quantity       `json:"gasLimit"`
	GasPrice             *quantity       `json:"gasPrice"`
	MaxFeePerGas         *quantity       `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *quantity       `json:"maxPriorityFeePerGas"`
	Nonce                *quantity       `json:"nonce"`
	ChainID              *quantity       `json:"chainId"`
}

// intent builds the transaction intent. Fields the peer left out stay unset.
func (p *transactionParams) intent() (*keyholder.TransactionIntent, error) {
	if p.From == nil {
		return nil, walleterr.Protocol("transaction is missing from")
	}

	intent := &keyholder.TransactionIntent{
		From:                 *p.From,
		To:                   p.To,
		Value:                p.Value.bigInt(),
		GasPrice:             p.GasPrice.bigInt(),
		MaxFeePerGas:         p.MaxFeePerGas.bigInt(),
		MaxPriorityFeePerGas: p.MaxPriorityFeePerGas.bigInt(),
	}

	switch {
	case p.Data != nil:
		intent.Data = *p.Data
	case p.Input != nil:
		intent.Data = *p.Input
	}

	gas := p.Gas
	if gas == nil {
		gas = p.GasLimit
	}

	var err error
	if intent.GasLimit, err = gas.toUint64("gas"); err != nil {
		return nil, err
	}
	if intent.Nonce, err = p.Nonce.toUint64("nonce"); err != nil {
		return nil, err
	}

	if p.ChainID != nil {
		if !p.ChainID.IsInt64() || p.ChainID.Sign() == 0 {
			return nil, walleterr.Protocol("invalid chain id %s", p.ChainID.String())
		}
		intent.ChainID = p.ChainID.Int64()
	}

	return intent, nil
}

func param(frame session.RequestFrame, idx int) (json.RawMessage, error) {
	if idx >= len(frame.Params) {
		return nil, walleterr.Protocol("%s expects at least %d params, got %d", frame.Method, idx+1, len(frame.Params))
	}
	return frame.Params[idx], nil
}

func transactionParam(frame session.RequestFrame, idx int) (*keyholder.TransactionIntent, error) {
	raw, err := param(frame, idx)
	if err != nil {
		return nil, err
	}

	var tx transactionParams
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, walleterr.Protocol("invalid transaction param: %s", errors.Cause(err).Error())
	}

	return tx.intent()
}

func stringParam(frame session.RequestFrame, idx int) (string, error) {
	raw, err := param(frame, idx)
	if err != nil {
		return "", err
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", walleterr.Protocol("param %d of %s must be a string", idx, frame.Method)
	}

	return s, nil
}

func addressParam(frame session.RequestFrame, idx int) (common.Address, error) {
	s, err := stringParam(frame, idx)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, walleterr.Protocol("invalid address %q", s)
	}

	return common.HexToAddress(s), nil
}

// textParam returns the UTF-8 bytes of a string param.
func textParam(frame session.RequestFrame, idx int) ([]byte, error) {
	s, err := stringParam(frame, idx)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// messageParam decodes 0x-prefixed hex messages and takes anything else as UTF-8 text.
func messageParam(frame session.RequestFrame, idx int) ([]byte, error) {
	s, err := stringParam(frame, idx)
	if err != nil {
		return nil, err
	}

	if has0x(s) {
		if decoded, err := hexutil.Decode(s); err == nil {
			return decoded, nil
		}
	}

	return []byte(s), nil
}

func rawTransactionParam(frame session.RequestFrame, idx int) error {
	s, err := stringParam(frame, idx)
	if err != nil {
		return err
	}
	if _, err := hexutil.Decode(s); err != nil {
		return walleterr.Protocol("invalid raw transaction: %s", err.Error())
	}

	return nil
}

func has0x(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
