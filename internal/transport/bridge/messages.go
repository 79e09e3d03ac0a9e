package bridge

import (
	"encoding/json"

	"github/chapool/pairwallet/internal/session"
)

const (
	typePub = "pub"
	typeSub = "sub"

	methodSessionRequest = "wc_sessionRequest"
	methodSessionUpdate  = "wc_sessionUpdate"

	jsonRPCVersion = "2.0"
)

// envelope is the relay's pub/sub frame. Payload carries a JSON-RPC message.
type envelope struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

type rpcRequest struct {
	ID      int64             `json:"id"`
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type rpcResponse struct {
	ID      int64                  `json:"id"`
	JSONRPC string                 `json:"jsonrpc"`
	Result  any                    `json:"result,omitempty"`
	Error   *session.ResponseError `json:"error,omitempty"`
}

type sessionRequestParams struct {
	PeerID   string           `json:"peerId"`
	PeerMeta session.PeerMeta `json:"peerMeta"`
	ChainID  *int64           `json:"chainId"`
}

type sessionParams struct {
	Approved  bool              `json:"approved"`
	ChainID   int64             `json:"chainId"`
	NetworkID int64             `json:"networkId"`
	Accounts  []string          `json:"accounts"`
	RPCURL    string            `json:"rpcUrl"`
	PeerID    string            `json:"peerId,omitempty"`
	PeerMeta  *session.PeerMeta `json:"peerMeta,omitempty"`
}

type sessionUpdateParams struct {
	Approved bool `json:"approved"`
}
