// Package wireproto defines the tagged wire-message union exchanged between
// node roles and its length-prefixed binary framing.
//
// Grounded on the teacher's core/network.go Message/NetworkMessage shape
// (JSON-encoded payload over a named topic), generalized into a single
// closed union of the eight message kinds this specification names, framed
// length-prefixed the way the specification requires rather than carried
// over pubsub topics.
package wireproto

import (
	"encoding/json"
	"fmt"

	"github.com/aurachain/node/internal/chainmodel"
)

// Kind tags which variant of Message is populated.
type Kind string

const (
	KindSendTransactions Kind = "send_transactions"
	KindPartitionRequest Kind = "partition_request"
	KindPartitionList    Kind = "partition_list"
	KindBlockChallenge   Kind = "block_challenge"
	KindBlockSolution    Kind = "block_solution"
	KindAppendBlock      Kind = "append_block"
	KindBlockStored      Kind = "block_stored"
	KindBlockFound       Kind = "block_found"
)

// SendTransactions is sent User -> Compute to admit new transactions.
type SendTransactions struct {
	Txs []chainmodel.Transaction `json:"txs"`
}

// PartitionRequest is sent Miner -> Compute to join the current round.
type PartitionRequest struct {
	MinerEndpoint string `json:"miner_endpoint"`
}

// PartitionList is sent Compute -> Miner once the partition fills.
type PartitionList struct {
	Members []string `json:"members"`
}

// BlockChallenge is the PoW challenge, Compute -> Miner.
type BlockChallenge struct {
	Header chainmodel.BlockHeader `json:"header"`
	Target [32]byte               `json:"target"`
}

// BlockSolution is a candidate PoW answer, Miner -> Compute.
type BlockSolution struct {
	Header        chainmodel.BlockHeader `json:"header"`
	Nonce         uint64                 `json:"nonce"`
	MinerEndpoint string                 `json:"miner_endpoint"`
}

// AppendBlock proposes a new block to Storage's Raft group, Compute -> Storage.
type AppendBlock struct {
	Block chainmodel.Block `json:"block"`
}

// BlockStored acknowledges a durable commit, Storage -> Compute.
type BlockStored struct {
	BlockHash string `json:"block_hash"`
}

// BlockFound notifies miners a round concluded, Compute -> Miner.
type BlockFound struct {
	BlockHash string `json:"block_hash"`
}

// Message is the closed union of every wire message this system exchanges.
// Exactly one of the payload fields is populated, selected by Kind.
type Message struct {
	Kind Kind `json:"kind"`

	SendTransactions *SendTransactions `json:"send_transactions,omitempty"`
	PartitionRequest *PartitionRequest `json:"partition_request,omitempty"`
	PartitionList    *PartitionList    `json:"partition_list,omitempty"`
	BlockChallenge   *BlockChallenge   `json:"block_challenge,omitempty"`
	BlockSolution    *BlockSolution    `json:"block_solution,omitempty"`
	AppendBlock      *AppendBlock      `json:"append_block,omitempty"`
	BlockStored      *BlockStored      `json:"block_stored,omitempty"`
	BlockFound       *BlockFound       `json:"block_found,omitempty"`
}

func NewSendTransactions(txs []chainmodel.Transaction) Message {
	return Message{Kind: KindSendTransactions, SendTransactions: &SendTransactions{Txs: txs}}
}

func NewPartitionRequest(endpoint string) Message {
	return Message{Kind: KindPartitionRequest, PartitionRequest: &PartitionRequest{MinerEndpoint: endpoint}}
}

func NewPartitionList(members []string) Message {
	return Message{Kind: KindPartitionList, PartitionList: &PartitionList{Members: members}}
}

func NewBlockChallenge(header chainmodel.BlockHeader, target [32]byte) Message {
	return Message{Kind: KindBlockChallenge, BlockChallenge: &BlockChallenge{Header: header, Target: target}}
}

func NewBlockSolution(header chainmodel.BlockHeader, nonce uint64, endpoint string) Message {
	return Message{Kind: KindBlockSolution, BlockSolution: &BlockSolution{Header: header, Nonce: nonce, MinerEndpoint: endpoint}}
}

func NewAppendBlock(b chainmodel.Block) Message {
	return Message{Kind: KindAppendBlock, AppendBlock: &AppendBlock{Block: b}}
}

func NewBlockStored(hash string) Message {
	return Message{Kind: KindBlockStored, BlockStored: &BlockStored{BlockHash: hash}}
}

func NewBlockFound(hash string) Message {
	return Message{Kind: KindBlockFound, BlockFound: &BlockFound{BlockHash: hash}}
}

// Validate checks that the payload matching Kind is actually populated.
func (m Message) Validate() error {
	switch m.Kind {
	case KindSendTransactions:
		if m.SendTransactions == nil {
			return fmt.Errorf("wireproto: %s missing payload", m.Kind)
		}
	case KindPartitionRequest:
		if m.PartitionRequest == nil {
			return fmt.Errorf("wireproto: %s missing payload", m.Kind)
		}
	case KindPartitionList:
		if m.PartitionList == nil {
			return fmt.Errorf("wireproto: %s missing payload", m.Kind)
		}
	case KindBlockChallenge:
		if m.BlockChallenge == nil {
			return fmt.Errorf("wireproto: %s missing payload", m.Kind)
		}
	case KindBlockSolution:
		if m.BlockSolution == nil {
			return fmt.Errorf("wireproto: %s missing payload", m.Kind)
		}
	case KindAppendBlock:
		if m.AppendBlock == nil {
			return fmt.Errorf("wireproto: %s missing payload", m.Kind)
		}
	case KindBlockStored:
		if m.BlockStored == nil {
			return fmt.Errorf("wireproto: %s missing payload", m.Kind)
		}
	case KindBlockFound:
		if m.BlockFound == nil {
			return fmt.Errorf("wireproto: %s missing payload", m.Kind)
		}
	default:
		return fmt.Errorf("wireproto: unknown kind %q", m.Kind)
	}
	return nil
}

// Marshal encodes m to its canonical JSON form.
func (m Message) Marshal() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// Unmarshal decodes data into a validated Message.
func Unmarshal(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
