package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// WithdrawERC20Event is a decoded WithdrawERC20 gateway event.
type WithdrawERC20Event struct {
	HostToken     common.Address
	ValidiumToken common.Address
	From          common.Address
	To            common.Address
	Amount        *big.Int
	Payload       []byte
	TxHash        common.Hash
}

// AppendMessageEvent is a decoded AppendMessage queue event.
type AppendMessageEvent struct {
	Index       *big.Int
	MessageHash common.Hash
}

// ParseWithdrawERC20 decodes a gateway WithdrawERC20 log.
func ParseWithdrawERC20(lg types.Log) (*WithdrawERC20Event, error) {
	if len(lg.Topics) != 4 || lg.Topics[0] != WithdrawERC20Topic {
		return nil, fmt.Errorf("log %s is not a WithdrawERC20 event", lg.TxHash)
	}

	values, err := gatewayABI.Unpack("WithdrawERC20", lg.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack WithdrawERC20 data: %w", err)
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("unexpected WithdrawERC20 field count: %d", len(values))
	}

	to, ok := values[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected WithdrawERC20 to type %T", values[0])
	}
	amount, ok := values[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected WithdrawERC20 amount type %T", values[1])
	}
	payload, ok := values[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected WithdrawERC20 payload type %T", values[2])
	}

	return &WithdrawERC20Event{
		HostToken:     common.BytesToAddress(lg.Topics[1].Bytes()),
		ValidiumToken: common.BytesToAddress(lg.Topics[2].Bytes()),
		From:          common.BytesToAddress(lg.Topics[3].Bytes()),
		To:            to,
		Amount:        amount,
		Payload:       payload,
		TxHash:        lg.TxHash,
	}, nil
}

// ParseAppendMessage decodes a message queue AppendMessage log.
func ParseAppendMessage(lg types.Log) (*AppendMessageEvent, error) {
	if len(lg.Topics) == 0 || lg.Topics[0] != AppendMessageTopic {
		return nil, fmt.Errorf("log %s is not an AppendMessage event", lg.TxHash)
	}

	values, err := queueABI.Unpack("AppendMessage", lg.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack AppendMessage data: %w", err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected AppendMessage field count: %d", len(values))
	}

	index, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected AppendMessage index type %T", values[0])
	}
	messageHash, ok := values[1].([32]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected AppendMessage messageHash type %T", values[1])
	}

	return &AppendMessageEvent{
		Index:       index,
		MessageHash: common.Hash(messageHash),
	}, nil
}
