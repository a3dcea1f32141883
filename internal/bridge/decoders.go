package bridge

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Event signatures consumed from the two tracked contracts and the
// fractional-token contracts. IPNFTMinted and the
// ERC721-style Transfer carry tokenId as an indexed topic; TokensCreated
// (and its legacy MoleculesCreated alias) and the fractional-token
// Transfer carry their payload un-indexed in Data.
const (
	IPNFTMintedSignature      = "IPNFTMinted(address,uint256,string,string)"
	TransferSignature         = "Transfer(address,address,uint256)"
	TokensCreatedSignature    = "TokensCreated(string,uint256,address,uint256)"
	MoleculesCreatedSignature = "MoleculesCreated(string,uint256,address,uint256)"
)

var (
	ipnftMintedTopic0   = crypto.Keccak256Hash([]byte(IPNFTMintedSignature))
	transferTopic0      = crypto.Keccak256Hash([]byte(TransferSignature))
	tokensCreatedTopic0 = crypto.Keccak256Hash([]byte(TokensCreatedSignature))
	moleculesCreatedTopic0 = crypto.Keccak256Hash([]byte(MoleculesCreatedSignature))

	stringStringArgs = abi.Arguments{{Type: mustType("string")}, {Type: mustType("string")}}
	tokenCreatedArgs  = abi.Arguments{{Type: mustType("string")}, {Type: mustType("uint256")}, {Type: mustType("address")}, {Type: mustType("uint256")}}
)

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// IpnftEventTopics returns the topic-0 filter for the IPNFT contract's
// Minted and Transfer events.
func IpnftEventTopics() [][]common.Hash {
	return [][]common.Hash{{ipnftMintedTopic0, transferTopic0}}
}

// TokenizerEventTopics returns the topic-0 filter for the Tokenizer
// contract's current and legacy "token created" events.
func TokenizerEventTopics() [][]common.Hash {
	return [][]common.Hash{{tokensCreatedTopic0, moleculesCreatedTopic0}}
}

// FractionalTokenTransferTopics returns the topic-0 filter for ERC20-style
// Transfer events on tracked fractional-token contracts.
func FractionalTokenTransferTopics() [][]common.Hash {
	return [][]common.Hash{{transferTopic0}}
}

// DecodeIpnftLog decodes a single log from the IPNFT contract into an
// IpnftEvent. Transfer decoding never yields IpnftEventBurnt directly --
// that distinction is made by the IPNFT Event Projector from From/To.
func DecodeIpnftLog(l types.Log) (IpnftEvent, error) {
	switch l.Topics[0] {
	case ipnftMintedTopic0:
		if len(l.Topics) < 3 {
			return IpnftEvent{}, fmt.Errorf("bridge: IPNFTMinted log missing indexed topics")
		}
		tokenID := new(big.Int).SetBytes(l.Topics[1].Bytes())
		owner := common.BytesToAddress(l.Topics[2].Bytes())
		values, err := stringStringArgs.Unpack(l.Data)
		if err != nil || len(values) != 2 {
			return IpnftEvent{}, fmt.Errorf("bridge: unpack IPNFTMinted data: %w", err)
		}
		symbol, _ := values[1].(string)
		return IpnftEvent{
			BlockNumber: l.BlockNumber,
			Uid:         NewIpnftUid(l.Address, tokenID),
			Kind:        IpnftEventMinted,
			To:          owner,
			Symbol:      symbol,
		}, nil
	case transferTopic0:
		if len(l.Topics) < 4 {
			return IpnftEvent{}, fmt.Errorf("bridge: ipnft Transfer log missing indexed topics")
		}
		from := common.BytesToAddress(l.Topics[1].Bytes())
		to := common.BytesToAddress(l.Topics[2].Bytes())
		tokenID := new(big.Int).SetBytes(l.Topics[3].Bytes())
		return IpnftEvent{
			BlockNumber: l.BlockNumber,
			Uid:         NewIpnftUid(l.Address, tokenID),
			Kind:        IpnftEventTransfer,
			From:        from,
			To:          to,
		}, nil
	default:
		return IpnftEvent{}, fmt.Errorf("bridge: log topic0 %s is not an IPNFT event signature", l.Topics[0].Hex())
	}
}

// DecodeTokenCreatedLog decodes a TokensCreated/MoleculesCreated log into
// the normalized TokenCreatedEvent shape.
func DecodeTokenCreatedLog(l types.Log) (TokenCreatedEvent, error) {
	switch l.Topics[0] {
	case tokensCreatedTopic0, moleculesCreatedTopic0:
	default:
		return TokenCreatedEvent{}, fmt.Errorf("bridge: log topic0 %s is not a TokensCreated/MoleculesCreated signature", l.Topics[0].Hex())
	}
	values, err := tokenCreatedArgs.Unpack(l.Data)
	if err != nil || len(values) != 4 {
		return TokenCreatedEvent{}, fmt.Errorf("bridge: unpack TokensCreated data: %w", err)
	}
	symbol, _ := values[0].(string)
	tokenID, _ := values[1].(*big.Int)
	tokenAddress, _ := values[2].(common.Address)
	birthBlock, _ := values[3].(*big.Int)
	if tokenID == nil || birthBlock == nil {
		return TokenCreatedEvent{}, fmt.Errorf("bridge: malformed TokensCreated payload")
	}
	return TokenCreatedEvent{
		BlockNumber:  l.BlockNumber,
		Symbol:       symbol,
		TokenID:      tokenID,
		TokenAddress: tokenAddress,
		BirthBlock:   birthBlock.Uint64(),
	}, nil
}

// DecodeFractionalTokenTransferLog decodes an ERC20-style Transfer log
// from a tracked fractional-token contract into a TokenTransferEvent.
func DecodeFractionalTokenTransferLog(l types.Log) (TokenTransferEvent, error) {
	if l.Topics[0] != transferTopic0 {
		return TokenTransferEvent{}, fmt.Errorf("bridge: log topic0 %s is not a Transfer signature", l.Topics[0].Hex())
	}
	if len(l.Topics) < 3 {
		return TokenTransferEvent{}, fmt.Errorf("bridge: token Transfer log missing indexed topics")
	}
	from := common.BytesToAddress(l.Topics[1].Bytes())
	to := common.BytesToAddress(l.Topics[2].Bytes())
	values, err := abi.Arguments{{Type: mustType("uint256")}}.Unpack(l.Data)
	if err != nil || len(values) != 1 {
		return TokenTransferEvent{}, fmt.Errorf("bridge: unpack token Transfer value: %w", err)
	}
	value, _ := values[0].(*big.Int)
	if value == nil {
		return TokenTransferEvent{}, fmt.Errorf("bridge: malformed token Transfer value")
	}
	return TokenTransferEvent{
		BlockNumber:  l.BlockNumber,
		TokenAddress: l.Address,
		From:         from,
		To:           to,
		Value:        value,
	}, nil
}
