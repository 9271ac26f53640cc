package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// SignScheme selects how a message digest is built before signing.
type SignScheme int

const (
	// SignSchemeTyped is the EIP712 structured digest. Preferred.
	SignSchemeTyped SignScheme = iota
	// SignSchemeLegacy hashes the packed raw fields and wraps them in the
	// generic signed-message prefix. Kept for compatibility with messages
	// produced by older clients.
	SignSchemeLegacy
)

// Order is a seller's signed listing intent.
//
// A zero Receiver leaves the order open to any buyer; a zero AssetContract
// resolves to the platform's own asset registry.
type Order struct {
	TokenID       *big.Int
	MinPrice      *big.Int
	Currency      common.Address
	ExpireTime    uint64
	Nonce         common.Hash
	Receiver      common.Address
	AssetContract common.Address
	Scheme        SignScheme
	Signature     []byte
}

// Offer is a buyer's signed acceptance intent.
type Offer struct {
	TokenID       *big.Int
	Price         *big.Int
	ExpireTime    uint64
	NeedProof     bool
	Nonce         common.Hash
	AssetContract common.Address
	Scheme        SignScheme
	Signature     []byte
}

// ERC20 ABI JSON for the transfer-on-behalf payment path
const erc20ABIJSON = `[
	{
		"constant": true,
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "transfer",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "transferFrom",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	}
]`

// Asset registry ABI JSON covering ownership, creator attribution, plain and
// proof-gated transfer, and the privileged mint entry point
const assetRegistryABIJSON = `[
	{
		"constant": true,
		"inputs": [{"name": "tokenId", "type": "uint256"}],
		"name": "ownerOf",
		"outputs": [{"name": "", "type": "address"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "tokenId", "type": "uint256"}],
		"name": "creatorOf",
		"outputs": [{"name": "", "type": "address"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "tokenId", "type": "uint256"}
		],
		"name": "transferFrom",
		"outputs": [],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "tokenId", "type": "uint256"},
			{"name": "proofs", "type": "bytes[]"}
		],
		"name": "iTransferFrom",
		"outputs": [],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "creator", "type": "address"},
			{"name": "sealedKey", "type": "bytes"}
		],
		"name": "mintWithRole",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	}
]`

// GetERC20ABI returns the parsed ERC20 ABI
func GetERC20ABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("failed to parse ERC20 ABI: " + err.Error())
	}
	return parsed
}

// GetAssetRegistryABI returns the parsed asset registry ABI
func GetAssetRegistryABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(assetRegistryABIJSON))
	if err != nil {
		panic("failed to parse asset registry ABI: " + err.Error())
	}
	return parsed
}
