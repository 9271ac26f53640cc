package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Caller handles blockchain interactions shared by the registry and token
// bindings.
type Caller struct {
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	chainID    *big.Int
}

// DialCaller connects to an RPC endpoint and prepares a signing caller.
func DialCaller(ctx context.Context, rpcURL, privateKeyHex string) (*Caller, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	return &Caller{
		client:     client,
		privateKey: privateKey,
		chainID:    chainID,
	}, nil
}

// SignerAddress returns the address of the signer
func (c *Caller) SignerAddress() common.Address {
	return crypto.PubkeyToAddress(c.privateKey.PublicKey)
}

// ChainID returns the chain the caller is connected to.
func (c *Caller) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// CheckGasBalance checks if the signer has enough gas tokens
func (c *Caller) CheckGasBalance(ctx context.Context, estimatedGas uint64) error {
	signerAddr := c.SignerAddress()
	balance, err := c.client.BalanceAt(ctx, signerAddr, nil)
	if err != nil {
		return fmt.Errorf("failed to get balance: %w", err)
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get gas price: %w", err)
	}

	// Add 20% safety margin
	estimatedGasWithMargin := new(big.Int).Mul(big.NewInt(int64(estimatedGas)), big.NewInt(120))
	estimatedGasWithMargin.Div(estimatedGasWithMargin, big.NewInt(100))

	required := new(big.Int).Mul(estimatedGasWithMargin, gasPrice)

	if balance.Cmp(required) < 0 {
		return fmt.Errorf("insufficient gas balance: signer %s has %s, needs approximately %s",
			signerAddr.Hex(),
			balance.String(),
			required.String(),
		)
	}

	return nil
}

// call performs a read-only contract call.
func (c *Caller) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &to,
		Data: data,
	}, nil)
}

// execute signs and submits a transaction and waits for its receipt.
func (c *Caller) execute(ctx context.Context, to common.Address, data []byte, gasLimit uint64) error {
	if err := c.CheckGasBalance(ctx, gasLimit); err != nil {
		return err
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.SignerAddress())
	if err != nil {
		return fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.privateKey)
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return fmt.Errorf("failed to send transaction: %w", err)
	}

	receipt, err := c.waitForReceipt(ctx, signedTx.Hash())
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("transaction failed: tx hash %s", signedTx.Hash().Hex())
	}

	return nil
}

// waitForReceipt waits for a transaction receipt with timeout
func (c *Caller) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	for {
		receipt, err := c.client.TransactionReceipt(timeoutCtx, txHash)
		if err == nil {
			return receipt, nil
		}

		select {
		case <-timeoutCtx.Done():
			return nil, fmt.Errorf("timeout waiting for transaction receipt: %s", txHash.Hex())
		default:
			time.Sleep(2 * time.Second)
		}
	}
}

// Close closes the Ethereum client connection
func (c *Caller) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// RegistryCaller binds the asset registry collaborator over RPC.
type RegistryCaller struct {
	*Caller
	addr common.Address
}

// NewRegistryCaller binds a deployed asset registry contract.
func NewRegistryCaller(caller *Caller, addr common.Address) *RegistryCaller {
	return &RegistryCaller{Caller: caller, addr: addr}
}

// Address returns the registry contract address.
func (rc *RegistryCaller) Address() common.Address { return rc.addr }

// OwnerOf returns the current owner of an asset.
func (rc *RegistryCaller) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	registryABI := GetAssetRegistryABI()
	data, err := registryABI.Pack("ownerOf", tokenID)
	if err != nil {
		return common.Address{}, err
	}

	result, err := rc.call(ctx, rc.addr, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("ownerOf call failed: %w", err)
	}

	var owner common.Address
	if err := registryABI.UnpackIntoInterface(&owner, "ownerOf", result); err != nil {
		return common.Address{}, err
	}

	return owner, nil
}

// CreatorOf returns the recorded creator of an asset. Callers treat any
// failure as "no creator".
func (rc *RegistryCaller) CreatorOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	registryABI := GetAssetRegistryABI()
	data, err := registryABI.Pack("creatorOf", tokenID)
	if err != nil {
		return common.Address{}, err
	}

	result, err := rc.call(ctx, rc.addr, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("creatorOf call failed: %w", err)
	}

	var creator common.Address
	if err := registryABI.UnpackIntoInterface(&creator, "creatorOf", result); err != nil {
		return common.Address{}, err
	}

	return creator, nil
}

// TransferFrom moves asset ownership without a transfer-validity proof.
func (rc *RegistryCaller) TransferFrom(ctx context.Context, from, to common.Address, tokenID *big.Int) error {
	registryABI := GetAssetRegistryABI()
	data, err := registryABI.Pack("transferFrom", from, to, tokenID)
	if err != nil {
		return fmt.Errorf("failed to pack transferFrom: %w", err)
	}

	return rc.execute(ctx, rc.addr, data, 300000)
}

// TransferWithProof moves asset ownership through the proof-gated entry point.
func (rc *RegistryCaller) TransferWithProof(ctx context.Context, from, to common.Address, tokenID *big.Int, proofs [][]byte) error {
	registryABI := GetAssetRegistryABI()
	data, err := registryABI.Pack("iTransferFrom", from, to, tokenID, proofs)
	if err != nil {
		return fmt.Errorf("failed to pack iTransferFrom: %w", err)
	}

	return rc.execute(ctx, rc.addr, data, 500000)
}

// MintWithRole mints a new asset. The minter identity is the caller's signing
// key; the explicit minter argument exists for parity with in-process
// registries and is not sent on the wire.
func (rc *RegistryCaller) MintWithRole(ctx context.Context, minter, to, creator common.Address, sealedKey []byte) (*big.Int, error) {
	_ = minter

	registryABI := GetAssetRegistryABI()
	data, err := registryABI.Pack("mintWithRole", to, creator, sealedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to pack mintWithRole: %w", err)
	}

	// Simulate first to learn the token id the mint will assign
	result, err := rc.call(ctx, rc.addr, data)
	if err != nil {
		return nil, fmt.Errorf("mintWithRole simulation failed: %w", err)
	}

	var tokenID *big.Int
	if err := registryABI.UnpackIntoInterface(&tokenID, "mintWithRole", result); err != nil {
		return nil, err
	}

	if err := rc.execute(ctx, rc.addr, data, 500000); err != nil {
		return nil, err
	}

	return tokenID, nil
}

// TokenCaller binds ERC20-style currency movement over RPC.
type TokenCaller struct {
	*Caller
}

// NewTokenCaller wraps a caller for ERC20 operations.
func NewTokenCaller(caller *Caller) *TokenCaller {
	return &TokenCaller{Caller: caller}
}

// Transfer moves engine-held tokens to a recipient.
func (tc *TokenCaller) Transfer(ctx context.Context, token, to common.Address, amount *big.Int) error {
	erc20ABI := GetERC20ABI()
	data, err := erc20ABI.Pack("transfer", to, amount)
	if err != nil {
		return fmt.Errorf("failed to pack transfer: %w", err)
	}

	return tc.execute(ctx, token, data, 100000)
}

// TransferFrom pulls pre-approved tokens from a holder.
func (tc *TokenCaller) TransferFrom(ctx context.Context, token, from, to common.Address, amount *big.Int) error {
	erc20ABI := GetERC20ABI()
	data, err := erc20ABI.Pack("transferFrom", from, to, amount)
	if err != nil {
		return fmt.Errorf("failed to pack transferFrom: %w", err)
	}

	return tc.execute(ctx, token, data, 100000)
}

// Allowance returns the ERC20 allowance for owner to spender
func (tc *TokenCaller) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	erc20ABI := GetERC20ABI()
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, err
	}

	result, err := tc.call(ctx, token, data)
	if err != nil {
		return nil, err
	}

	var allowance *big.Int
	if err := erc20ABI.UnpackIntoInterface(&allowance, "allowance", result); err != nil {
		return nil, err
	}

	return allowance, nil
}

// BalanceOf returns the ERC20 balance for an account
func (tc *TokenCaller) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	erc20ABI := GetERC20ABI()
	data, err := erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, err
	}

	result, err := tc.call(ctx, token, data)
	if err != nil {
		return nil, err
	}

	var balance *big.Int
	if err := erc20ABI.UnpackIntoInterface(&balance, "balanceOf", result); err != nil {
		return nil, err
	}

	return balance, nil
}
