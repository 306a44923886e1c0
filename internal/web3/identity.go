package web3

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "EcoBot-Chain/internal/errors"
)

// Identity 是单个智能体的签名凭证，进程启动时加载一次。
type Identity struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// LoadIdentity 从十六进制私钥构造身份。
func LoadIdentity(hexKey string) (*Identity, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, xerrors.New(xerrors.CodeConfigurationMissing, "未配置钱包私钥")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfigurationMissing, err, "解析钱包私钥失败")
	}
	return NewIdentity(key), nil
}

// NewIdentity 包装已解析的私钥。
func NewIdentity(key *ecdsa.PrivateKey) *Identity {
	return &Identity{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// AddressFromKey 只推导账户地址，不保留私钥。
func AddressFromKey(hexKey string) (common.Address, error) {
	id, err := LoadIdentity(hexKey)
	if err != nil {
		return common.Address{}, err
	}
	return id.Address(), nil
}

// Address 返回身份对应的账户地址。
func (i *Identity) Address() common.Address {
	if i == nil {
		return common.Address{}
	}
	return i.address
}

// SignTx 为指定链签名交易。
func (i *Identity) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if i == nil || i.key == nil {
		return nil, errors.New("未加载签名身份")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), i.key)
}
