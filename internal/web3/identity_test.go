package web3

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	xerrors "EcoBot-Chain/internal/errors"
)

// Well known development key (anvil account #0).
const devKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestLoadIdentityDerivesAddress(t *testing.T) {
	id, err := LoadIdentity(devKey)
	if err != nil {
		t.Fatalf("load identity: %v", err)
	}
	want := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	if id.Address() != want {
		t.Fatalf("unexpected address %s", id.Address().Hex())
	}

	chainID := big.NewInt(31337)
	to := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tx := types.NewTx(&types.LegacyTx{Nonce: 3, GasPrice: big.NewInt(1), Gas: 21000, To: &to})
	signed, err := id.SignTx(tx, chainID)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != want {
		t.Fatalf("unexpected sender %s", sender.Hex())
	}
}

func TestLoadIdentityMissingKey(t *testing.T) {
	_, err := LoadIdentity("  ")
	if !xerrors.HasCode(err, xerrors.CodeConfigurationMissing) {
		t.Fatalf("expected CONFIGURATION_MISSING, got %v", err)
	}
	if _, err := LoadIdentity("0xzz"); !xerrors.IsFatal(err) {
		t.Fatalf("malformed keys must be fatal at startup, got %v", err)
	}
}

func TestCallStringAndParams(t *testing.T) {
	spender := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	call := Call{Contract: "dUSD", Method: "approve", Args: []any{spender, big.NewInt(5)}}
	if got := call.String(); got != "dUSD.approve("+spender.Hex()+", 5)" {
		t.Fatalf("unexpected rendering %q", got)
	}
	args, _ := call.Params()["args"].([]string)
	if len(args) != 2 || args[1] != "5" {
		t.Fatalf("unexpected params %+v", call.Params())
	}
}
