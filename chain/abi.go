package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultMulticallAddress is the canonical Multicall3 deployment, present on
// mainnet, Sepolia and most public EVM chains.
var DefaultMulticallAddress = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

const factoryABIJSON = `[
  {"type":"function","name":"getTokenRecords","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"tuple[]","components":[
     {"name":"token","type":"address"},
     {"name":"creator","type":"address"},
     {"name":"createdAt","type":"uint256"}]}]},
  {"type":"function","name":"createConfidentialToken","stateMutability":"nonpayable",
   "inputs":[{"name":"name","type":"string"},{"name":"symbol","type":"string"}],
   "outputs":[{"name":"","type":"address"}]},
  {"type":"event","name":"TokenCreated","anonymous":false,"inputs":[
     {"name":"token","type":"address","indexed":true},
     {"name":"creator","type":"address","indexed":true},
     {"name":"name","type":"string","indexed":false},
     {"name":"symbol","type":"string","indexed":false}]}
]`

const tokenABIJSON = `[
  {"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"freemintAmount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint64"}]},
  {"type":"function","name":"confidentialBalanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"freemint","stateMutability":"nonpayable","inputs":[],"outputs":[]}
]`

const multicallABIJSON = `[
  {"type":"function","name":"aggregate3","stateMutability":"payable",
   "inputs":[{"name":"calls","type":"tuple[]","components":[
     {"name":"target","type":"address"},
     {"name":"allowFailure","type":"bool"},
     {"name":"callData","type":"bytes"}]}],
   "outputs":[{"name":"returnData","type":"tuple[]","components":[
     {"name":"success","type":"bool"},
     {"name":"returnData","type":"bytes"}]}]}
]`

// Contract method names used across the launchpad.
const (
	MethodGetTokenRecords         = "getTokenRecords"
	MethodCreateConfidentialToken = "createConfidentialToken"
	MethodName                    = "name"
	MethodSymbol                  = "symbol"
	MethodFreemintAmount          = "freemintAmount"
	MethodConfidentialBalanceOf   = "confidentialBalanceOf"
	MethodFreemint                = "freemint"
)

var (
	FactoryABI   = mustParseABI(factoryABIJSON)
	TokenABI     = mustParseABI(tokenABIJSON)
	MulticallABI = mustParseABI(multicallABIJSON)
)

// FactoryTokenRecord mirrors one element of getTokenRecords().
type FactoryTokenRecord struct {
	Token     common.Address
	Creator   common.Address
	CreatedAt *big.Int
}

type multicallCall struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type multicallResult struct {
	Success    bool
	ReturnData []byte
}

func mustParseABI(definition string) *abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(err)
	}
	return &parsed
}
