package contracts

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const multicall2ABIJSON = `[
  {
    "inputs": [
      {"internalType": "bool", "name": "requireSuccess", "type": "bool"},
      {
        "components": [
          {"internalType": "address", "name": "target", "type": "address"},
          {"internalType": "bytes", "name": "callData", "type": "bytes"}
        ],
        "internalType": "struct Multicall2.Call[]",
        "name": "calls",
        "type": "tuple[]"
      }
    ],
    "name": "tryAggregate",
    "outputs": [
      {
        "components": [
          {"internalType": "bool", "name": "success", "type": "bool"},
          {"internalType": "bytes", "name": "returnData", "type": "bytes"}
        ],
        "internalType": "struct Multicall2.Result[]",
        "name": "returnData",
        "type": "tuple[]"
      }
    ],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

const uniswapV2PairABIJSON = `[
  {"inputs": [], "name": "token0", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "token1", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {
    "inputs": [],
    "name": "getReserves",
    "outputs": [
      {"internalType": "uint112", "name": "_reserve0", "type": "uint112"},
      {"internalType": "uint112", "name": "_reserve1", "type": "uint112"},
      {"internalType": "uint32", "name": "_blockTimestampLast", "type": "uint32"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {"inputs": [], "name": "totalSupply", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const masterChefABIJSON = `[
  {"inputs": [], "name": "poolLength", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {
    "inputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "name": "poolInfo",
    "outputs": [
      {"internalType": "contract IERC20", "name": "lpToken", "type": "address"},
      {"internalType": "uint256", "name": "allocPoint", "type": "uint256"},
      {"internalType": "uint256", "name": "lastRewardBlock", "type": "uint256"},
      {"internalType": "uint256", "name": "accSushiPerShare", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "", "type": "uint256"},
      {"internalType": "address", "name": "", "type": "address"}
    ],
    "name": "userInfo",
    "outputs": [
      {"internalType": "uint256", "name": "amount", "type": "uint256"},
      {"internalType": "uint256", "name": "rewardDebt", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

// MulticallCall mirrors the Multicall2.Call tuple.
type MulticallCall struct {
	Target   common.Address
	CallData []byte
}

// MulticallResult mirrors the Multicall2.Result tuple.
type MulticallResult struct {
	Success    bool
	ReturnData []byte
}

var (
	multicall2ABI     abi.ABI
	multicall2ABIOnce sync.Once
	multicall2ABIErr  error

	pairABI     abi.ABI
	pairABIOnce sync.Once
	pairABIErr  error

	masterChefABI     abi.ABI
	masterChefABIOnce sync.Once
	masterChefABIErr  error
)

// Multicall2ABI returns the parsed Multicall2 ABI.
func Multicall2ABI() (abi.ABI, error) {
	multicall2ABIOnce.Do(func() {
		multicall2ABI, multicall2ABIErr = abi.JSON(strings.NewReader(multicall2ABIJSON))
	})
	return multicall2ABI, multicall2ABIErr
}

// UniswapV2PairABI returns the parsed UniswapV2 pair ABI.
func UniswapV2PairABI() (abi.ABI, error) {
	pairABIOnce.Do(func() {
		pairABI, pairABIErr = abi.JSON(strings.NewReader(uniswapV2PairABIJSON))
	})
	return pairABI, pairABIErr
}

// MasterChefABI returns the parsed staking-pool (MasterChef) ABI.
func MasterChefABI() (abi.ABI, error) {
	masterChefABIOnce.Do(func() {
		masterChefABI, masterChefABIErr = abi.JSON(strings.NewReader(masterChefABIJSON))
	})
	return masterChefABI, masterChefABIErr
}
