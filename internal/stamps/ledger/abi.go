package ledger

// stampContractABI covers the two contract entry points used here plus the
// custom error the contract raises on a second claim.
const stampContractABI = `[
  {
    "type": "function",
    "name": "claim",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "to", "type": "address"},
      {"name": "tokenId", "type": "uint256"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "hasUserClaimed",
    "stateMutability": "view",
    "inputs": [
      {"name": "user", "type": "address"},
      {"name": "tokenId", "type": "uint256"}
    ],
    "outputs": [{"name": "", "type": "bool"}]
  },
  {
    "type": "error",
    "name": "AlreadyClaimed",
    "inputs": []
  }
]`

const (
	methodClaim          = "claim"
	methodHasUserClaimed = "hasUserClaimed"
	errorAlreadyClaimed  = "AlreadyClaimed"
)
