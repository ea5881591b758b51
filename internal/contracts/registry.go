// Package contracts holds the ABI of the on-chain AssetRegistry.
package contracts

// AssetRegistryABI covers the certify entrypoint, the AssetCertified
// event emitted on success, and the tokenIdFor view used to reconfirm
// identifiers against the chain.
const AssetRegistryABI = `[
  {
    "type": "function",
    "name": "certify",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "assetId", "type": "bytes32"},
      {"name": "owner", "type": "address"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "tokenIdFor",
    "stateMutability": "view",
    "inputs": [
      {"name": "assetId", "type": "bytes32"}
    ],
    "outputs": [
      {"name": "", "type": "uint256"}
    ]
  },
  {
    "type": "event",
    "name": "AssetCertified",
    "anonymous": false,
    "inputs": [
      {"name": "assetId", "type": "bytes32", "indexed": true},
      {"name": "tokenId", "type": "uint256", "indexed": false},
      {"name": "owner", "type": "address", "indexed": false}
    ]
  }
]`
