// Package web3 houses ledger connectivity for the agents: the Gateway
// abstraction over an EVM node, encoded contract calls with their gas
// ceilings, and the per-agent signing identity. Concrete node access lives in
// the ethereum subpackage and typed contract clients in contracts.
package web3
