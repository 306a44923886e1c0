// Package agent implements the cycle logic of the three agent roles: the
// price publisher, the retailer and the arbitrage/liquidation agent. Each
// agent satisfies runner.Agent and owns exactly one signing identity.
package agent
