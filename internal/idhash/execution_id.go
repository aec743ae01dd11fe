package idhash

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ComputeExecutionID computes the provenance hash of an execution attempt.
// Formula: keccak256(strategy_id|executor|nonce|timestamp)
// Returns hex-encoded hash (64 characters).
func ComputeExecutionID(
	strategyID uint64,
	executor common.Address,
	nonce uint64,
	timestamp int64,
) string {
	data := fmt.Sprintf("%d|%s|%d|%d",
		strategyID,
		executor.Hex(),
		nonce,
		timestamp,
	)

	hash := crypto.Keccak256([]byte(data))
	return hex.EncodeToString(hash)
}
