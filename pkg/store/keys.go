package store

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

const (
	blockPrefix   = "b"
	heightPrefix  = "n"
	receiptPrefix = "r"
	metaPrefix    = "m"

	// headHeightKey is the metadata key holding the current chain height.
	headHeightKey = "head"
)

func getBlockKey(hash common.Hash) string {
	return GenerateKey([]string{blockPrefix, hash.Hex()})
}

func getHeightKey(height uint64) string {
	return GenerateKey([]string{heightPrefix, strconv.FormatUint(height, 10)})
}

func getReceiptKey(txHash common.Hash) string {
	return GenerateKey([]string{receiptPrefix, txHash.Hex()})
}

func getMetaKey(field string) string {
	return GenerateKey([]string{metaPrefix, field})
}
