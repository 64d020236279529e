package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// RecordID = "<block>:<tx_hash>:<log_index>"
func formatRecordID(block uint64, txHash string, logIndex uint32) string {
	return fmt.Sprintf("%d:%s:%d", block, strings.ToLower(txHash), logIndex)
}

type ParsedRecordID struct {
	BlockNumber uint64
	TxHash      string
	LogIndex    uint32
}

// ParseRecordID is the inverse of SwapRecord.ID.
func ParseRecordID(id string) (ParsedRecordID, error) {
	var out ParsedRecordID
	parts := strings.Split(id, ":")
	if len(parts) != 3 {
		return out, fmt.Errorf("invalid record id format: %s", id)
	}

	block, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return out, fmt.Errorf("invalid block number, err=%v", err)
	}

	logIdx, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return out, fmt.Errorf("invalid log_index, err=%v", err)
	}

	out.BlockNumber = block
	out.TxHash = strings.ToLower(parts[1])
	out.LogIndex = uint32(logIdx)

	return out, nil
}
