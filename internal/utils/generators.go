package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateTransactionID returns an id for a ledger transaction row.
func GenerateTransactionID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999999))
	return fmt.Sprintf("trx_%d_%09d", timestamp, randomNum.Int64())
}

// GenerateAccountID returns an id for a passenger account.
func GenerateAccountID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("acc_%d_%06d", timestamp, randomNum.Int64())
}

// GenerateBatchID returns an id for a ticket batch row.
func GenerateBatchID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("bat_%d_%06d", timestamp, randomNum.Int64())
}
