package bes

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// ReverseFastPairModelID converts a Fast Pair model ID from the
// registry format (XXXXXX or 0xXXXXXX) to the byte-reversed hex string
// the firmware stores.
func ReverseFastPairModelID(modelID string) (string, error) {
	id := strings.TrimPrefix(strings.ToLower(modelID), "0x")
	raw, err := hex.DecodeString(id)
	if err != nil || len(raw) != 3 {
		return "", fmt.Errorf("%w: Fast Pair model ID %q", ErrInvalidArgument, modelID)
	}
	for i, j := 0, len(raw)-1; i < j; i, j = i+1, j-1 {
		raw[i], raw[j] = raw[j], raw[i]
	}
	return hex.EncodeToString(raw), nil
}

// DecodeFastPairPrivateKey converts a base64 Fast Pair anti-spoofing
// key to the hex string the firmware expects.
func DecodeFastPairPrivateKey(privateKey string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(privateKey)
	if err != nil {
		return "", fmt.Errorf("%w: Fast Pair private key is not valid base64", ErrInvalidArgument)
	}
	return hex.EncodeToString(raw), nil
}
