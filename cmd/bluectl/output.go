package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// parseDataArg converts an input string to bytes. With hexIn set, common
// separators (spaces, colons, dashes, 0x) are stripped before decoding.
func parseDataArg(dataStr string, hexIn bool) ([]byte, error) {
	if !hexIn {
		return []byte(dataStr), nil
	}

	cleaned := strings.ReplaceAll(dataStr, " ", "")
	cleaned = strings.ReplaceAll(cleaned, ":", "")
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	cleaned = strings.ReplaceAll(cleaned, "0x", "")

	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return data, nil
}

// outputData writes a value to stdout, hex-encoded or raw.
func outputData(data []byte, hexOut bool) error {
	if hexOut {
		fmt.Println(hex.EncodeToString(data))
		return nil
	}
	_, err := os.Stdout.Write(data)
	return err
}
