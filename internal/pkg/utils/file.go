package utils

import (
	"fmt"
	"strings"
)

// MakeTranscriptName returns the object store key for a request's transcript snapshot
func MakeTranscriptName(requestID string) (string, error) {
	if requestID == "" {
		return "", fmt.Errorf("no requestID")
	}
	if strings.ContainsAny(requestID, "/\\ ") {
		return "", fmt.Errorf("wrong requestID '%s'", requestID)
	}
	return requestID + "/transcript.txt", nil
}

// ParamTrue - returns true if string param indicates true value
func ParamTrue(prm string) bool {
	return strings.ToLower(prm) == "true" || prm == "1"
}
