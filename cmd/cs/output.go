package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// outputJSON prints v as a single JSON line to stdout.
func outputJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

// outputJSONError prints an error object to stderr and exits non-zero.
func outputJSONError(err error, code string) {
	errObj := map[string]string{"error": err.Error()}
	if code != "" {
		errObj["code"] = code
	}
	encoder := json.NewEncoder(os.Stderr)
	_ = encoder.Encode(errObj)
	os.Exit(1)
}
