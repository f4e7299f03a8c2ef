package core

import (
	"fmt"
	"sort"
)

// sortedKeys returns map keys in ascending order so rule evaluation and
// generated output are deterministic.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// rowMessage prefixes msg with its row number for job error lists.
func rowMessage(rowNumber int, msg string) string {
	return fmt.Sprintf("row %d: %s", rowNumber, msg)
}

func rowMessages(rowNumber int, msgs []string) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = rowMessage(rowNumber, m)
	}
	return out
}
