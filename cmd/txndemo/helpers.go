package main

import (
	"fmt"

	"corerel/pkg/c_table"
)

// drainRows materializes a cursor's col0 values into a slice of (key,
// value) pairs and closes it, for printing.
func drainRows(c table.Cursor) [][2]string {
	defer c.Close()
	var out [][2]string
	for c.HasNext() {
		r := c.Next()
		out = append(out, [2]string{r.Key(), string(r.Get(0))})
	}
	return out
}

func printRows(label string, rows [][2]string) {
	fmt.Printf("%s: %v\n", label, rows)
}
