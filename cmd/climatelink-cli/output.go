package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

type outputMode struct {
	json bool
	w    io.Writer
}

func (o outputMode) printJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("format json: %w", err)
	}
	_, err = fmt.Fprintln(o.w, string(data))
	return err
}

func (o outputMode) table(rows [][]string) error {
	w := tabwriter.NewWriter(o.w, 2, 4, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}

// emit prints value as JSON in --json mode, otherwise the table rows.
func (o outputMode) emit(value any, rows func() [][]string) error {
	if o.json {
		return o.printJSON(value)
	}
	return o.table(rows())
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
