package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"text/tabwriter"
)

// humanRenderer is implemented by command results with a table or summary form.
type humanRenderer interface {
	RenderHuman(out io.Writer) error
}

type outputMode int

const (
	modeHuman outputMode = iota
	modeJSON
	modeJSONL
)

// Formatter writes a command result in the mode chosen by --json/--jsonl.
type Formatter struct {
	out  io.Writer
	mode outputMode
}

// NewFormatter builds a formatter for the current output flags.
func NewFormatter(out io.Writer) *Formatter {
	mode := modeHuman
	switch {
	case IsJSONLOutput():
		mode = modeJSONL
	case IsJSONOutput():
		mode = modeJSON
	}
	return &Formatter{out: out, mode: mode}
}

// Structured reports whether output is machine-readable.
func (f *Formatter) Structured() bool {
	return f.mode != modeHuman
}

// Write renders value. In JSONL mode slices are written one element per line.
func (f *Formatter) Write(value any) error {
	switch f.mode {
	case modeJSON:
		enc := json.NewEncoder(f.out)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return encode(enc, value)
	case modeJSONL:
		enc := json.NewEncoder(f.out)
		enc.SetEscapeHTML(false)
		if v := reflect.ValueOf(value); v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
			for i := 0; i < v.Len(); i++ {
				if err := encode(enc, v.Index(i).Interface()); err != nil {
					return err
				}
			}
			return nil
		}
		return encode(enc, value)
	default:
		if r, ok := value.(humanRenderer); ok {
			return r.RenderHuman(f.out)
		}
		_, err := fmt.Fprintln(f.out, value)
		return err
	}
}

func encode(enc *json.Encoder, value any) error {
	if err := enc.Encode(value); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

// WriteOutput writes value to out in the current output mode.
func WriteOutput(out io.Writer, value any) error {
	return NewFormatter(out).Write(value)
}

// newTable returns the tabwriter shared by list commands.
func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
}
