package dataset

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/dsnet/compress/bzip2"
)

// Decode reverses the wire encoding: base64 then bzip2.
func Decode(data string) (string, error) {
	compressed, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("dataset: base64 decode: %w", err)
	}
	zr, err := bzip2.NewReader(bytes.NewReader(compressed), nil)
	if err != nil {
		return "", fmt.Errorf("dataset: bzip2 reader: %w", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("dataset: bzip2 decompress: %w", err)
	}
	if err := zr.Close(); err != nil {
		return "", fmt.Errorf("dataset: bzip2 close: %w", err)
	}
	return string(raw), nil
}

// Encode applies the wire encoding: bzip2 then base64.
func Encode(data string) (string, error) {
	var buf bytes.Buffer
	zw, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
	if err != nil {
		return "", fmt.Errorf("dataset: bzip2 writer: %w", err)
	}
	if _, err := zw.Write([]byte(data)); err != nil {
		return "", fmt.Errorf("dataset: bzip2 compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("dataset: bzip2 flush: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeTable decodes one wire-encoded CSV column into a Table.
func DecodeTable(data string) (Table, error) {
	raw, err := Decode(data)
	if err != nil {
		return Table{}, err
	}
	return ReadCSV(strings.NewReader(raw))
}

// EncodeTable serializes a Table into the wire encoding.
func EncodeTable(t Table) (string, error) {
	raw, err := t.CSVString()
	if err != nil {
		return "", err
	}
	return Encode(raw)
}
