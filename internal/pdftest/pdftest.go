// Package pdftest builds small valid PDF files for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// Bytes returns a PDF with the given number of blank pages and a correct
// cross-reference table. The label is stored in the document info so two
// fixtures with the same page count still differ.
func Bytes(pages int, label string) []byte {
	if pages < 1 {
		pages = 1
	}
	var objs []string
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")

	kids := new(bytes.Buffer)
	for i := 0; i < pages; i++ {
		if i > 0 {
			kids.WriteByte(' ')
		}
		fmt.Fprintf(kids, "%d 0 R", i+4)
	}
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	objs = append(objs, fmt.Sprintf("<< /Title (%s) /Producer (pdftest) >>", escape(label)))
	for i := 0; i < pages; i++ {
		objs = append(objs, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 300] /Resources << >> >>")
	}

	buf := new(bytes.Buffer)
	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xref := buf.Len()
	fmt.Fprintf(buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(buf, "trailer\n<< /Size %d /Root 1 0 R /Info 3 0 R >>\nstartxref\n%d\n%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

// Write stores a fixture at path, creating parent directories.
func Write(tb testing.TB, path string, pages int) string {
	tb.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("pdftest: mkdir: %v", err)
	}
	if err := os.WriteFile(path, Bytes(pages, filepath.Base(path)), 0o644); err != nil {
		tb.Fatalf("pdftest: write %s: %v", path, err)
	}
	return path
}

func escape(s string) string {
	r := new(bytes.Buffer)
	for _, c := range []byte(s) {
		switch c {
		case '(', ')', '\\':
			r.WriteByte('\\')
		}
		r.WriteByte(c)
	}
	return r.String()
}
