// Package extract turns stored files into plain text for indexing.
//
// Extraction never fails the caller: a broken or unsupported file logs a
// warning and yields an empty string, so one bad upload cannot block a
// tenant's rebuild.
package extract

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/aken1023/llamaindex-faiss-system1/internal/pkg/logger"
)

// SupportedExtensions lists the upload formats the extractor understands.
var SupportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".pdf":  true,
	".doc":  true,
	".docx": true,
}

// IsSupported reports whether a filename has an indexable extension.
func IsSupported(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Text extracts the content of the file at path. Unsupported extensions and
// extraction failures return "".
func Text(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return plainText(path)
	case ".pdf":
		return pdfText(path)
	case ".doc", ".docx":
		return wordText(path)
	default:
		logger.Warnf("unsupported file format: %s", filepath.Ext(path))
		return ""
	}
}

func plainText(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Errorf("read text file %s failed: %v", path, err)
		return ""
	}
	return string(data)
}

// pdfText concatenates per-page text with newline separators.
func pdfText(path string) string {
	f, reader, err := pdf.Open(path)
	if err != nil {
		logger.Errorf("open pdf %s failed: %v", path, err)
		return ""
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Errorf("extract pdf page %d of %s failed: %v", i, path, err)
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// wordText reads the WordprocessingML body of a .docx archive and joins
// paragraph text with newlines. Legacy binary .doc files are not zip
// archives, so they fall through the same error path and yield "".
func wordText(path string) string {
	archive, err := zip.OpenReader(path)
	if err != nil {
		logger.Errorf("open word document %s failed: %v", path, err)
		return ""
	}
	defer archive.Close()

	var body io.ReadCloser
	for _, file := range archive.File {
		if file.Name == "word/document.xml" {
			body, err = file.Open()
			break
		}
	}
	if body == nil || err != nil {
		logger.Errorf("word document %s has no readable body: %v", path, err)
		return ""
	}
	defer body.Close()

	text, err := wordBodyText(body)
	if err != nil {
		logger.Errorf("parse word document %s failed: %v", path, err)
		return ""
	}
	return text
}

func wordBodyText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var sb strings.Builder
	inText := false
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}
