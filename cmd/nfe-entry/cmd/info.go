package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfe-entry/internal/parser/nfe"
	"github.com/rezonia/nfe-entry/internal/processor"
	"github.com/rezonia/nfe-entry/internal/signature/xml"
)

var infoCmd = &cobra.Command{
	Use:   "info [files...]",
	Short: "Show information about invoice files",
	Long: `Display information about invoice files without full processing.

Shows:
  - Detected file format (XML, image) and MIME type
  - Whether the XML is an NF-e and whether it is signed
  - File metadata

Examples:
  nfe-entry info nota.xml
  nfe-entry info notas/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no files found")
	}

	w := cmd.OutOrStdout()
	for _, file := range files {
		printFileInfo(w, file)
		fmt.Fprintln(w)
	}

	return nil
}

func printFileInfo(w io.Writer, filePath string) {
	fmt.Fprintf(w, "File: %s\n", filePath)

	info, err := os.Stat(filePath)
	if err != nil {
		fmt.Fprintf(w, "  Error: %v\n", err)
		return
	}

	fmt.Fprintf(w, "  Size: %d bytes\n", info.Size())
	fmt.Fprintf(w, "  Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))

	data, err := os.ReadFile(filePath)
	if err != nil {
		fmt.Fprintf(w, "  Error reading file: %v\n", err)
		return
	}

	format := processor.DetectFormat(data)
	fmt.Fprintf(w, "  Format: %s\n", formatName(format))
	fmt.Fprintf(w, "  MIME: %s\n", processor.DetectMimeType(data))

	if format != processor.FormatXML {
		return
	}

	fmt.Fprintf(w, "  NF-e: %s\n", yesNo(nfe.NewExtractor().CanParse(data)))

	sigExtractor := xml.NewSignatureExtractor()
	if !sigExtractor.CanExtract(data) {
		fmt.Fprintln(w, "  Signed: no")
	} else if extraction, err := sigExtractor.Extract(data); err != nil {
		fmt.Fprintf(w, "  Signed: yes (%v)\n", err)
	} else {
		fmt.Fprintf(w, "  Signed: yes (%s, %s)\n", extraction.Kind, extraction.ReferenceURI)
	}

	if preview := getPreview(string(data), 200); preview != "" {
		fmt.Fprintf(w, "  Preview: %s\n", preview)
	}
}

func formatName(f processor.Format) string {
	switch f {
	case processor.FormatXML:
		return "XML"
	case processor.FormatPDF:
		return "PDF (not supported)"
	case processor.FormatImage:
		return "Image (DANFE)"
	default:
		return "Unknown"
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func getPreview(content string, maxLen int) string {
	if idx := strings.Index(content, "?>"); idx >= 0 {
		content = content[idx+2:]
	}

	content = strings.Join(strings.Fields(content), " ")
	if len(content) > maxLen {
		content = content[:maxLen] + "..."
	}

	return content
}
