// Package pdfscan classifies scan-engine report PDFs locally by
// reading their summary text. It is the default ReportAnalyzer; the
// scanapi client replaces it when a remote engine is configured.
package pdfscan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/scanworks/reportbroker/internal/core/domain"
)

var (
	// Report generators vary the summary wording; keyword first or
	// percentage first both occur.
	aiPattern = regexp.MustCompile(
		`(?i)(?:ai\s+(?:detection|content|writing|generated)[^%\n]{0,60}?(\d{1,3}(?:\.\d+)?)\s*%|(\d{1,3}(?:\.\d+)?)\s*%[^\n]{0,60}?\bai\b)`)
	similarityPattern = regexp.MustCompile(
		`(?i)(?:(?:overall\s+)?(?:similarity|plagiarism)(?:\s+index)?[^%\n]{0,60}?(\d{1,3}(?:\.\d+)?)\s*%|(\d{1,3}(?:\.\d+)?)\s*%[^\n]{0,60}?(?:similarity|plagiarism))`)
)

type Analyzer struct{}

func New() *Analyzer {
	return &Analyzer{}
}

func (a *Analyzer) Analyze(_ context.Context, data []byte) (domain.AnalysisResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("open pdf: %w", err)
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("extract pdf text: %w", err)
	}
	raw, err := io.ReadAll(textReader)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("read pdf text: %w", err)
	}

	result, err := ParseSummary(string(raw))
	if err != nil {
		return domain.AnalysisResult{}, domain.WrapError(domain.ErrInvalidInput, "classify report", err)
	}
	return result, nil
}

// ParseSummary detects the report type and percentage from extracted
// text. AI wording is checked first because AI reports often mention
// similarity in passing, never the other way around.
func ParseSummary(text string) (domain.AnalysisResult, error) {
	if strings.TrimSpace(text) == "" {
		return domain.AnalysisResult{}, errors.New("empty report text")
	}

	if pct, ok := firstPercentage(aiPattern, text); ok {
		return domain.AnalysisResult{Type: domain.ReportAI, Percentage: &pct}, nil
	}
	if pct, ok := firstPercentage(similarityPattern, text); ok {
		return domain.AnalysisResult{Type: domain.ReportSimilarity, Percentage: &pct}, nil
	}
	return domain.AnalysisResult{}, errors.New("no similarity or ai summary line found")
}

func firstPercentage(pattern *regexp.Regexp, text string) (float64, bool) {
	match := pattern.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}
	for _, group := range match[1:] {
		if group == "" {
			continue
		}
		pct, err := strconv.ParseFloat(group, 64)
		if err != nil || pct < 0 || pct > 100 {
			continue
		}
		return pct, true
	}
	return 0, false
}
