package services

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/talentflow/ats-backend/shared"
)

var (
	horizontalSpaceRegex = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
	controlCharRegex     = regexp.MustCompile(`[\x00-\x08\x0B\x0E-\x1F\x7F]`)
)

// UtilityService provides text normalization for submitted candidate data
type UtilityService struct {
	serviceMetrics *shared.ServiceMetrics
}

// NewUtilityService creates a new utility service instance
func NewUtilityService() *UtilityService {
	return &UtilityService{
		serviceMetrics: shared.NewServiceMetrics("Utility_Service"),
	}
}

// SanitizeMessage reduces candidate supplied text to plain text. Markup is
// parsed and dropped, script and style bodies are removed, whitespace is
// collapsed per line. Returns nil when nothing readable remains.
func (s *UtilityService) SanitizeMessage(raw string) *string {
	startTime := time.Now()
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	text := raw
	if strings.ContainsAny(raw, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"component": "UtilityService",
				"length":    len(raw),
			}).WithError(err).Warn("Failed to parse message markup, stripping control characters only")
			s.recordOperation("sanitize_message", false, time.Since(startTime))
		} else {
			doc.Find("script, style, noscript, iframe").Remove()
			doc.Find("br").ReplaceWithHtml("\n")
			doc.Find("p, div, li").Each(func(_ int, sel *goquery.Selection) {
				sel.AppendHtml("\n")
			})
			text = doc.Text()
		}
	}

	text = controlCharRegex.ReplaceAllString(text, "")

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(horizontalSpaceRegex.ReplaceAllString(line, " "))
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}

	s.recordOperation("sanitize_message", true, time.Since(startTime))

	if len(cleaned) == 0 {
		return nil
	}
	result := strings.Join(cleaned, "\n")
	return &result
}

// NormalizeString normalizes empty strings to nil
func (s *UtilityService) NormalizeString(str string) *string {
	str = strings.TrimSpace(str)
	if str == "" {
		return nil
	}
	return &str
}

// NormalizeOptional trims a pointer value, mapping blanks to nil
func (s *UtilityService) NormalizeOptional(str *string) *string {
	if str == nil {
		return nil
	}
	return s.NormalizeString(*str)
}

// NormalizeEmail trims and lower-cases an address for identity matching
func (s *UtilityService) NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeCurrency upper-cases an ISO currency code
func (s *UtilityService) NormalizeCurrency(currency *string) *string {
	normalized := s.NormalizeOptional(currency)
	if normalized == nil {
		return nil
	}
	upper := strings.ToUpper(*normalized)
	return &upper
}

// GetServiceMetrics returns the current service metrics
func (s *UtilityService) GetServiceMetrics() *shared.ServiceMetrics {
	return s.serviceMetrics
}

func (s *UtilityService) recordOperation(operationName string, success bool, processingTime time.Duration) {
	if s.serviceMetrics != nil {
		s.serviceMetrics.RecordRequest(success, processingTime)
		s.serviceMetrics.RecordOutcome(operationName)
	}
}
