package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/talentflow/ats-backend/database"
	"github.com/talentflow/ats-backend/models"
	"github.com/talentflow/ats-backend/shared"
)

// maxBreakdownRows caps every daily breakdown
const maxBreakdownRows = 365

const dayLayout = "2006-01-02"

// ReportService computes analytics over the attempt log and the stage ledger
type ReportService struct {
	db             database.Querier
	serviceMetrics *shared.ServiceMetrics
}

func NewReportService(db database.Querier) *ReportService {
	return &ReportService{
		db:             db,
		serviceMetrics: shared.NewServiceMetrics("Analytics_Aggregator"),
	}
}

// GetServiceMetrics returns aggregator metrics
func (s *ReportService) GetServiceMetrics() *shared.ServiceMetrics {
	return s.serviceMetrics
}

type whereBuilder struct {
	conditions []string
	args       []interface{}
}

// add appends a condition whose single placeholder is written as %d
func (w *whereBuilder) add(condition string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conditions = append(w.conditions, fmt.Sprintf(condition, len(w.args)))
}

func (w *whereBuilder) addRaw(condition string) {
	w.conditions = append(w.conditions, condition)
}

func (w *whereBuilder) clause() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conditions, " AND ")
}

// dateRange applies inclusive day bounds to column. End covers its whole day.
func (w *whereBuilder) dateRange(column string, filter models.ReportFilter) {
	if filter.Start != nil {
		w.add(column+" >= $%d", truncateDay(*filter.Start))
	}
	if filter.End != nil {
		w.add(column+" < $%d", truncateDay(*filter.End).AddDate(0, 0, 1))
	}
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func attemptLogWhere(filter models.ReportFilter, withStatus bool) *whereBuilder {
	w := &whereBuilder{}
	w.dateRange("l.created_at", filter)
	if filter.CompanyID != nil {
		w.add("EXISTS (SELECT 1 FROM jobs fj WHERE fj.job_id = l.job_id AND fj.company_id = $%d)", *filter.CompanyID)
	}
	if withStatus && filter.Status != nil {
		w.add("l.status = $%d", string(*filter.Status))
	}
	return w
}

// DailyStatus counts attempts per day and status, newest day first
func (s *ReportService) DailyStatus(ctx context.Context, filter models.ReportFilter) (*models.DailyStatusReport, error) {
	startTime := time.Now()
	w := attemptLogWhere(filter, true)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT date_trunc('day', l.created_at AT TIME ZONE 'UTC') AS day, l.status, COUNT(*)::bigint AS total
		FROM public_applications_log l
		%s
		GROUP BY day, l.status
		ORDER BY day DESC, l.status ASC
		LIMIT %d
	`, w.clause(), maxBreakdownRows), w.args...)
	if err != nil {
		s.serviceMetrics.RecordRequest(false, time.Since(startTime))
		return nil, shared.ClassifyPostgresError(err, "ReportService", "DailyStatus")
	}
	defer rows.Close()

	report := &models.DailyStatusReport{
		Items:  make([]models.DailyStatusRow, 0),
		Totals: make([]models.StatusTotal, 0),
	}
	for rows.Next() {
		var row models.DailyStatusRow
		if err := rows.Scan(&row.Day, &row.Status, &row.Total); err != nil {
			return nil, fmt.Errorf("scan daily status: %w", err)
		}
		report.Items = append(report.Items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	totals, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT l.status, COUNT(*)::bigint AS total
		FROM public_applications_log l
		%s
		GROUP BY l.status
		ORDER BY l.status ASC
	`, w.clause()), w.args...)
	if err != nil {
		s.serviceMetrics.RecordRequest(false, time.Since(startTime))
		return nil, shared.ClassifyPostgresError(err, "ReportService", "DailyStatus")
	}
	defer totals.Close()

	for totals.Next() {
		var total models.StatusTotal
		if err := totals.Scan(&total.Status, &total.Total); err != nil {
			return nil, fmt.Errorf("scan status total: %w", err)
		}
		report.Totals = append(report.Totals, total)
	}

	s.serviceMetrics.RecordRequest(true, time.Since(startTime))
	return report, totals.Err()
}

// AttemptFact is one attempt log row joined, best effort, to the
// application with the same job and email and its stage milestones
type AttemptFact struct {
	LogID          int64
	CreatedAt      time.Time
	LogSource      *string
	LogDetails     []byte
	UserAgent      *string
	ApplicationID  *uuid.UUID
	CurrentStatus  *string
	AppSource      *string
	AppDetails     []byte
	FirstInterview *time.Time
	FirstOffer     *time.Time
	FirstHire      *time.Time
	// FirstResponse is the earliest transition with a previous status. The
	// creation row has none and is never a response.
	FirstResponse *time.Time
}

// Matched reports whether the attempt joined an application
func (f AttemptFact) Matched() bool {
	return f.ApplicationID != nil
}

// LoadAttemptFacts returns the joined rows for the filter, oldest first
func (s *ReportService) LoadAttemptFacts(ctx context.Context, filter models.ReportFilter) ([]AttemptFact, error) {
	w := attemptLogWhere(filter, false)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT l.log_id, l.created_at, l.source, l.source_details, l.user_agent,
			a.application_id, a.estado, a.source, a.source_details,
			MIN(h.changed_at) FILTER (WHERE h.estado_nuevo = 'Entrevista') AS first_interview,
			MIN(h.changed_at) FILTER (WHERE h.estado_nuevo = 'Oferta') AS first_offer,
			MIN(h.changed_at) FILTER (WHERE h.estado_nuevo = 'Contratado') AS first_hire,
			MIN(h.changed_at) FILTER (WHERE h.estado_anterior IS NOT NULL) AS first_response
		FROM public_applications_log l
		LEFT JOIN candidatos c ON c.email = LOWER(l.candidate_email)
		LEFT JOIN applications a ON a.job_id = l.job_id AND a.candidato_id = c.candidato_id
		LEFT JOIN application_stage_history h ON h.application_id = a.application_id
		%s
		GROUP BY l.log_id, a.application_id
		ORDER BY l.created_at ASC, l.log_id ASC
	`, w.clause()), w.args...)
	if err != nil {
		return nil, shared.ClassifyPostgresError(err, "ReportService", "LoadAttemptFacts")
	}
	defer rows.Close()

	facts := make([]AttemptFact, 0)
	for rows.Next() {
		var f AttemptFact
		if err := rows.Scan(
			&f.LogID, &f.CreatedAt, &f.LogSource, &f.LogDetails, &f.UserAgent,
			&f.ApplicationID, &f.CurrentStatus, &f.AppSource, &f.AppDetails,
			&f.FirstInterview, &f.FirstOffer, &f.FirstHire, &f.FirstResponse,
		); err != nil {
			return nil, fmt.Errorf("scan attempt fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// Conversion reports the funnel for the filter
func (s *ReportService) Conversion(ctx context.Context, filter models.ReportFilter) (*models.ConversionReport, error) {
	startTime := time.Now()
	facts, err := s.LoadAttemptFacts(ctx, filter)
	s.serviceMetrics.RecordRequest(err == nil, time.Since(startTime))
	if err != nil {
		return nil, err
	}
	report := BuildConversionReport(facts)
	return &report, nil
}

// ResponseTime reports hours from first attempt to first recruiter transition
func (s *ReportService) ResponseTime(ctx context.Context, filter models.ReportFilter) (*models.ResponseTimeReport, error) {
	startTime := time.Now()
	facts, err := s.LoadAttemptFacts(ctx, filter)
	s.serviceMetrics.RecordRequest(err == nil, time.Since(startTime))
	if err != nil {
		return nil, err
	}
	report := BuildResponseTimeReport(facts)
	return &report, nil
}

// Sources reports channel and platform attribution
func (s *ReportService) Sources(ctx context.Context, filter models.ReportFilter) (*models.SourcesReport, error) {
	startTime := time.Now()
	facts, err := s.LoadAttemptFacts(ctx, filter)
	s.serviceMetrics.RecordRequest(err == nil, time.Since(startTime))
	if err != nil {
		return nil, err
	}
	report := BuildSourcesReport(facts)
	return &report, nil
}

// BuildConversionReport counts attempts and, per distinct matched
// application, the milestones it reached
func BuildConversionReport(facts []AttemptFact) models.ConversionReport {
	report := models.ConversionReport{Status: make([]models.CurrentStatusCount, 0)}
	report.Summary.TotalLogs = int64(len(facts))

	seen := make(map[uuid.UUID]bool)
	byStatus := make(map[string]int64)
	for _, f := range facts {
		if !f.Matched() || seen[*f.ApplicationID] {
			continue
		}
		seen[*f.ApplicationID] = true
		report.Summary.Matched++
		if f.FirstInterview != nil {
			report.Summary.Interviews++
		}
		if f.FirstOffer != nil {
			report.Summary.Offers++
		}
		if f.FirstHire != nil {
			report.Summary.Hires++
		}
		status := models.UnknownDimension
		if f.CurrentStatus != nil {
			status = *f.CurrentStatus
		}
		byStatus[status]++
	}

	for status, total := range byStatus {
		status := status
		report.Status = append(report.Status, models.CurrentStatusCount{Status: &status, Total: total})
	}
	sort.Slice(report.Status, func(i, j int) bool {
		if report.Status[i].Total != report.Status[j].Total {
			return report.Status[i].Total > report.Status[j].Total
		}
		return *report.Status[i].Status < *report.Status[j].Status
	})
	return report
}

// BuildResponseTimeReport takes one sample per matched application: the
// hours between its earliest attempt in range and its first transition
// after creation. Transitions recorded before the attempt are skipped.
func BuildResponseTimeReport(facts []AttemptFact) models.ResponseTimeReport {
	firstAttempt := make(map[uuid.UUID]time.Time)
	firstResponse := make(map[uuid.UUID]time.Time)
	order := make([]uuid.UUID, 0)

	for _, f := range facts {
		if !f.Matched() || f.FirstResponse == nil {
			continue
		}
		id := *f.ApplicationID
		if at, ok := firstAttempt[id]; !ok || f.CreatedAt.Before(at) {
			if !ok {
				order = append(order, id)
			}
			firstAttempt[id] = f.CreatedAt
		}
		firstResponse[id] = *f.FirstResponse
	}

	samples := make([]float64, 0, len(order))
	for _, id := range order {
		delta := firstResponse[id].Sub(firstAttempt[id]).Hours()
		if delta < 0 {
			continue
		}
		samples = append(samples, delta)
	}

	return SummarizeHours(samples)
}

// SummarizeHours computes mean, median and P90 with interpolated percentiles
func SummarizeHours(samples []float64) models.ResponseTimeReport {
	report := models.ResponseTimeReport{Samples: int64(len(samples))}
	if len(samples) == 0 {
		return report
	}

	sum := 0.0
	for _, v := range samples {
		sum += v
	}
	avg := sum / float64(len(samples))
	median := ContinuousPercentile(samples, 0.5)
	p90 := ContinuousPercentile(samples, 0.9)

	report.AvgHours = &avg
	report.MedianHours = &median
	report.P90Hours = &p90
	return report
}

// ContinuousPercentile interpolates linearly between the closest ranks, the
// same definition as PERCENTILE_CONT. p is clamped to [0, 1]. Returns 0 for
// an empty input.
func ContinuousPercentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	p = math.Max(0, math.Min(1, p))
	rank := p * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	fraction := rank - float64(lower)
	return sorted[lower] + fraction*(sorted[upper]-sorted[lower])
}

// ClassifyPlatform buckets a user agent into bot, mobile, desktop or unknown
func ClassifyPlatform(userAgent *string) string {
	if userAgent == nil || strings.TrimSpace(*userAgent) == "" {
		return models.UnknownDimension
	}
	ua := strings.ToLower(*userAgent)
	switch {
	case strings.Contains(ua, "bot"), strings.Contains(ua, "crawl"):
		return models.PlatformBot
	case strings.Contains(ua, "mobile"), strings.Contains(ua, "android"),
		strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		return models.PlatformMobile
	default:
		return models.PlatformDesktop
	}
}

// ResolveChannel picks the first non-empty of: application campaign,
// application channel, attempt campaign, attempt channel, application
// source, attempt source. Falls back to "desconocido".
func ResolveChannel(appDetails, logDetails []byte, appSource, logSource *string) string {
	app := decodeDetails(appDetails)
	attempt := decodeDetails(logDetails)

	candidates := []string{
		detailString(app, "campaign"),
		detailString(app, "channel"),
		detailString(attempt, "campaign"),
		detailString(attempt, "channel"),
		optionalString(appSource),
		optionalString(logSource),
	}
	for _, candidate := range candidates {
		if candidate != "" {
			return candidate
		}
	}
	return models.UnknownDimension
}

func decodeDetails(raw []byte) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var details map[string]interface{}
	if err := json.Unmarshal(raw, &details); err != nil {
		logrus.WithField("component", "ReportService").WithError(err).Debug("Ignoring malformed source details")
		return nil
	}
	return details
}

func detailString(details map[string]interface{}, key string) string {
	if details == nil {
		return ""
	}
	value, ok := details[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

func optionalString(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

type funnelAccumulator struct {
	counts models.FunnelCounts
	seen   map[uuid.UUID]bool
}

func newFunnelAccumulator() *funnelAccumulator {
	return &funnelAccumulator{seen: make(map[uuid.UUID]bool)}
}

func (a *funnelAccumulator) add(f AttemptFact) {
	a.counts.TotalLogs++
	if !f.Matched() || a.seen[*f.ApplicationID] {
		return
	}
	a.seen[*f.ApplicationID] = true
	a.counts.Matched++
	if f.FirstInterview != nil {
		a.counts.Interviews++
	}
	if f.FirstOffer != nil {
		a.counts.Offers++
	}
	if f.FirstHire != nil {
		a.counts.Hires++
	}
}

type dayKey struct {
	day       string
	dimension string
}

// BuildSourcesReport attributes every attempt to a channel and a platform
func BuildSourcesReport(facts []AttemptFact) models.SourcesReport {
	channelDaily := make(map[dayKey]*funnelAccumulator)
	channelTotals := make(map[string]*funnelAccumulator)
	platformDaily := make(map[dayKey]int64)
	platformTotals := make(map[string]int64)

	for _, f := range facts {
		day := f.CreatedAt.UTC().Format(dayLayout)
		channel := ResolveChannel(f.AppDetails, f.LogDetails, f.AppSource, f.LogSource)
		platform := ClassifyPlatform(f.UserAgent)

		key := dayKey{day: day, dimension: channel}
		if channelDaily[key] == nil {
			channelDaily[key] = newFunnelAccumulator()
		}
		channelDaily[key].add(f)

		if channelTotals[channel] == nil {
			channelTotals[channel] = newFunnelAccumulator()
		}
		channelTotals[channel].add(f)

		platformDaily[dayKey{day: day, dimension: platform}]++
		platformTotals[platform]++
	}

	report := models.SourcesReport{
		Channels: models.ChannelBreakdown{
			Breakdown: make([]models.ChannelDailyRow, 0, len(channelDaily)),
			Totals:    make([]models.ChannelTotalRow, 0, len(channelTotals)),
		},
		Platforms: models.PlatformBreakdown{
			Breakdown: make([]models.PlatformDailyRow, 0, len(platformDaily)),
			Totals:    make([]models.PlatformTotalRow, 0, len(platformTotals)),
		},
	}

	for key, acc := range channelDaily {
		report.Channels.Breakdown = append(report.Channels.Breakdown, models.ChannelDailyRow{
			Day: key.day, Channel: key.dimension, FunnelCounts: acc.counts,
		})
	}
	sort.Slice(report.Channels.Breakdown, func(i, j int) bool {
		a, b := report.Channels.Breakdown[i], report.Channels.Breakdown[j]
		if a.Day != b.Day {
			return a.Day > b.Day
		}
		return a.Channel < b.Channel
	})
	if len(report.Channels.Breakdown) > maxBreakdownRows {
		report.Channels.Breakdown = report.Channels.Breakdown[:maxBreakdownRows]
	}

	for channel, acc := range channelTotals {
		report.Channels.Totals = append(report.Channels.Totals, models.ChannelTotalRow{
			Channel: channel, FunnelCounts: acc.counts,
		})
	}
	sort.Slice(report.Channels.Totals, func(i, j int) bool {
		a, b := report.Channels.Totals[i], report.Channels.Totals[j]
		if a.TotalLogs != b.TotalLogs {
			return a.TotalLogs > b.TotalLogs
		}
		return a.Channel < b.Channel
	})

	for key, total := range platformDaily {
		report.Platforms.Breakdown = append(report.Platforms.Breakdown, models.PlatformDailyRow{
			Day: key.day, Platform: key.dimension, Total: total,
		})
	}
	sort.Slice(report.Platforms.Breakdown, func(i, j int) bool {
		a, b := report.Platforms.Breakdown[i], report.Platforms.Breakdown[j]
		if a.Day != b.Day {
			return a.Day > b.Day
		}
		return a.Platform < b.Platform
	})
	if len(report.Platforms.Breakdown) > maxBreakdownRows {
		report.Platforms.Breakdown = report.Platforms.Breakdown[:maxBreakdownRows]
	}

	for platform, total := range platformTotals {
		report.Platforms.Totals = append(report.Platforms.Totals, models.PlatformTotalRow{
			Platform: platform, Total: total,
		})
	}
	sort.Slice(report.Platforms.Totals, func(i, j int) bool {
		a, b := report.Platforms.Totals[i], report.Platforms.Totals[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return a.Platform < b.Platform
	})

	return report
}

// Invitations reports invitation delivery and acceptance for the filter
func (s *ReportService) Invitations(ctx context.Context, filter models.ReportFilter) (*models.InvitationReport, error) {
	startTime := time.Now()
	report := &models.InvitationReport{
		Events:           make([]models.InvitationDailyRow, 0),
		AcceptedTimeline: make([]models.AcceptedDailyRow, 0),
	}

	events := &whereBuilder{}
	events.dateRange("e.sent_at", filter)
	if filter.CompanyID != nil {
		events.add("u.company_id = $%d", *filter.CompanyID)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT to_char(date_trunc('day', e.sent_at AT TIME ZONE 'UTC'), 'YYYY-MM-DD') AS day,
			COUNT(*)::bigint AS sent,
			COUNT(*) FILTER (WHERE e.reused_existing)::bigint AS reused,
			COUNT(*) FILTER (WHERE e.email_delivery_success IS TRUE)::bigint AS delivered
		FROM user_invitation_events e
		JOIN users u ON u.user_id = e.user_id
		%s
		GROUP BY day
		ORDER BY day DESC
		LIMIT %d
	`, events.clause(), maxBreakdownRows), events.args...)
	if err != nil {
		s.serviceMetrics.RecordRequest(false, time.Since(startTime))
		return nil, shared.ClassifyPostgresError(err, "ReportService", "Invitations")
	}
	for rows.Next() {
		var row models.InvitationDailyRow
		if err := rows.Scan(&row.Day, &row.Sent, &row.Reused, &row.Delivered); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan invitation events: %w", err)
		}
		report.Events = append(report.Events, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	invited := &whereBuilder{}
	invited.addRaw("u.invitation_sent_at IS NOT NULL")
	invited.dateRange("u.invitation_sent_at", filter)
	if filter.CompanyID != nil {
		invited.add("u.company_id = $%d", *filter.CompanyID)
	}

	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)::bigint AS invited,
			COUNT(*) FILTER (WHERE u.invitacion_aceptada AND u.invitation_accepted_at IS NOT NULL)::bigint AS accepted,
			AVG(EXTRACT(EPOCH FROM (u.invitation_accepted_at - u.invitation_sent_at)) / 3600.0)
				FILTER (WHERE u.invitacion_aceptada AND u.invitation_accepted_at IS NOT NULL) AS avg_hours
		FROM users u
		%s
	`, invited.clause()), invited.args...).Scan(
		&report.Acceptance.InvitedUsers,
		&report.Acceptance.AcceptedUsers,
		&report.Acceptance.AvgHoursToAccept,
	)
	if err != nil {
		s.serviceMetrics.RecordRequest(false, time.Since(startTime))
		return nil, shared.ClassifyPostgresError(err, "ReportService", "Invitations")
	}

	accepted := &whereBuilder{}
	accepted.addRaw("u.invitation_accepted_at IS NOT NULL")
	accepted.dateRange("u.invitation_accepted_at", filter)
	if filter.CompanyID != nil {
		accepted.add("u.company_id = $%d", *filter.CompanyID)
	}

	timeline, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT to_char(date_trunc('day', u.invitation_accepted_at AT TIME ZONE 'UTC'), 'YYYY-MM-DD') AS day,
			COUNT(*)::bigint AS accepted
		FROM users u
		%s
		GROUP BY day
		ORDER BY day DESC
		LIMIT %d
	`, accepted.clause(), maxBreakdownRows), accepted.args...)
	if err != nil {
		s.serviceMetrics.RecordRequest(false, time.Since(startTime))
		return nil, shared.ClassifyPostgresError(err, "ReportService", "Invitations")
	}
	defer timeline.Close()

	for timeline.Next() {
		var row models.AcceptedDailyRow
		if err := timeline.Scan(&row.Day, &row.Accepted); err != nil {
			return nil, fmt.Errorf("scan accepted timeline: %w", err)
		}
		report.AcceptedTimeline = append(report.AcceptedTimeline, row)
	}

	s.serviceMetrics.RecordRequest(true, time.Since(startTime))
	return report, timeline.Err()
}
