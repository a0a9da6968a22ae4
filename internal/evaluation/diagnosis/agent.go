// Package diagnosis aggregates a window of evaluation scores into
// ranked issues and concrete corrective actions.
package diagnosis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/raglens/backend/internal/metrics"
	"github.com/raglens/backend/internal/provider"
	"github.com/raglens/backend/internal/storage/models"
	"github.com/raglens/backend/pkg/llmjson"
	"github.com/raglens/backend/pkg/logger"
)

// Score thresholds on the engine's 0-1 scale.
const (
	lowScoreThreshold    = 0.7
	severeScoreThreshold = 0.6
)

const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

const (
	CategoryRetrieval    = "retrieval"
	CategoryGeneration   = "generation"
	CategoryKnowledgeGap = "knowledge_gap"
	CategoryPrompt       = "prompt"
	CategoryLatency      = "latency"
)

const (
	ActionAutoSafe      = "auto_safe"
	ActionNeedsApproval = "needs_approval"
	ActionManual        = "manual"
)

var validCategories = map[string]bool{
	CategoryRetrieval:    true,
	CategoryGeneration:   true,
	CategoryKnowledgeGap: true,
	CategoryPrompt:       true,
	CategoryLatency:      true,
}

var validSeverities = map[string]bool{
	SeverityHigh:   true,
	SeverityMedium: true,
	SeverityLow:    true,
}

type Issue struct {
	ID             string   `json:"id"`
	Category       string   `json:"category"`
	Severity       string   `json:"severity"`
	Description    string   `json:"description"`
	AffectedCount  int      `json:"affected_count"`
	ExampleQueries []string `json:"example_queries"`
	Pattern        string   `json:"pattern,omitempty"`
	SuggestedFix   string   `json:"suggested_fix,omitempty"`
}

type ParamChange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type Action struct {
	ID                  string                 `json:"id"`
	IssueID             string                 `json:"issue_id"`
	ActionType          string                 `json:"action_type"`
	Description         string                 `json:"description"`
	ParameterChanges    map[string]ParamChange `json:"parameter_changes,omitempty"`
	ExpectedImprovement string                 `json:"expected_improvement,omitempty"`
}

type Report struct {
	GeneratedAt      time.Time      `json:"generated_at"`
	PeriodStart      time.Time      `json:"period_start"`
	PeriodEnd        time.Time      `json:"period_end"`
	TotalEvaluations int            `json:"total_evaluations"`
	AvgScore         *float64       `json:"avg_score"`
	Issues           []Issue        `json:"issues"`
	Actions          []Action       `json:"actions"`
	Summary          string         `json:"summary"`
	Distribution     map[string]int `json:"score_distribution"`
}

type Alert struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type Summary struct {
	PeriodStart      time.Time      `json:"period_start"`
	PeriodEnd        time.Time      `json:"period_end"`
	TotalEvaluations int            `json:"total_evaluations"`
	AvgScore         *float64       `json:"avg_score"`
	Distribution     map[string]int `json:"score_distribution"`
	Alerts           []Alert        `json:"alerts"`
	LowScoringCount  int            `json:"low_scoring_count"`
}

// Store is the evaluation history the agent aggregates over.
type Store interface {
	ListEvaluationsSince(since time.Time) ([]models.EvaluationDetail, error)
}

type Agent struct {
	store          Store
	gateway        provider.Gateway
	windowDays     int
	minEvaluations int
	log            *zap.Logger
}

func NewAgent(store Store, gateway provider.Gateway, windowDays, minEvaluations int) *Agent {
	if windowDays <= 0 {
		windowDays = 7
	}
	if minEvaluations <= 0 {
		minEvaluations = 10
	}
	return &Agent{
		store:          store,
		gateway:        gateway,
		windowDays:     windowDays,
		minEvaluations: minEvaluations,
		log:            logger.Named("diagnosis"),
	}
}

// GenerateReport aggregates the window and runs one model call for
// qualitative synthesis. Zero arguments use the configured defaults.
func (a *Agent) GenerateReport(ctx context.Context, days, minEvaluations int) (*Report, error) {
	if days <= 0 {
		days = a.windowDays
	}
	if minEvaluations <= 0 {
		minEvaluations = a.minEvaluations
	}

	periodEnd := time.Now().UTC()
	periodStart := periodEnd.AddDate(0, 0, -days)

	m, err := a.gatherMetrics(periodStart)
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	report := &Report{
		GeneratedAt:      time.Now().UTC(),
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
		TotalEvaluations: m.total,
		AvgScore:         m.avgScore,
		Issues:           []Issue{},
		Actions:          []Action{},
		Distribution:     m.distribution,
	}

	if m.total < minEvaluations {
		report.Summary = fmt.Sprintf("Insufficient data: Only %d evaluations found. Need at least %d.",
			m.total, minEvaluations)
		return report, nil
	}

	analysis, err := a.analyzeWithLLM(ctx, m, periodStart, periodEnd)
	if err != nil {
		a.log.Error("Model analysis failed", zap.Error(err))
		report.Summary = fmt.Sprintf("Analysis failed: %v", err)
		metrics.DiagnosisReportsGenerated.Inc()
		return report, nil
	}

	report.Issues = a.buildIssues(analysis, m)
	report.Actions = buildActions(report.Issues)
	report.Summary = analysis.Summary
	if report.Summary == "" {
		report.Summary = "Analysis complete."
	}

	metrics.DiagnosisReportsGenerated.Inc()

	return report, nil
}

// QuickSummary flags obvious problems without a model call, for
// dashboards and monitoring.
func (a *Agent) QuickSummary(days int) (*Summary, error) {
	if days <= 0 {
		days = a.windowDays
	}

	periodEnd := time.Now().UTC()
	periodStart := periodEnd.AddDate(0, 0, -days)

	m, err := a.gatherMetrics(periodStart)
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	alerts := []Alert{}

	if m.avgScore != nil && *m.avgScore < lowScoreThreshold {
		severity := SeverityMedium
		if *m.avgScore < severeScoreThreshold {
			severity = SeverityHigh
		}
		alerts = append(alerts, Alert{
			Type:     "low_avg_score",
			Severity: severity,
			Message:  fmt.Sprintf("Average score is %.2f", *m.avgScore),
		})
	}

	for _, cat := range sortedKeys(m.categoryBreakdown) {
		stat := m.categoryBreakdown[cat]
		if stat.avg() < severeScoreThreshold && stat.count >= 5 {
			alerts = append(alerts, Alert{
				Type:     "low_category_score",
				Severity: SeverityMedium,
				Message:  fmt.Sprintf("Category %q has low avg score: %.2f", cat, stat.avg()),
			})
		}
	}

	return &Summary{
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
		TotalEvaluations: m.total,
		AvgScore:         m.avgScore,
		Distribution:     m.distribution,
		Alerts:           alerts,
		LowScoringCount:  len(m.lowScoring),
	}, nil
}

type groupStat struct {
	sum   float64
	count int
}

func (g groupStat) avg() float64 {
	if g.count == 0 {
		return 0
	}
	return g.sum / float64(g.count)
}

type lowQuery struct {
	query    string
	score    float64
	category string
	intent   string
}

type windowMetrics struct {
	total             int
	avgScore          *float64
	categoryBreakdown map[string]groupStat
	intentBreakdown   map[string]groupStat
	lowScoring        []lowQuery
	distribution      map[string]int
}

var bucketOrder = []string{"<0.4", "0.4-0.6", "0.6-0.8", "0.8-1.0"}

func bucketFor(score float64) string {
	switch {
	case score < 0.4:
		return "<0.4"
	case score < 0.6:
		return "0.4-0.6"
	case score < 0.8:
		return "0.6-0.8"
	default:
		return "0.8-1.0"
	}
}

func (a *Agent) gatherMetrics(since time.Time) (*windowMetrics, error) {
	details, err := a.store.ListEvaluationsSince(since)
	if err != nil {
		return nil, err
	}

	m := &windowMetrics{
		categoryBreakdown: make(map[string]groupStat),
		intentBreakdown:   make(map[string]groupStat),
		distribution:      make(map[string]int),
	}
	for _, b := range bucketOrder {
		m.distribution[b] = 0
	}

	m.total = len(details)

	var sum float64
	var scored int

	for _, d := range details {
		if d.OverallScore == nil {
			continue
		}
		score := *d.OverallScore
		sum += score
		scored++

		category := d.FilterCategory
		if category == "" {
			category = "unknown"
		}
		intent := d.FilterIntent
		if intent == "" {
			intent = "unknown"
		}

		cs := m.categoryBreakdown[category]
		cs.sum += score
		cs.count++
		m.categoryBreakdown[category] = cs

		is := m.intentBreakdown[intent]
		is.sum += score
		is.count++
		m.intentBreakdown[intent] = is

		m.distribution[bucketFor(score)]++

		if score < lowScoreThreshold && len(m.lowScoring) < 10 {
			query := d.QueryText
			if len(query) > 100 {
				query = query[:100]
			}
			m.lowScoring = append(m.lowScoring, lowQuery{
				query:    query,
				score:    score,
				category: category,
				intent:   intent,
			})
		}
	}

	if scored > 0 {
		avg := sum / float64(scored)
		m.avgScore = &avg
	}

	return m, nil
}

const diagnosisPromptTemplate = `You are a RAG system diagnostician. Analyze these evaluation metrics and identify issues.

EVALUATION SUMMARY:
- Total evaluations: %d
- Average score: %.2f (0-1 scale)
- Period: %s to %s

SCORE BREAKDOWN BY CATEGORY:
%s

SCORE BREAKDOWN BY INTENT:
%s

LOW-SCORING QUERIES (score < %.1f):
%s

SCORE DISTRIBUTION:
%s

Based on this data, identify:
1. Key issues affecting performance
2. Patterns in low-scoring queries
3. Categories/intents that need attention
4. Specific actionable recommendations

Respond in JSON format:
{
    "issues": [
        {
            "category": "retrieval|generation|knowledge_gap|prompt|latency",
            "severity": "high|medium|low",
            "description": "Description of the issue",
            "affected_queries_pattern": "Pattern description",
            "suggested_fix": "Specific recommendation"
        }
    ],
    "summary": "Overall assessment in 2-3 sentences"
}`

type llmIssue struct {
	Category               string `json:"category"`
	Severity               string `json:"severity"`
	Description            string `json:"description"`
	AffectedQueriesPattern string `json:"affected_queries_pattern"`
	SuggestedFix           string `json:"suggested_fix"`
}

type llmAnalysis struct {
	Issues  []llmIssue `json:"issues"`
	Summary string     `json:"summary"`
}

func (a *Agent) analyzeWithLLM(ctx context.Context, m *windowMetrics, start, end time.Time) (*llmAnalysis, error) {
	var avg float64
	if m.avgScore != nil {
		avg = *m.avgScore
	}

	prompt := fmt.Sprintf(diagnosisPromptTemplate,
		m.total,
		avg,
		start.Format("2006-01-02"),
		end.Format("2006-01-02"),
		formatBreakdown(m.categoryBreakdown, len(m.categoryBreakdown)),
		formatBreakdown(m.intentBreakdown, 10),
		lowScoreThreshold,
		formatLowScoring(m.lowScoring),
		formatDistribution(m.distribution),
	)

	resp, err := a.gateway.Complete(ctx, provider.CompletionRequest{
		UserPrompt:  prompt,
		Temperature: 0.1,
		MaxTokens:   1000,
	})
	if err != nil {
		return nil, fmt.Errorf("diagnosis call failed: %w", err)
	}

	var analysis llmAnalysis
	if err := llmjson.Unmarshal(resp.Text, &analysis); err != nil {
		return nil, fmt.Errorf("diagnosis output invalid: %w", err)
	}

	return &analysis, nil
}

func formatBreakdown(breakdown map[string]groupStat, limit int) string {
	keys := sortedKeys(breakdown)
	if len(keys) > limit {
		keys = keys[:limit]
	}

	var lines []string
	for _, key := range keys {
		stat := breakdown[key]
		lines = append(lines, fmt.Sprintf("  %s: avg=%.2f, count=%d", key, stat.avg(), stat.count))
	}
	if len(lines) == 0 {
		return "  No data"
	}
	return strings.Join(lines, "\n")
}

func formatLowScoring(low []lowQuery) string {
	var lines []string
	for i, q := range low {
		if i >= 5 {
			break
		}
		query := q.query
		if len(query) > 50 {
			query = query[:50]
		}
		lines = append(lines, fmt.Sprintf("  - %q (score: %.2f, %s/%s)", query, q.score, q.category, q.intent))
	}
	if len(lines) == 0 {
		return "  None"
	}
	return strings.Join(lines, "\n")
}

func formatDistribution(dist map[string]int) string {
	var lines []string
	for _, bucket := range bucketOrder {
		lines = append(lines, fmt.Sprintf("  %s: %d evaluations", bucket, dist[bucket]))
	}
	return strings.Join(lines, "\n")
}

func sortedKeys(m map[string]groupStat) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (a *Agent) buildIssues(analysis *llmAnalysis, m *windowMetrics) []Issue {
	issues := []Issue{}

	examples := make([]string, 0, 3)
	for i, q := range m.lowScoring {
		if i >= 3 {
			break
		}
		examples = append(examples, q.query)
	}

	for i, raw := range analysis.Issues {
		category := raw.Category
		if category == "" {
			category = CategoryGeneration
		}
		severity := raw.Severity
		if severity == "" {
			severity = SeverityMedium
		}

		if !validCategories[category] || !validSeverities[severity] {
			a.log.Warn("Skipping malformed issue",
				zap.String("category", raw.Category),
				zap.String("severity", raw.Severity),
			)
			continue
		}

		description := raw.Description
		if description == "" {
			description = "Unknown issue"
		}

		issues = append(issues, Issue{
			ID:             fmt.Sprintf("issue_%d", i+1),
			Category:       category,
			Severity:       severity,
			Description:    description,
			AffectedCount:  len(m.lowScoring),
			ExampleQueries: examples,
			Pattern:        raw.AffectedQueriesPattern,
			SuggestedFix:   raw.SuggestedFix,
		})
	}

	return issues
}

func buildActions(issues []Issue) []Action {
	actions := []Action{}

	for _, issue := range issues {
		switch issue.Category {
		case CategoryRetrieval:
			actions = append(actions, Action{
				ID:                  fmt.Sprintf("action_%s_1", issue.ID),
				IssueID:             issue.ID,
				ActionType:          ActionAutoSafe,
				Description:         "Increase top_k retrieval parameter",
				ParameterChanges:    map[string]ParamChange{"top_k": {From: 5, To: 7}},
				ExpectedImprovement: "May improve recall by retrieving more relevant documents",
			})

		case CategoryGeneration:
			actions = append(actions, Action{
				ID:                  fmt.Sprintf("action_%s_1", issue.ID),
				IssueID:             issue.ID,
				ActionType:          ActionNeedsApproval,
				Description:         "Update system prompt for better response quality",
				ExpectedImprovement: "May improve response accuracy and tone",
			})

		case CategoryKnowledgeGap:
			pattern := issue.Pattern
			if pattern == "" {
				pattern = "identified gap"
			}
			actions = append(actions, Action{
				ID:                  fmt.Sprintf("action_%s_1", issue.ID),
				IssueID:             issue.ID,
				ActionType:          ActionManual,
				Description:         fmt.Sprintf("Add more knowledge-base content for: %s", pattern),
				ExpectedImprovement: "Will enable answers for currently unsupported queries",
			})

		case CategoryLatency:
			actions = append(actions, Action{
				ID:                  fmt.Sprintf("action_%s_1", issue.ID),
				IssueID:             issue.ID,
				ActionType:          ActionAutoSafe,
				Description:         "Reduce top_k to improve latency",
				ParameterChanges:    map[string]ParamChange{"top_k": {From: 5, To: 3}},
				ExpectedImprovement: "May reduce response time by 20-30%",
			})
		}

		if issue.SuggestedFix != "" {
			actions = append(actions, Action{
				ID:                  fmt.Sprintf("action_%s_llm", issue.ID),
				IssueID:             issue.ID,
				ActionType:          ActionNeedsApproval,
				Description:         issue.SuggestedFix,
				ExpectedImprovement: "Model-suggested improvement",
			})
		}
	}

	return actions
}
