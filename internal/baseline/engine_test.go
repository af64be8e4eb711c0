package baseline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/vncguard/internal/model"
	"github.com/user/vncguard/internal/storage"
)

func fixedEngine() *Engine {
	e := NewEngine(nil, nil, 7*24*time.Hour)
	e.baseline = model.Baseline{
		AvgDataTransferMB:    10.0,
		StdDataTransferMB:    5.0,
		AvgDurationHours:     1.0,
		StdDurationHours:     0.5,
		NormalScreenshotRate: 2.0,
		NormalClipboardRate:  5.0,
	}
	return e
}

func externalSession(start time.Time) *model.Session {
	return &model.Session{
		ID:         1,
		ClientIP:   "8.8.8.8",
		ServerIP:   "192.168.1.10",
		ClientPort: 41000,
		ServerPort: 5900,
		StartTime:  start,
		LastSeen:   start,
		Status:     model.StatusActive,
	}
}

func TestEvaluateDataTransferZScore(t *testing.T) {
	e := fixedEngine()
	now := time.Now()

	tests := []struct {
		name         string
		transferMB   float64
		wantAnomaly  bool
		wantSeverity model.Severity
	}{
		// mean 10, std 5: z = (x-10)/5
		{"just above threshold", 26.0, true, model.SeverityMedium}, // z=3.2
		{"far above threshold", 36.0, true, model.SeverityHigh},    // z=5.2
		{"below threshold", 24.0, false, ""},                       // z=2.8
		{"at mean", 10.0, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := externalSession(now.Add(-30 * time.Minute))
			sess.ClientIP = "192.168.1.50" // keep origin factors out of the picture
			sess.DataTransferredMB = tt.transferMB

			eval := e.Evaluate(sess, now)

			found := false
			for _, a := range eval.Anomalies {
				if a.Type == model.ThreatLargeTransfer {
					found = true
					assert.Equal(t, tt.wantSeverity, a.Severity)
				}
			}
			assert.Equal(t, tt.wantAnomaly, found)
			if tt.wantAnomaly {
				assert.Contains(t, eval.RiskFactors, "excessive_data_transfer")
				assert.Equal(t, 30.0, eval.RiskScore)
			} else {
				assert.Zero(t, eval.RiskScore)
			}
		})
	}
}

func TestEvaluateDurationOnlyForEndedSessions(t *testing.T) {
	e := fixedEngine()
	now := time.Now()

	// 3h session: z = (3-1)/0.5 = 4, past the |z|>2 rule.
	sess := externalSession(now.Add(-3 * time.Hour))
	sess.ClientIP = "192.168.1.50"

	eval := e.Evaluate(sess, now)
	for _, a := range eval.Anomalies {
		assert.NotEqual(t, "unusual_session_duration", a.Type,
			"open sessions must not trip the duration rule")
	}

	end := now
	sess.EndTime = &end
	sess.Status = model.StatusTerminated

	eval = e.Evaluate(sess, now)
	found := false
	for _, a := range eval.Anomalies {
		if a.Type == "unusual_session_duration" {
			found = true
			assert.Equal(t, model.SeverityMedium, a.Severity)
		}
	}
	require.True(t, found)
	assert.Equal(t, 10.0, eval.RiskScore)
}

func TestEvaluateScreenshotRate(t *testing.T) {
	e := fixedEngine()
	now := time.Now()

	tests := []struct {
		name         string
		screenshots  int64
		wantAnomaly  bool
		wantSeverity model.Severity
	}{
		// 1 minute session, normal rate 2/min: threshold 20/min, high 40/min.
		{"above threshold", 25, true, model.SeverityMedium},
		{"above high threshold", 45, true, model.SeverityHigh},
		{"below threshold", 15, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := externalSession(now.Add(-1 * time.Minute))
			sess.ClientIP = "192.168.1.50"
			sess.ScreenshotCount = tt.screenshots

			eval := e.Evaluate(sess, now)

			found := false
			for _, a := range eval.Anomalies {
				if a.Type == model.ThreatScreenshotSpam {
					found = true
					assert.Equal(t, tt.wantSeverity, a.Severity)
				}
			}
			assert.Equal(t, tt.wantAnomaly, found)
		})
	}
}

func TestEvaluateOriginFactors(t *testing.T) {
	e := fixedEngine()
	now := time.Now()

	// The external-client points already live in the session's initial
	// risk score; evaluation labels the factor without adding them again.
	sess := externalSession(now.Add(-10 * time.Minute))
	sess.RiskScore = 15

	eval := e.Evaluate(sess, now)
	assert.Contains(t, eval.RiskFactors, "external_client")
	assert.Equal(t, 15.0, eval.RiskScore)

	internal := externalSession(now.Add(-10 * time.Minute))
	internal.ClientIP = "10.0.0.5"
	eval = e.Evaluate(internal, now)
	assert.NotContains(t, eval.RiskFactors, "external_client")
	assert.Zero(t, eval.RiskScore)
}

func TestEvaluateAccumulatesCurrentRisk(t *testing.T) {
	e := fixedEngine()
	now := time.Now()

	// Clipboard rule alone is worth 20 points; a session already carrying
	// risk 60 must land at 80, not 20.
	sess := externalSession(now.Add(-1 * time.Minute))
	sess.ClientIP = "192.168.1.50"
	sess.RiskScore = 60
	sess.ClipboardOperations = 30 // 30/min against the 25/min threshold

	eval := e.Evaluate(sess, now)
	assert.Contains(t, eval.RiskFactors, "clipboard_abuse")
	assert.Equal(t, 80.0, eval.RiskScore)

	// Persisting the score and re-evaluating keeps ratcheting upward.
	sess.RiskScore = eval.RiskScore
	eval = e.Evaluate(sess, now)
	assert.Equal(t, 100.0, eval.RiskScore)
}

func TestEvaluateRiskScoreClamped(t *testing.T) {
	e := fixedEngine()
	now := time.Now()

	// Everything at once on top of an external client's initial risk:
	// 15 carried plus 30+25+20 in factor points.
	sess := externalSession(now.Add(-1 * time.Minute))
	sess.RiskScore = 15
	sess.DataTransferredMB = 100
	sess.ScreenshotCount = 50
	sess.ClipboardOperations = 60
	end := now
	sess.EndTime = &end

	eval := e.Evaluate(sess, now)
	assert.LessOrEqual(t, eval.RiskScore, 100.0)
	assert.GreaterOrEqual(t, eval.RiskScore, 85.0)
	assert.NotEmpty(t, eval.Recommendations)
}

func TestEvaluateRecommendationsPerFactor(t *testing.T) {
	e := fixedEngine()
	now := time.Now()

	sess := externalSession(now.Add(-30 * time.Minute))
	sess.ClientIP = "192.168.1.50"
	sess.DataTransferredMB = 40

	eval := e.Evaluate(sess, now)
	require.Equal(t, []string{"excessive_data_transfer"}, eval.RiskFactors)
	assert.Equal(t, []string{
		"implement data loss prevention (DLP) policies",
		"monitor and limit file transfer sizes",
	}, eval.Recommendations)

	quiet := externalSession(now.Add(-30 * time.Minute))
	quiet.ClientIP = "192.168.1.50"
	eval = e.Evaluate(quiet, now)
	assert.Empty(t, eval.Recommendations)

	external := externalSession(now.Add(-30 * time.Minute))
	eval = e.Evaluate(external, now)
	assert.Contains(t, eval.Recommendations, "require VPN access for external clients")
}

func TestMaxSeverity(t *testing.T) {
	eval := Evaluation{Anomalies: []Anomaly{
		{Severity: model.SeverityMedium},
		{Severity: model.SeverityHigh},
		{Severity: model.SeverityLow},
	}}
	assert.Equal(t, model.SeverityHigh, eval.MaxSeverity())

	empty := Evaluation{}
	assert.Equal(t, model.SeverityLow, empty.MaxSeverity())
}

func TestRecomputeAdoptsSmallHistory(t *testing.T) {
	now := time.Now()

	endedSession := func(start time.Time, transferMB float64) *model.Session {
		end := start.Add(30 * time.Minute)
		return &model.Session{
			ClientIP:          "192.168.1.50",
			ServerIP:          "192.168.1.10",
			ClientPort:        41000,
			ServerPort:        5900,
			StartTime:         start,
			EndTime:           &end,
			LastSeen:          end,
			Status:            model.StatusTerminated,
			DataTransferredMB: transferMB,
		}
	}

	t.Run("two samples adopt mean and spread", func(t *testing.T) {
		db, err := storage.Initialize(t.TempDir())
		require.NoError(t, err)
		defer db.Close()
		store := storage.NewSessionStorage(db)

		require.NoError(t, store.Insert(endedSession(now.Add(-2*time.Hour), 20)))
		require.NoError(t, store.Insert(endedSession(now.Add(-1*time.Hour), 40)))

		e := NewEngine(store, nil, 7*24*time.Hour)
		require.NoError(t, e.Recompute(now))

		b := e.Baseline()
		assert.Equal(t, 2, b.Samples)
		assert.InDelta(t, 30.0, b.AvgDataTransferMB, 1e-9)
		assert.InDelta(t, 14.142, b.StdDataTransferMB, 0.01)
	})

	t.Run("single sample adopts mean but keeps fallback spread", func(t *testing.T) {
		db, err := storage.Initialize(t.TempDir())
		require.NoError(t, err)
		defer db.Close()
		store := storage.NewSessionStorage(db)

		require.NoError(t, store.Insert(endedSession(now.Add(-1*time.Hour), 20)))

		e := NewEngine(store, nil, 7*24*time.Hour)
		require.NoError(t, e.Recompute(now))

		def := model.DefaultBaseline()
		b := e.Baseline()
		assert.Equal(t, 1, b.Samples)
		assert.InDelta(t, 20.0, b.AvgDataTransferMB, 1e-9)
		assert.Equal(t, def.StdDataTransferMB, b.StdDataTransferMB)
		assert.Equal(t, def.StdDurationHours, b.StdDurationHours)
	})
}

func TestFallbackStd(t *testing.T) {
	assert.Equal(t, 5.0, fallbackStd(0, 5.0))
	assert.Equal(t, 2.5, fallbackStd(2.5, 5.0))
}
