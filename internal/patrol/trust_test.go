package patrol

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"vigil/internal/platform/config"
)

type TrustSuite struct {
	suite.Suite
	cfg config.TrustConfig
}

func TestTrustSuite(t *testing.T) {
	suite.Run(t, new(TrustSuite))
}

func (s *TrustSuite) SetupTest() {
	s.cfg = config.TrustConfig{
		CompletionWeight:    0.40,
		MotionWeight:        0.20,
		BatteryWeight:       0.15,
		TimingWeight:        0.25,
		CompletionThreshold: 0.80,
		SuspiciousFloor:     40,
	}
}

// execution returns an in-progress execution started at a fixed instant with
// marks derived from mark specs: (minutes after start, battery, motion).
func (s *TrustSuite) execution(total int, specs ...[3]float64) (*Execution, *Template, []Mark) {
	started := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)
	tmpl := &Template{ID: uuid.New()}
	for i := 0; i < total; i++ {
		tmpl.Checkpoints = append(tmpl.Checkpoints, Checkpoint{
			Code:           string(rune('A' + i)),
			ExpectedOffset: time.Duration(i*10) * time.Minute,
		})
	}
	exec := &Execution{
		ID:              uuid.New(),
		TemplateID:      tmpl.ID,
		State:           StateInProgress,
		CheckpointTotal: total,
		MarksRecorded:   len(specs),
		StartedAt:       &started,
	}
	var marks []Mark
	for i, spec := range specs {
		marks = append(marks, Mark{
			CheckpointCode: tmpl.Checkpoints[i].Code,
			Timestamp:      started.Add(time.Duration(spec[0]) * time.Minute),
			BatteryLevel:   spec[1],
			MotionScore:    spec[2],
		})
	}
	return exec, tmpl, marks
}

func (s *TrustSuite) TestDiligentPatrolScoresHigh() {
	exec, tmpl, marks := s.execution(5,
		[3]float64{0, 90, 0.52},
		[3]float64{11, 88, 0.61},
		[3]float64{21, 87, 0.44},
		[3]float64{30, 85, 0.58},
		[3]float64{41, 84, 0.49},
	)
	score, b := TrustScore(s.cfg, exec, tmpl, marks)
	s.InDelta(1.0, b.Completion, 0.001)
	s.InDelta(1.0, b.Battery, 0.001)
	s.InDelta(1.0, b.Timing, 0.001)
	s.Greater(b.Motion, 0.9)
	s.Greater(score, 95.0)
	s.Equal(StateCompleted, FinalState(s.cfg, exec.CompletionRatio(), score))
}

func (s *TrustSuite) TestFlatMotionPenalized() {
	exec, tmpl, marks := s.execution(3,
		[3]float64{0, 90, 0.50},
		[3]float64{10, 89, 0.50},
		[3]float64{20, 88, 0.50},
	)
	_, b := TrustScore(s.cfg, exec, tmpl, marks)
	s.InDelta(0.0, b.Motion, 0.001, "identical samples are suspiciously flat")
}

func (s *TrustSuite) TestErraticMotionPenalized() {
	exec, tmpl, marks := s.execution(3,
		[3]float64{0, 90, 0.05},
		[3]float64{10, 89, 0.95},
		[3]float64{20, 88, 0.02},
	)
	_, b := TrustScore(s.cfg, exec, tmpl, marks)
	s.Less(b.Motion, 1.0)
}

func (s *TrustSuite) TestBatteryJumpPenalized() {
	exec, tmpl, marks := s.execution(3,
		[3]float64{0, 40, 0.5},
		[3]float64{10, 95, 0.6}, // +55 points mid-patrol
		[3]float64{20, 93, 0.4},
	)
	_, b := TrustScore(s.cfg, exec, tmpl, marks)
	s.InDelta(0.0, b.Battery, 0.001)
}

func (s *TrustSuite) TestBatteryDischargeIsPlausible() {
	exec, tmpl, marks := s.execution(3,
		[3]float64{0, 90, 0.5},
		[3]float64{10, 80, 0.6},
		[3]float64{20, 72, 0.4},
	)
	_, b := TrustScore(s.cfg, exec, tmpl, marks)
	s.InDelta(1.0, b.Battery, 0.001)
}

func (s *TrustSuite) TestLateMarksErodeTimingAdherence() {
	exec, tmpl, marks := s.execution(2,
		[3]float64{0, 90, 0.5},
		[3]float64{70, 88, 0.6}, // expected at minute 10, scanned at 70
	)
	_, b := TrustScore(s.cfg, exec, tmpl, marks)
	s.InDelta(0.5, b.Timing, 0.01, "one on-time mark, one past the failure window")
}

func (s *TrustSuite) TestPartialBelowThreshold() {
	exec, tmpl, marks := s.execution(5,
		[3]float64{0, 90, 0.52},
		[3]float64{11, 88, 0.61},
		[3]float64{21, 87, 0.44},
	)
	score, _ := TrustScore(s.cfg, exec, tmpl, marks)
	s.InDelta(0.6, exec.CompletionRatio(), 0.001)
	s.Equal(StatePartial, FinalState(s.cfg, exec.CompletionRatio(), score))
}

func (s *TrustSuite) TestSuspiciousFloorOverridesRatio() {
	s.Equal(StateSuspicious, FinalState(s.cfg, 1.0, 39.9))
	s.Equal(StateCompleted, FinalState(s.cfg, 1.0, 40.0))
}

func (s *TrustSuite) TestWeightsNormalized() {
	cfg := s.cfg
	cfg.CompletionWeight = 4
	cfg.MotionWeight = 2
	cfg.BatteryWeight = 1.5
	cfg.TimingWeight = 2.5
	exec, tmpl, marks := s.execution(5,
		[3]float64{0, 90, 0.52},
		[3]float64{11, 88, 0.61},
		[3]float64{21, 87, 0.44},
		[3]float64{30, 85, 0.58},
		[3]float64{41, 84, 0.49},
	)
	score, _ := TrustScore(cfg, exec, tmpl, marks)
	s.LessOrEqual(score, 100.0)
}

func (s *TrustSuite) TestCircularDeviationWraps() {
	s.Equal(20*time.Minute, CircularDeviation(23*time.Hour+50*time.Minute, 10*time.Minute))
	s.Equal(20*time.Minute, CircularDeviation(10*time.Minute, 23*time.Hour+50*time.Minute))
	s.Equal(12*time.Hour, CircularDeviation(0, 12*time.Hour))
	s.Equal(time.Duration(0), CircularDeviation(3*time.Hour, 3*time.Hour))
}
