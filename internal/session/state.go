package session

import (
	"context"

	"github.com/verte-zerg/landolt/internal/model"
	"github.com/verte-zerg/landolt/internal/voice"
)

// Stage is the position in the test flow. It alone decides which transitions are legal.
type Stage int

const (
	StageInitialPrep Stage = iota
	StageTesting
	StageEvaluating
	StageTransition
	StageCompleted
)

func (s Stage) String() string {
	switch s {
	case StageInitialPrep:
		return "initial-prep"
	case StageTesting:
		return "testing"
	case StageEvaluating:
		return "evaluating"
	case StageTransition:
		return "transition"
	case StageCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// LinkStatus is the state of the voice channel.
type LinkStatus int

const (
	LinkIdle LinkStatus = iota
	LinkConnecting
	LinkAuthenticated
	LinkReady
	LinkReconnecting
	LinkLost
)

func (l LinkStatus) String() string {
	switch l {
	case LinkIdle:
		return "idle"
	case LinkConnecting:
		return "connecting"
	case LinkAuthenticated:
		return "authenticated"
	case LinkReady:
		return "ready"
	case LinkReconnecting:
		return "reconnecting"
	case LinkLost:
		return "lost"
	default:
		return "unknown"
	}
}

// Snapshot is a copy of the session state handed to the host UI.
// Version increases with every mutation; hosts drop older snapshots.
type Snapshot struct {
	Version       uint64
	Active        bool
	Stage         Stage
	LevelIndex    int
	Level         model.AcuityLevel
	Row           model.TestRow
	Responses     []model.Outcome
	Current       int
	TimeRemaining int
	Paused        bool
	ForceFail     bool
	History       []model.AttemptRecord
	Final         *model.AcuityLevel
	Link          LinkStatus
	Status        string
	Blocked       bool
	LastHeard     string
	SizePixels    float64
}

// Presenter receives state changes. Calls happen outside the session lock.
type Presenter interface {
	Present(Snapshot)
	Finished(model.Report)
}

type noopPresenter struct{}

func (noopPresenter) Present(Snapshot)      {}
func (noopPresenter) Finished(model.Report) {}

// ReportRecorder persists completed reports.
type ReportRecorder interface {
	SaveReport(ctx context.Context, r model.Report) error
}

// SpeechTranscriber turns the subject's speech into final transcripts.
type SpeechTranscriber interface {
	Start(ctx context.Context, emit func(text string)) error
	Stop()
}

// RowGenerator draws a new row of orientations.
type RowGenerator interface {
	Row(length int) model.TestRow
}

// VoiceLink is an open voice channel.
type VoiceLink interface {
	Send(voice.Outbound) error
	Close() error
}

// VoiceDialFunc opens a voice channel delivering traffic to h.
type VoiceDialFunc func(ctx context.Context, h voice.Handler) (VoiceLink, error)

// DialerFunc adapts a voice.Dialer.
func DialerFunc(d *voice.Dialer) VoiceDialFunc {
	return func(ctx context.Context, h voice.Handler) (VoiceLink, error) {
		conn, err := d.Dial(ctx, h)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// state is the authoritative session state. Only Session methods holding mu touch it.
type state struct {
	active         bool
	stage          Stage
	levelIndex     int
	row            model.TestRow
	responses      []model.Outcome
	current        int
	remaining      int
	paused         bool
	forceFail      bool
	history        []model.AttemptRecord
	final          *model.AcuityLevel
	prepStarted    bool
	status         string
	blocked        bool
	lastHeard      string
	link           LinkStatus
	reconnectTries int
}

func (st *state) resetFlow(startLevel int) {
	st.stage = StageInitialPrep
	st.levelIndex = startLevel
	st.row = nil
	st.responses = nil
	st.current = 0
	st.remaining = 0
	st.paused = false
	st.forceFail = false
	st.history = nil
	st.final = nil
	st.prepStarted = false
	st.lastHeard = ""
}
