package booking

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pconnect/portal/internal/models"
)

// Step is a wizard position.
type Step int

const (
	StepSelectBuilding Step = iota + 1
	StepSelectType
	StepSelectDate
	StepSelectTime
)

// ErrIncomplete means the wizard has not produced a finished draft yet.
var ErrIncomplete = errors.New("booking details incomplete")

const dateWindowMessage = "Bookings can only be made 1 to 2 days in advance"

// BuildingLister loads the buildings offered on the first step.
type BuildingLister interface {
	List(ctx context.Context) ([]models.Building, error)
}

// Result is the outcome of a successful Advance.
type Result struct {
	Step Step `json:"step"`

	// Done is set on the terminal transition; Draft is then complete and the
	// user continues to the availability page.
	Done  bool  `json:"done"`
	Draft Draft `json:"draft"`
}

// WizardState is a read-only view of a wizard.
type WizardState struct {
	Step             Step              `json:"step"`
	Draft            Draft             `json:"draft"`
	Completed        bool              `json:"completed"`
	Buildings        []models.Building `json:"buildings"`
	BuildingsLoading bool              `json:"buildings_loading"`
	BuildingsError   string            `json:"buildings_error,omitempty"`
}

// Wizard walks a user through building, type, date and (for meeting rooms)
// time selection.
type Wizard struct {
	buildings BuildingLister
	clock     Clock
	logger    *zap.Logger

	mu               sync.Mutex
	step             Step
	draft            Draft
	completed        bool
	buildingList     []models.Building
	buildingsLoading bool
	buildingsErr     string
}

// NewWizard creates a wizard positioned on the first step. It does not start
// the building fetch; call Enter for that.
func NewWizard(buildings BuildingLister, clock Clock, logger *zap.Logger) *Wizard {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Wizard{
		buildings: buildings,
		clock:     clock,
		logger:    logger.With(zap.String("component", "wizard")),
		step:      StepSelectBuilding,
	}
}

// State returns a snapshot of the wizard.
func (w *Wizard) State() WizardState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WizardState{
		Step:             w.step,
		Draft:            w.draft,
		Completed:        w.completed,
		Buildings:        append([]models.Building(nil), w.buildingList...),
		BuildingsLoading: w.buildingsLoading,
		BuildingsError:   w.buildingsErr,
	}
}

// Step returns the current step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Draft returns the current draft.
func (w *Wizard) Draft() Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

// Reset discards the draft and returns to the first step.
func (w *Wizard) Reset() {
	w.mu.Lock()
	w.step = StepSelectBuilding
	w.draft = Draft{}
	w.completed = false
	w.mu.Unlock()
	w.Enter()
}

// Enter runs the first-step side effect: when no buildings are loaded and
// no earlier load failed, fetch them in the background.
func (w *Wizard) Enter() {
	w.mu.Lock()
	start := w.step == StepSelectBuilding &&
		len(w.buildingList) == 0 &&
		w.buildingsErr == "" &&
		!w.buildingsLoading &&
		w.buildings != nil
	if start {
		w.buildingsLoading = true
	}
	w.mu.Unlock()

	if start {
		go w.loadBuildings()
	}
}

// RetryBuildings clears a failed building load and fetches again.
func (w *Wizard) RetryBuildings() {
	w.mu.Lock()
	w.buildingsErr = ""
	w.mu.Unlock()
	w.Enter()
}

func (w *Wizard) loadBuildings() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	list, err := w.buildings.List(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.buildingsLoading = false
	if err != nil {
		w.buildingsErr = err.Error()
		w.logger.Warn("Failed to load buildings", zap.Error(err))
		return
	}
	w.buildingList = list
}

// SelectBuilding sets the building.
func (w *Wizard) SelectBuilding(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft.BuildingID = id
	w.draft.BuildingName = ""
	for _, b := range w.buildingList {
		if b.ID == id {
			w.draft.BuildingName = b.Name
			break
		}
	}
	w.completed = false
}

// SelectFloor sets the optional floor hint.
func (w *Wizard) SelectFloor(floor string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft.Floor = floor
}

// SelectType sets the space type.
func (w *Wizard) SelectType(t models.SpaceType) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft.SpaceType = t
	w.completed = false
	if w.step == StepSelectTime && t != models.SpaceMeetingRoom {
		w.step = StepSelectDate
	}
}

// SelectDate sets the booking date.
func (w *Wizard) SelectDate(date string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft.Date = date
	w.completed = false
}

// SelectTimes sets the meeting-room time range.
func (w *Wizard) SelectTimes(start, end string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft.StartTime = start
	w.draft.EndTime = end
	w.completed = false
}

// Advance validates the current step and moves forward. On failure the step
// is unchanged and the error is a *ValidationError.
func (w *Wizard) Advance() (Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	d := w.draft
	switch w.step {
	case StepSelectBuilding:
		if d.BuildingID == "" {
			return Result{}, invalid("building", "Please select a building")
		}
		w.step = StepSelectType

	case StepSelectType:
		if !d.SpaceType.Valid() {
			return Result{}, invalid("type", "Please select a space type")
		}
		w.step = StepSelectDate

	case StepSelectDate:
		if d.Date == "" {
			return Result{}, invalid("date", "Please select a date")
		}
		if !DateInWindow(d.Date, w.clock()) {
			return Result{}, invalid("date", dateWindowMessage)
		}
		if !d.IsMeetingRoom() {
			w.completed = true
			return Result{Step: w.step, Done: true, Draft: d}, nil
		}
		w.step = StepSelectTime

	case StepSelectTime:
		if !d.HasTimes() {
			return Result{}, invalid("time", "Please select a start and end time")
		}
		if !TimeRangeValid(d.StartTime, d.EndTime) {
			return Result{}, invalid("time", "End time must be after start time")
		}
		w.completed = true
		return Result{Step: w.step, Done: true, Draft: d}, nil
	}

	return Result{Step: w.step, Draft: d}, nil
}

// Recheck returns the finished draft if it can still be booked now. A date
// that has left the booking window reopens the date step.
func (w *Wizard) Recheck() (Draft, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.completed {
		return Draft{}, ErrIncomplete
	}
	if !DateInWindow(w.draft.Date, w.clock()) {
		w.completed = false
		w.step = StepSelectDate
		return Draft{}, invalid("date", dateWindowMessage)
	}
	return w.draft, nil
}

// Back moves one step back without validating or clearing anything.
func (w *Wizard) Back() Step {
	w.mu.Lock()
	if w.step > StepSelectBuilding {
		w.step--
	}
	step := w.step
	w.mu.Unlock()

	if step == StepSelectBuilding {
		w.Enter()
	}
	return step
}

// GoTo jumps back to an earlier step. Forward jumps are ignored.
func (w *Wizard) GoTo(step Step) Step {
	w.mu.Lock()
	if step >= StepSelectBuilding && step < w.step {
		w.step = step
	}
	current := w.step
	w.mu.Unlock()

	if current == StepSelectBuilding {
		w.Enter()
	}
	return current
}
