package sim

import (
	"fmt"
	"time"
)

// StepTeller can tell the index of the current time step.
type StepTeller interface {
	CurrentIndex() int
}

// TimeTeller can be used to get the current simulation time.
type TimeTeller interface {
	StepTeller
	CurrentTime() time.Time
}

// A Clock is the discrete time axis shared by all the components of a
// simulation. It only moves forward, one step at a time.
type Clock struct {
	start  time.Time
	end    time.Time
	step   time.Duration
	nSteps int

	index int
}

// NewClock creates a clock that ticks from start to end, both inclusive.
func NewClock(start, end time.Time, step time.Duration) (*Clock, error) {
	if step <= 0 {
		return nil, &InvalidClockError{
			Reason: fmt.Sprintf("step size must be positive, got %s", step),
		}
	}

	if end.Before(start) {
		return nil, &InvalidClockError{
			Reason: fmt.Sprintf("end %s is before start %s", end, start),
		}
	}

	span := end.Sub(start)
	if span%step != 0 {
		return nil, &InvalidClockError{
			Reason: fmt.Sprintf(
				"range %s is not a whole number of %s steps", span, step),
		}
	}

	c := &Clock{
		start:  start,
		end:    end,
		step:   step,
		nSteps: int(span/step) + 1,
		index:  -1,
	}

	return c, nil
}

// MustNewClock is like NewClock but panics on invalid arguments.
func MustNewClock(start, end time.Time, step time.Duration) *Clock {
	c, err := NewClock(start, end, step)
	if err != nil {
		panic(err)
	}

	return c
}

// Advance moves the clock to the next step. The first call moves the clock to
// step 0.
func (c *Clock) Advance() error {
	if c.index+1 >= c.nSteps {
		return &ExhaustedClockError{NSteps: c.nSteps, End: c.end}
	}

	c.index++

	return nil
}

// StartTime returns the time of the first step.
func (c *Clock) StartTime() time.Time {
	return c.start
}

// EndTime returns the time of the last step.
func (c *Clock) EndTime() time.Time {
	return c.end
}

// StepSize returns the duration between two consecutive steps.
func (c *Clock) StepSize() time.Duration {
	return c.step
}

// NSteps returns the total number of steps.
func (c *Clock) NSteps() int {
	return c.nSteps
}

// Remaining returns the number of steps that can still be advanced.
func (c *Clock) Remaining() int {
	return c.nSteps - 1 - c.index
}

// CurrentIndex returns the index of the current step, -1 before the first
// advance.
func (c *Clock) CurrentIndex() int {
	return c.index
}

// Started returns true once the clock has been advanced at least once.
func (c *Clock) Started() bool {
	return c.index >= 0
}

// TimeAt returns the time of the given step index.
func (c *Clock) TimeAt(index int) time.Time {
	return c.start.Add(time.Duration(index) * c.step)
}

// CurrentTime returns the time of the current step. It returns the zero time
// before the first advance.
func (c *Clock) CurrentTime() time.Time {
	if c.index < 0 {
		return time.Time{}
	}

	return c.TimeAt(c.index)
}

// PreviousTime returns the time of the previous step. It returns the zero
// time until the clock reaches its second step.
func (c *Clock) PreviousTime() time.Time {
	if c.index < 1 {
		return time.Time{}
	}

	return c.TimeAt(c.index - 1)
}

// CurrentYear returns the calendar year of the current step.
func (c *Clock) CurrentYear() int {
	return c.CurrentTime().Year()
}

// CurrentMonth returns the calendar month of the current step, 1 to 12.
func (c *Clock) CurrentMonth() int {
	return int(c.CurrentTime().Month())
}

// CurrentDayOfYear returns the day of year of the current step, starting from
// 1 on January 1.
func (c *Clock) CurrentDayOfYear() int {
	return c.CurrentTime().YearDay()
}

// CurrentWaterYear returns the water year of the current step. A water year
// is named after the calendar year in which it ends.
func (c *Clock) CurrentWaterYear() int {
	return WaterYear(c.CurrentTime())
}

// CurrentDayOfWaterYear returns the number of whole days between October 1 of
// the current water year and the current step, starting from 0.
func (c *Clock) CurrentDayOfWaterYear() int {
	return DayOfWaterYear(c.CurrentTime())
}

// WaterYear returns the water year that contains t. October to December
// belong to the water year of the following calendar year.
func WaterYear(t time.Time) int {
	if t.Month() >= time.October {
		return t.Year() + 1
	}

	return t.Year()
}

// DayOfWaterYear returns the number of whole days between October 1 of the
// water year that contains t and t.
func DayOfWaterYear(t time.Time) int {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	wyStart := time.Date(WaterYear(t)-1, time.October, 1, 0, 0, 0, 0, time.UTC)

	return int(day.Sub(wyStart) / (24 * time.Hour))
}
