package domain

import (
	"fmt"
	"strconv"
)

// Direction is a discrete move: down, flat/neutral or up.
// Used both for predicted daily signals and realized price moves.
type Direction int8

const (
	DirectionDown    Direction = -1
	DirectionNeutral Direction = 0
	DirectionUp      Direction = 1
)

// SignOf returns the direction of v. Exact zero is neutral.
func SignOf(v float64) Direction {
	switch {
	case v > 0:
		return DirectionUp
	case v < 0:
		return DirectionDown
	default:
		return DirectionNeutral
	}
}

// SignOfInt returns the direction of an integer sum.
func SignOfInt(v int) Direction {
	switch {
	case v > 0:
		return DirectionUp
	case v < 0:
		return DirectionDown
	default:
		return DirectionNeutral
	}
}

// ParseDirection parses "-1", "0" or "1".
func ParseDirection(s string) (Direction, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse direction %q: %w", s, err)
	}
	if v < -1 || v > 1 {
		return 0, fmt.Errorf("direction out of range: %d", v)
	}
	return Direction(v), nil
}

// Int returns the direction as -1, 0 or +1.
func (d Direction) Int() int {
	return int(d)
}

// String renders the direction as UP, DOWN or NEUTRAL.
func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "UP"
	case DirectionDown:
		return "DOWN"
	default:
		return "NEUTRAL"
	}
}
