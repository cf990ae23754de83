package protocol

// GoalType says how a Goal's angle is interpreted
type GoalType uint32

const (
	GoalAbsolute GoalType = iota // Angle is a joint position
	GoalRelative                 // Angle is added to the current position
	GoalInfinite                 // Angle is a velocity; the joint keeps turning
)

func (t GoalType) String() string {
	switch t {
	case GoalAbsolute:
		return "absolute"
	case GoalRelative:
		return "relative"
	case GoalInfinite:
		return "infinite"
	}
	return "unknown"
}

// Controller selects the motion controller that drives a joint to its goal
type Controller uint32

const (
	ControllerPID Controller = iota
	ControllerConstantVelocity
	ControllerSmooth
	ControllerAccel
)

func (c Controller) String() string {
	switch c {
	case ControllerPID:
		return "pid"
	case ControllerConstantVelocity:
		return "constant_velocity"
	case ControllerSmooth:
		return "smooth"
	case ControllerAccel:
		return "accel"
	}
	return "unknown"
}

// Goal is one joint's motion target. It is a value type: build it with
// NewGoal and pass it by value.
type Goal struct {
	Goal       float32    `json:"goal"` // Radians
	Type       GoalType   `json:"type"`
	Controller Controller `json:"controller"`
}

// NewGoal builds a Goal with every field set.
func NewGoal(angle float32, typ GoalType, controller Controller) Goal {
	return Goal{
		Goal:       angle,
		Type:       typ,
		Controller: controller,
	}
}
